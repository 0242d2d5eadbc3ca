package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	metrics "github.com/Shyp/go-simple-metrics"
	"github.com/mlgrupo/convert/storage"
)

// downloadArtifact streams a stored artifact back to the client. The
// store flattens the name, so path traversal is not possible here.
func downloadArtifact(s *storage.Store) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		matches := downloadRoute.FindStringSubmatch(r.URL.Path)
		if len(matches) < 2 {
			notFound(w, new404(r))
			return
		}
		name := matches[1]
		f, info, err := s.Open(name)
		if err != nil {
			if os.IsNotExist(err) {
				notFound(w, new404(r))
				return
			}
			writeServerError(w, r, err)
			return
		}
		defer f.Close()

		go metrics.Increment("download")
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name()))
		io.Copy(w, f)
	}
}
