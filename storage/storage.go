// Package storage keeps finished artifacts on local disk and hands out
// download URLs for them.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	godebug "github.com/Shyp/go-debug"
	"github.com/mlgrupo/convert/models"
)

var debug = godebug.Debug("convert:storage")

// Artifacts are kept for a day; a cron outside this process reaps them.
const retention = "24 hours"

// Store copies artifacts into Dir and serves them back by name.
type Store struct {
	Dir     string
	BaseURL string
}

func New(dir, baseURL string) *Store {
	return &Store{Dir: dir, BaseURL: strings.TrimSuffix(baseURL, "/")}
}

// Save copies the artifact at srcPath into the store under name,
// appending a numeric suffix if the name is taken. It returns the
// stored file's metadata including a download URL.
func (s *Store) Save(srcPath, name string) (*models.FileInfo, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return nil, err
	}
	name = filepath.Base(name)

	final := name
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(s.Dir, final)); os.IsNotExist(err) {
			break
		}
		final = fmt.Sprintf("%s_%d%s", base, i, ext)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	dest := filepath.Join(s.Dir, final)
	out, err := os.Create(dest)
	if err != nil {
		return nil, err
	}
	written, err := io.Copy(out, src)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dest)
		return nil, err
	}
	debug("stored %s (%d bytes)", final, written)

	return &models.FileInfo{
		OriginalName: name,
		FileName:     final,
		Size:         written,
		DownloadURL:  fmt.Sprintf("%s/v1/download/%s", s.BaseURL, final),
		ExpiresIn:    retention,
	}, nil
}

// Open returns a reader for a stored artifact. The name is flattened
// with filepath.Base so callers cannot traverse out of the store.
func (s *Store) Open(name string) (*os.File, os.FileInfo, error) {
	path := filepath.Join(s.Dir, filepath.Base(name))
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, info, nil
}
