// Package fetch retrieves the source media for a job. Three kinds of
// links are supported: cloud-drive files (downloaded via the drive
// client), video-platform links (handed to an external downloader
// binary), and anything else (a plain streaming HTTP GET).
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	godebug "github.com/Shyp/go-debug"
	metrics "github.com/Shyp/go-simple-metrics"
	"github.com/mlgrupo/convert/drive"
	"github.com/mlgrupo/convert/identity"
	"github.com/mlgrupo/convert/runner"
)

var debug = godebug.Debug("convert:fetch")

// Kind classifies a source link.
type Kind string

const (
	KindDrive   Kind = "drive"
	KindVideo   Kind = "video"
	KindGeneric Kind = "generic"
)

// Classify reports how a link should be fetched.
func Classify(link string) Kind {
	if identity.SourceID(link) != "" || strings.Contains(link, "drive.google.com") {
		return KindDrive
	}
	if strings.Contains(link, "youtube.com") || strings.Contains(link, "youtu.be") {
		return KindVideo
	}
	return KindGeneric
}

var genericTimeout = 5 * time.Minute

// A Fetcher downloads source media into a job's scratch directory.
type Fetcher struct {
	Client *http.Client
	Drive  *drive.Client
	Runner runner.Runner

	// DownloaderPath is the video downloader binary, yt-dlp by default.
	DownloaderPath string
}

func New(d *drive.Client, r runner.Runner, downloaderPath string) *Fetcher {
	if downloaderPath == "" {
		downloaderPath = "yt-dlp"
	}
	return &Fetcher{
		Client:         &http.Client{Timeout: genericTimeout},
		Drive:          d,
		Runner:         r,
		DownloaderPath: downloaderPath,
	}
}

// Fetch downloads link into destDir and returns the local path plus a
// human-readable title for the media.
func (f *Fetcher) Fetch(ctx context.Context, link, destDir string) (string, string, error) {
	kind := Classify(link)
	go metrics.Increment(fmt.Sprintf("fetch.%s", kind))
	switch kind {
	case KindDrive:
		if f.Drive == nil {
			return "", "", fmt.Errorf("fetch: drive credentials are not configured")
		}
		id := identity.SourceID(link)
		if id == "" {
			return "", "", fmt.Errorf("fetch: could not extract a file id from %s", link)
		}
		path, name, err := f.Drive.Download(ctx, id, destDir)
		if err != nil {
			return "", "", err
		}
		return path, strings.TrimSuffix(name, filepath.Ext(name)), nil
	case KindVideo:
		return f.fetchVideo(ctx, link, destDir)
	default:
		return f.fetchGeneric(ctx, link, destDir)
	}
}

// fetchVideo shells out to the downloader binary, once for the title
// and once for the content.
func (f *Fetcher) fetchVideo(ctx context.Context, link, destDir string) (string, string, error) {
	titleResult, err := f.Runner.Run(ctx, f.DownloaderPath, "--print", "title", "--no-download", link)
	if err != nil {
		return "", "", fmt.Errorf("fetch: downloader could not resolve %s: %s: %w", link, tail(titleResult.Stderr), err)
	}
	title := strings.TrimSpace(titleResult.Stdout)

	template := filepath.Join(destDir, "source.%(ext)s")
	result, err := f.Runner.Run(ctx, f.DownloaderPath, "-o", template, "--no-playlist", link)
	if err != nil {
		return "", "", fmt.Errorf("fetch: downloader failed for %s: %s: %w", link, tail(result.Stderr), err)
	}

	// The downloader picks the extension, so scan for what it wrote.
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return "", "", err
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), "source.") {
			debug("downloader wrote %s", entry.Name())
			return filepath.Join(destDir, entry.Name()), title, nil
		}
	}
	return "", "", fmt.Errorf("fetch: downloader reported success but wrote no file for %s", link)
}

func (f *Fetcher) fetchGeneric(ctx context.Context, link, destDir string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", link, nil)
	if err != nil {
		return "", "", err
	}
	res, err := f.Client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return "", "", fmt.Errorf("fetch: GET %s returned status %d", link, res.StatusCode)
	}

	name := path.Base(res.Request.URL.Path)
	if name == "" || name == "/" || name == "." {
		name = "download"
	}
	dest := filepath.Join(destDir, filepath.Base(name))
	out, err := os.Create(dest)
	if err != nil {
		return "", "", err
	}
	written, err := io.Copy(out, res.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dest)
		return "", "", err
	}
	go metrics.Measure("fetch.generic.bytes", written)
	return dest, strings.TrimSuffix(name, filepath.Ext(name)), nil
}

var unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
var whitespace = regexp.MustCompile(`\s+`)
var nonWord = regexp.MustCompile(`[^\w.\-]`)

// SafeFileName turns an arbitrary title into a name safe for every
// filesystem the artifact might land on. The result is capped at 100
// characters.
func SafeFileName(name string) string {
	s := unsafeChars.ReplaceAllString(name, "_")
	s = whitespace.ReplaceAllString(s, "_")
	s = nonWord.ReplaceAllString(s, "")
	s = strings.Trim(s, "._")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

func tail(s string) string {
	const max = 400
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
