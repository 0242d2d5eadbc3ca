// Package drive is a minimal Google Drive v3 client covering the three
// operations the pipeline needs: file metadata, content download, and
// multipart upload into a folder.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"time"

	godebug "github.com/Shyp/go-debug"
	metrics "github.com/Shyp/go-simple-metrics"
	"github.com/mlgrupo/convert/models"
	"github.com/mlgrupo/convert/rest"
)

var debug = godebug.Debug("convert:drive")

const apiBase = "https://www.googleapis.com/drive/v3"
const uploadBase = "https://www.googleapis.com/upload/drive/v3"

// Transfers stream file content, so they get a much more generous
// timeout than ordinary JSON calls.
var transferTimeout = 10 * time.Minute

// Client calls the Drive API with a bearer token.
type Client struct {
	*rest.Client

	// DefaultFolderID receives uploads when the caller does not name a
	// destination folder. Empty means upload to the drive root.
	DefaultFolderID string

	transferClient *http.Client
	uploadBase     string
}

// NewClient returns a Drive client authenticating with token. If base
// is empty the public Google API endpoints are used.
func NewClient(token, base, defaultFolderID string) *Client {
	upload := uploadBase
	if base == "" {
		base = apiBase
	} else {
		// Test servers serve both surfaces from one host.
		upload = base
	}
	return &Client{
		Client:          rest.NewBearerClient(token, base),
		DefaultFolderID: defaultFolderID,
		transferClient:  &http.Client{Timeout: transferTimeout},
		uploadBase:      upload,
	}
}

type FileMetadata struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MimeType    string `json:"mimeType"`
	Size        string `json:"size"`
	WebViewLink string `json:"webViewLink"`
}

// GetMetadata fetches the name, size and type of a file.
func (c *Client) GetMetadata(ctx context.Context, fileID string) (*FileMetadata, error) {
	req, err := c.NewRequest("GET", fmt.Sprintf("/files/%s?fields=id,name,mimeType,size", fileID), nil)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	var meta FileMetadata
	if err := c.Do(req, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Download streams the content of fileID into destDir and returns the
// path of the downloaded file plus the file's name on Drive.
func (c *Client) Download(ctx context.Context, fileID, destDir string) (string, string, error) {
	meta, err := c.GetMetadata(ctx, fileID)
	if err != nil {
		return "", "", err
	}
	debug("downloading %s (%s, %s bytes)", meta.Name, fileID, meta.Size)

	req, err := c.NewRequest("GET", fmt.Sprintf("/files/%s?alt=media", fileID), nil)
	if err != nil {
		return "", "", err
	}
	req = req.WithContext(ctx)
	res, err := c.transferClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return "", "", fmt.Errorf("drive: download of %s returned status %d: %s", fileID, res.StatusCode, body)
	}

	name := meta.Name
	if name == "" {
		name = fileID
	}
	path := filepath.Join(destDir, filepath.Base(name))
	f, err := os.Create(path)
	if err != nil {
		return "", "", err
	}
	written, err := io.Copy(f, res.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", "", err
	}
	go metrics.Measure("drive.download.bytes", written)
	return path, meta.Name, nil
}

// Upload sends the file at path to Drive with the given name, into
// folderID (or the client's default folder when folderID is empty).
func (c *Client) Upload(ctx context.Context, path, name, folderID string) (*models.DriveUpload, error) {
	folderSpecified := folderID != ""
	if folderID == "" {
		folderID = c.DefaultFolderID
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	metaPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json; charset=UTF-8"},
	})
	if err != nil {
		return nil, err
	}
	meta := map[string]interface{}{"name": name}
	if folderID != "" {
		meta["parents"] = []string{folderID}
	}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return nil, err
	}
	filePart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"audio/mpeg"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(filePart, f); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	url := c.uploadBase + "/files?uploadType=multipart&fields=id,name,size,webViewLink"
	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "multipart/related; boundary="+w.Boundary())

	start := time.Now()
	res, err := c.transferClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("drive: upload of %s returned status %d: %s", name, res.StatusCode, resBody)
	}
	go metrics.Time("drive.upload.latency", time.Since(start))
	go metrics.Measure("drive.upload.bytes", info.Size())

	var uploaded FileMetadata
	if err := json.Unmarshal(resBody, &uploaded); err != nil {
		return nil, err
	}
	size := info.Size()
	if uploaded.Size != "" {
		if parsed, err := strconv.ParseInt(uploaded.Size, 10, 64); err == nil {
			size = parsed
		}
	}
	upload := &models.DriveUpload{
		FileID:          uploaded.ID,
		FileName:        uploaded.Name,
		FileSize:        size,
		WebViewLink:     uploaded.WebViewLink,
		FolderID:        folderID,
		FolderSpecified: folderSpecified,
	}
	if folderID != "" {
		upload.FolderLink = "https://drive.google.com/drive/folders/" + folderID
	}
	return upload, nil
}
