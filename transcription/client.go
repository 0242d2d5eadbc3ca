// Package transcription forwards finished audio to the transcription
// service. Uploads are a three-step dance: ask for a signed upload URL,
// PUT the bytes there, then kick off the transcription order.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	godebug "github.com/Shyp/go-debug"
	metrics "github.com/Shyp/go-simple-metrics"
	"github.com/mlgrupo/convert/models"
	"github.com/mlgrupo/convert/rest"
)

var debug = godebug.Debug("convert:transcription")

// DefaultLanguage is used when a job does not name one.
const DefaultLanguage = "pt-BR"

var uploadTimeout = 10 * time.Minute

// Client calls the transcription API.
type Client struct {
	*rest.Client

	// WebhookURL is passed along with each order so the service can
	// call back when the transcript is ready.
	WebhookURL string

	// Language used when a caller does not name one; defaults to
	// DefaultLanguage.
	Language string

	uploadClient *http.Client
}

func NewClient(token, base, webhookURL string) *Client {
	return &Client{
		Client:       rest.NewBearerClient(token, base),
		WebhookURL:   webhookURL,
		uploadClient: &http.Client{Timeout: uploadTimeout},
	}
}

type uploadURLResponse struct {
	UploadURL string `json:"upload_url"`
	FileID    string `json:"file_id"`
}

type initiateResponse struct {
	OrderID string `json:"order_id"`
	Message string `json:"message"`
}

// Upload sends the audio at path to the service and starts a
// transcription order for it. language defaults to DefaultLanguage.
func (c *Client) Upload(ctx context.Context, path, fileName, language string) (*models.TranscriptionInfo, error) {
	if language == "" {
		language = c.Language
	}
	if language == "" {
		language = DefaultLanguage
	}
	start := time.Now()

	body, err := json.Marshal(map[string]string{"file_name": fileName})
	if err != nil {
		return nil, err
	}
	req, err := c.NewRequest("POST", "/local_file/get_upload_url", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	var upload uploadURLResponse
	if err := c.Do(req, &upload); err != nil {
		return nil, fmt.Errorf("transcription: could not get upload url: %w", err)
	}
	if upload.UploadURL == "" {
		return nil, fmt.Errorf("transcription: service returned an empty upload url")
	}

	if err := c.putFile(ctx, upload.UploadURL, path); err != nil {
		return nil, fmt.Errorf("transcription: upload of %s failed: %w", fileName, err)
	}

	initBody, err := json.Marshal(map[string]string{
		"file_id":   upload.FileID,
		"file_name": fileName,
		"language":  language,
		"webhook":   c.WebhookURL,
	})
	if err != nil {
		return nil, err
	}
	initReq, err := c.NewRequest("POST", "/local_file/initiate_transcription", bytes.NewReader(initBody))
	if err != nil {
		return nil, err
	}
	initReq = initReq.WithContext(ctx)
	var initiated initiateResponse
	if err := c.Do(initReq, &initiated); err != nil {
		return nil, fmt.Errorf("transcription: could not initiate order: %w", err)
	}
	debug("initiated order %s for %s", initiated.OrderID, fileName)
	go metrics.Time("transcription.upload.latency", time.Since(start))

	return &models.TranscriptionInfo{
		FileID:     initiated.OrderID,
		Status:     "processing",
		FileName:   fileName,
		Language:   language,
		WebhookURL: c.WebhookURL,
	}, nil
}

// putFile streams the file to a signed URL with a bare HTTP client; the
// signed URL carries its own auth.
func (c *Client) putFile(ctx context.Context, url, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "PUT", url, f)
	if err != nil {
		return err
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "audio/mpeg")
	res, err := c.uploadClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("signed upload returned status %d: %s", res.StatusCode, body)
	}
	return nil
}

// FileStatus is the service's view of one transcription order.
type FileStatus struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Language string `json:"language"`
}

// GetStatus returns the current state of an order.
func (c *Client) GetStatus(ctx context.Context, fileID string) (*FileStatus, error) {
	req, err := c.NewRequest("GET", "/files/"+fileID, nil)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	var status FileStatus
	if err := c.Do(req, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetTranscript returns the finished transcript content for an order.
func (c *Client) GetTranscript(ctx context.Context, fileID string) (json.RawMessage, error) {
	req, err := c.NewRequest("GET", "/files/"+fileID+"/content", nil)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	var content json.RawMessage
	if err := c.Do(req, &content); err != nil {
		return nil, err
	}
	return content, nil
}

// ListFiles returns every order visible to this account.
func (c *Client) ListFiles(ctx context.Context) ([]FileStatus, error) {
	req, err := c.NewRequest("GET", "/files", nil)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	var files []FileStatus
	if err := c.Do(req, &files); err != nil {
		return nil, err
	}
	return files, nil
}
