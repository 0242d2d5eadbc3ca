package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"time"

	"github.com/mlgrupo/convert/config"
)

var defaultTimeout = 6500 * time.Millisecond
var defaultHTTPClient = &http.Client{Timeout: defaultTimeout}

// Client is a generic REST client for making HTTP requests. When Id is
// empty, Token is sent as a Bearer token instead of basic auth.
type Client struct {
	Id     string
	Token  string
	Client *http.Client
	Base   string
}

// NewClient returns a new Client with the given user and password.
// Base is the scheme+domain to hit for all requests. By default, the
// request timeout is set to 6.5 seconds.
func NewClient(user, pass, base string) *Client {
	return &Client{
		Id:     user,
		Token:  pass,
		Client: defaultHTTPClient,
		Base:   base,
	}
}

// NewBearerClient returns a Client that authenticates with a Bearer
// token.
func NewBearerClient(token, base string) *Client {
	return &Client{
		Token:  token,
		Client: defaultHTTPClient,
		Base:   base,
	}
}

// NewRequest creates a new Request and sets authentication based on
// the client's credentials.
func (c *Client) NewRequest(method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, c.Base+path, body)
	if err != nil {
		return nil, err
	}
	if c.Id != "" {
		req.SetBasicAuth(c.Id, c.Token)
	} else if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Add("User-Agent", fmt.Sprintf("convert-go/v%s", config.Version))
	if method == "POST" || method == "PUT" {
		req.Header.Add("Content-Type", "application/json; charset=utf-8")
	}
	return req, nil
}

// Do performs the HTTP request. If the HTTP response is in the 2xx
// range, Unmarshal the response body into v, otherwise return an
// error.
func (c *Client) Do(r *http.Request, v interface{}) error {
	b := new(bytes.Buffer)
	if os.Getenv("DEBUG_HTTP_TRAFFIC") == "true" || os.Getenv("DEBUG_HTTP_REQUEST") == "true" {
		bits, err := httputil.DumpRequestOut(r, true)
		if err != nil {
			return err
		}
		b.Write(bits)
	}
	res, err := c.Client.Do(r)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if os.Getenv("DEBUG_HTTP_TRAFFIC") == "true" || os.Getenv("DEBUG_HTTP_RESPONSES") == "true" {
		bits, err := httputil.DumpResponse(res, true)
		if err != nil {
			return err
		}
		b.Write(bits)
	}
	if b.Len() > 0 {
		if _, err := b.WriteTo(os.Stderr); err != nil {
			return err
		}
	}
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode >= 400 {
		var errMap map[string]interface{}
		if err := json.Unmarshal(resBody, &errMap); err != nil {
			return fmt.Errorf("rest: %s returned status %d: %s", r.URL.Path, res.StatusCode, string(resBody))
		}
		restErr := &Error{StatusCode: res.StatusCode}
		if title, ok := errMap["title"].(string); ok {
			restErr.Title = title
		} else if msg, ok := errMap["message"].(string); ok {
			restErr.Title = msg
		} else {
			return fmt.Errorf("rest: %s returned status %d: %s", r.URL.Path, res.StatusCode, string(resBody))
		}
		if detail, ok := errMap["detail"].(string); ok {
			restErr.Detail = detail
		}
		if id, ok := errMap["id"].(string); ok {
			restErr.ID = id
		}
		if instance, ok := errMap["instance"].(string); ok {
			restErr.Instance = instance
		}
		if t, ok := errMap["type"].(string); ok {
			restErr.Type = t
		}
		return restErr
	}

	if v == nil {
		return nil
	}
	return json.Unmarshal(resBody, v)
}
