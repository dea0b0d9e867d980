package serpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://serpapi.com/search.json"

// Soft failures: the caller treats both as "no results from this source".
var (
	ErrKeyMissing = errors.New("serpapi key not configured")
	ErrNetwork    = errors.New("network error contacting serpapi")
)

// Client is a thin wrapper over the SerpAPI search endpoint. One client is
// shared by every vertical retriever; the engine parameter selects the
// backing Google surface (google_shopping, google_hotels, ...).
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// NewClientWithBaseURL exists for tests that point the client at a stub server.
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	c.baseURL = baseURL
	return c
}

type apiError struct {
	Error string `json:"error"`
}

// Search issues one engine query and decodes the JSON payload into out.
// Default locale parameters (hl=en, gl=us) are applied unless the caller
// overrides them.
func (c *Client) Search(ctx context.Context, engine string, params url.Values, out interface{}) error {
	if c.apiKey == "" {
		return ErrKeyMissing
	}

	q := url.Values{}
	q.Set("engine", engine)
	q.Set("api_key", c.apiKey)
	q.Set("hl", "en")
	q.Set("gl", "us")
	for key, values := range params {
		for _, v := range values {
			q.Set(key, v)
		}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("serpapi error: status %d, body: %s", res.StatusCode, truncate(body, 512))
	}

	// SerpAPI reports engine-level failures inside a 200 payload.
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("serpapi error: %s", apiErr.Error)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", engine, err)
	}

	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
