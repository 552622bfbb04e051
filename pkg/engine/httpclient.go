package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// HTTPError represents an HTTP response with a status code of 400 or
// above. The engine treats it the same as a transport failure: the attempt
// failed.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request failed with status %s", e.Status)
}

// Client wraps net/http for node calls. Any transport error or status code
// of 400 or above comes back as a non-nil error; the engine never inspects
// status codes itself.
type Client struct {
	httpClient *http.Client
}

// Response carries the outcome of a successful node call.
type Response struct {
	StatusCode int
	Body       string
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Do executes one node call. The body map, when non-empty, is sent as JSON.
func (c *Client) Do(ctx context.Context, method, url string, headers, body map[string]any) (*Response, error) {
	var reader io.Reader

	if len(body) > 0 {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if len(body) > 0 {
		request.Header.Set("Content-Type", "application/json")
	}

	for key, value := range headers {
		request.Header.Set(key, fmt.Sprintf("%v", value))
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if response.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{StatusCode: response.StatusCode, Status: response.Status}
	}

	return &Response{StatusCode: response.StatusCode, Body: string(responseBody)}, nil
}

// BuildURL appends resolved query parameters to the base URL as literal
// key=value pairs joined by ampersands. Values are not URL-encoded; the
// workflow author owns the escaping. Keys are appended in sorted order.
func BuildURL(baseURL string, query map[string]any) string {
	if len(query) == 0 {
		return baseURL
	}

	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", key, query[key]))
	}

	separator := "?"
	if strings.Contains(baseURL, "?") {
		separator = "&"
	}

	return baseURL + separator + strings.Join(pairs, "&")
}
