/**
 * @description
 * This package provides a client for the external blob store that holds
 * receipt files. Uploads stream the file body with the request context, so an
 * abandoned upload is cancelled with its caller instead of completing in the
 * background and leaving an orphaned blob.
 */
package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a client for the blob store API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new blob store client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type uploadResponse struct {
	URL string `json:"url"`
}

// Upload streams a file to the store under the given path and returns the
// public URL of the stored blob.
func (c *Client) Upload(ctx context.Context, path string, contentType string, size int64, body io.Reader) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("blob store base url is empty")
	}

	endpoint := c.baseURL + "/blobs/" + url.PathEscape(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if size > 0 {
		req.ContentLength = size
	}
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute upload to blob store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("blob store returned status %d: %s", resp.StatusCode, string(raw))
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode blob store response: %w", err)
	}
	if strings.TrimSpace(out.URL) == "" {
		return "", fmt.Errorf("blob store returned an empty url")
	}
	return out.URL, nil
}

// Delete removes a stored blob by its URL.
func (c *Client) Delete(ctx context.Context, blobURL string) error {
	if c.baseURL == "" {
		return fmt.Errorf("blob store base url is empty")
	}

	endpoint := c.baseURL + "/blobs?url=" + url.QueryEscape(blobURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute delete on blob store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("blob store returned status %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}
