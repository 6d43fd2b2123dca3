package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"time"
)

// Fetcher loads reference image bytes by key.
type Fetcher interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// CompareResult is the face service response to /compare.
type CompareResult struct {
	Similarity float64 `json:"similarity"`
	Match      bool    `json:"match"`
	Threshold  float64 `json:"threshold"`
}

// Client calls the face recognition microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool

	refs Fetcher
}

// New creates a client with configurable timeout. refs resolves reference keys to image bytes.
func New(baseURL string, skip bool, refs Fetcher) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		refs:    refs,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // Face processing can take time
		},
	}
}

// Compare reports whether probe and the reference stored at referenceKey show the
// same person with similarity >= threshold (percent).
func (c *Client) Compare(ctx context.Context, probe []byte, referenceKey string, threshold float64) (bool, error) {
	if c.Skip {
		return true, nil
	}

	ref, err := c.refs.Get(ctx, referenceKey)
	if err != nil {
		return false, fmt.Errorf("load reference %s: %w", referenceKey, err)
	}

	res, err := c.CompareImages(ctx, probe, ref, path.Base(referenceKey))
	if err != nil {
		return false, err
	}
	return res.Similarity*100 >= threshold, nil
}

// CompareImages posts both images to /compare and returns the raw result.
func (c *Client) CompareImages(ctx context.Context, probe, reference []byte, referenceName string) (*CompareResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range []struct {
		field, name string
		data        []byte
	}{
		{"image_1", "probe.jpg", probe},
		{"image_2", referenceName, reference},
	} {
		part, err := w.CreateFormFile(f.field, f.name)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(f.data); err != nil {
			return nil, err
		}
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/compare", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out CompareResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}
