package blob

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	cloudinaryAPIBase      = "https://api.cloudinary.com"
	cloudinaryDeliveryBase = "https://res.cloudinary.com"
)

// Cloudinary stores images through the Cloudinary REST API. The object key minus
// its extension is used as the public_id, so folders mirror the key layout.
type Cloudinary struct {
	CloudName    string
	APIKey       string
	APISecret    string
	APIBase      string
	DeliveryBase string
	HTTP         *http.Client
	now          func() time.Time
}

// NewCloudinary creates a Cloudinary store.
func NewCloudinary(cloudName, apiKey, apiSecret string) *Cloudinary {
	return &Cloudinary{
		CloudName:    cloudName,
		APIKey:       apiKey,
		APISecret:    apiSecret,
		APIBase:      cloudinaryAPIBase,
		DeliveryBase: cloudinaryDeliveryBase,
		HTTP:         &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
	}
}

// UploadResult holds the response from Cloudinary after a successful upload.
type UploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Format    string `json:"format"`
	Bytes     int    `json:"bytes"`
}

type resource struct {
	PublicID string `json:"public_id"`
	Format   string `json:"format"`
}

func (c *Cloudinary) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	params := map[string]string{
		"public_id": strings.TrimSuffix(key, path.Ext(key)),
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
		"api_key":   c.APIKey,
	}
	params["signature"] = c.sign(params)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		_ = w.WriteField(k, v)
	}
	part, err := w.CreateFormFile("file", path.Base(key))
	if err != nil {
		return "", fmt.Errorf("cloudinary: create form file failed: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("cloudinary: write file failed: %w", err)
	}
	w.Close()

	endpoint := fmt.Sprintf("%s/v1_1/%s/image/upload", c.APIBase, c.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	body, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("cloudinary: upload %s: %w", key, err)
	}
	var result UploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("cloudinary: decode response failed: %w", err)
	}
	return result.SecureURL, nil
}

// List pages through the Admin API resources endpoint.
func (c *Cloudinary) List(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys   []string
		cursor string
	)
	for {
		q := url.Values{}
		q.Set("prefix", prefix)
		q.Set("max_results", "500")
		if cursor != "" {
			q.Set("next_cursor", cursor)
		}
		endpoint := fmt.Sprintf("%s/v1_1/%s/resources/image/upload?%s", c.APIBase, c.CloudName, q.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("cloudinary: create request failed: %w", err)
		}
		req.SetBasicAuth(c.APIKey, c.APISecret)

		body, err := c.do(req)
		if err != nil {
			return nil, fmt.Errorf("cloudinary: list %s: %w", prefix, err)
		}
		var page struct {
			Resources  []resource `json:"resources"`
			NextCursor string     `json:"next_cursor"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("cloudinary: decode response failed: %w", err)
		}
		for _, r := range page.Resources {
			key := r.PublicID
			if r.Format != "" {
				key += "." + r.Format
			}
			keys = append(keys, key)
		}
		if page.NextCursor == "" {
			return keys, nil
		}
		cursor = page.NextCursor
	}
}

func (c *Cloudinary) Get(ctx context.Context, key string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/%s/image/upload/%s", c.DeliveryBase, c.CloudName, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cloudinary: download %s failed (%d)", key, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *Cloudinary) do(req *http.Request) ([]byte, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// sign computes the Cloudinary API signature; api_key and file are not signed.
func (c *Cloudinary) sign(params map[string]string) string {
	excludeKeys := map[string]bool{"api_key": true, "file": true, "resource_type": true}

	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !excludeKeys[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)

	h := sha1.New()
	h.Write([]byte(strings.Join(pairs, "&") + c.APISecret))
	return fmt.Sprintf("%x", h.Sum(nil))
}
