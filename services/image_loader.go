package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPImageLoader downloads QR images and checks they decode as an image.
type HTTPImageLoader struct {
	client *resty.Client
}

// NewHTTPImageLoader returns a loader whose requests give up after timeout.
func NewHTTPImageLoader(timeout time.Duration) *HTTPImageLoader {
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &HTTPImageLoader{client: client}
}

// LoadImage fetches rawURL and returns the image bytes.
func (l *HTTPImageLoader) LoadImage(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := l.client.R().
		SetContext(ctx).
		SetHeader("Accept", "image/*").
		Get(rawURL)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("image fetch non-2xx: %d", resp.StatusCode())
	}

	body := resp.Body()
	if _, _, err := image.DecodeConfig(bytes.NewReader(body)); err != nil {
		return nil, fmt.Errorf("response is not an image: %w", err)
	}
	return body, nil
}
