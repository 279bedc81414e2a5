package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Client talks to the face-detection inference service.
type Client interface {
	LoadModel(ctx context.Context, model string) error
	Detect(ctx context.Context, model string, frame Frame) ([]json.RawMessage, error)
}

type httpClient struct {
	baseURL    string
	retryCount int
	retryDelay time.Duration
	client     *http.Client
	logger     zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, retryCount int, retryDelay time.Duration, logger zerolog.Logger) Client {
	return &httpClient{
		baseURL:    baseURL,
		retryCount: retryCount,
		retryDelay: retryDelay,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *httpClient) LoadModel(ctx context.Context, model string) error {
	body, err := json.Marshal(map[string]string{"model": model})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	_, err = c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/models/load", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("failed to load model %s: %w", model, err)
	}

	c.logger.Info().Str("model", model).Msg("Face detection model loaded")
	return nil
}

func (c *httpClient) Detect(ctx context.Context, model string, frame Frame) ([]json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/v1/detect?model=%s", c.baseURL, url.QueryEscape(model))

	data, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(frame.JPEG))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "image/jpeg")
		req.Header.Set("X-Frame-Width", strconv.Itoa(frame.Width))
		req.Header.Set("X-Frame-Height", strconv.Itoa(frame.Height))
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to detect faces: %w", err)
	}

	var resp struct {
		Detections []json.RawMessage `json:"detections"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode detection response: %w", err)
	}

	return resp.Detections, nil
}

func (c *httpClient) do(ctx context.Context, build func() (*http.Request, error)) ([]byte, error) {
	var lastErr error

	for i := 0; i <= c.retryCount; i++ {
		if i > 0 {
			c.logger.Warn().Int("attempt", i).Err(lastErr).Msg("Retrying vision request")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(i)):
			}
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		lastErr = fmt.Errorf("vision service returned status %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode < http.StatusInternalServerError {
			break
		}
	}

	return nil, lastErr
}
