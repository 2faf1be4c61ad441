// Package detect talks to the object detection service that labels turn
// photos. When the service is missing or failing it answers from a fixed
// vocabulary so players can still tag their photos.
package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	SourceUpstream     = "upstream"
	SourceMock         = "mock"
	SourceMockFallback = "mock_fallback"

	defaultMaxLabels = 20
	maxResponseBytes = 1 << 20
)

var metricDetectFallbackTotal = expvar.NewInt("detect_fallback_total")

var mockVocabulary = []string{
	"person", "chair", "table", "laptop", "phone", "cup",
	"book", "pen", "window", "door", "floor", "wall",
	"light", "picture frame", "plant", "bag", "bottle", "keyboard",
}

type Result struct {
	Labels []string `json:"labels"`
	Debug  Debug    `json:"debug"`
}

type Debug struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
	Error  string `json:"error,omitempty"`
}

type Config struct {
	URL       string
	Timeout   time.Duration
	MaxLabels int
}

type Client struct {
	url       string
	inner     *http.Client
	maxLabels int

	mu  sync.Mutex
	rng *rand.Rand
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxLabels <= 0 {
		cfg.MaxLabels = defaultMaxLabels
	}
	return &Client{
		url:       strings.TrimSpace(cfg.URL),
		inner:     &http.Client{Timeout: cfg.Timeout},
		maxLabels: cfg.MaxLabels,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type upstreamRequest struct {
	Image string `json:"image"`
}

type upstreamResponse struct {
	Labels []string `json:"labels"`
}

// Detect never fails on upstream trouble; it falls back to the mock
// vocabulary and records why in Debug.Error.
func (c *Client) Detect(ctx context.Context, image []byte) (Result, error) {
	if len(image) == 0 {
		return Result{}, fmt.Errorf("image is empty")
	}
	if c.url == "" {
		return c.mock(SourceMock, ""), nil
	}
	labels, err := c.callUpstream(ctx, image)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		metricDetectFallbackTotal.Add(1)
		log.Warn().Err(err).Str("detector_url", c.url).Msg("detector unavailable, using mock labels")
		return c.mock(SourceMockFallback, err.Error()), nil
	}
	labels = NormalizeLabels(labels, c.maxLabels)
	return Result{Labels: labels, Debug: Debug{Source: SourceUpstream, Count: len(labels)}}, nil
}

func (c *Client) callUpstream(ctx context.Context, image []byte) ([]string, error) {
	raw, err := json.Marshal(upstreamRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.inner.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("detector returned status %d", resp.StatusCode)
	}
	var out upstreamResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode detector response: %w", err)
	}
	return out.Labels, nil
}

// mock returns the first 10 to 17 vocabulary entries.
func (c *Client) mock(source, reason string) Result {
	c.mu.Lock()
	n := 10 + c.rng.Intn(8)
	c.mu.Unlock()
	labels := NormalizeLabels(mockVocabulary[:n], c.maxLabels)
	return Result{Labels: labels, Debug: Debug{Source: source, Count: len(labels), Error: reason}}
}

// NormalizeLabels trims and lowercases labels, drops empties and repeats
// (keeping first occurrence order) and caps the result at limit entries.
func NormalizeLabels(labels []string, limit int) []string {
	out := make([]string, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		label = strings.ToLower(strings.TrimSpace(label))
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
