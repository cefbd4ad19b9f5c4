// Package sounding resolves sounding references to decoded profiles. A
// reference is either a local NetCDF path or an HTTP(S) URL serving one.
package sounding

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/storm-cmac-service/internal/adapter/netcdf"
	"github.com/couchcryptid/storm-cmac-service/internal/domain"
	"github.com/couchcryptid/storm-cmac-service/internal/observability"
)

// maxBodyBytes bounds a downloaded sounding.
const maxBodyBytes = 64 << 20

// Source fetches a sounding by reference.
type Source interface {
	Fetch(ctx context.Context, ref string) (*domain.Sounding, error)
}

// Client implements Source for local files and HTTP(S) URLs.
type Client struct {
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a sounding client whose HTTP requests time out after timeout.
func NewClient(timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// Fetch loads and decodes the sounding at ref.
func (c *Client) Fetch(ctx context.Context, ref string) (*domain.Sounding, error) {
	start := time.Now()
	defer func() {
		c.metrics.SoundingFetchDuration.Observe(time.Since(start).Seconds())
	}()

	if isURL(ref) {
		return c.fetchHTTP(ctx, ref)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snd, err := netcdf.ReadSounding(ref)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("sounding loaded", "source", ref, "variables", len(snd.Variables))
	return snd, nil
}

func (c *Client) fetchHTTP(ctx context.Context, ref string) (*domain.Sounding, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sounding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("sounding server error: status %d: %s", resp.StatusCode, body)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read sounding body: %w", err)
	}
	if len(data) > maxBodyBytes {
		return nil, fmt.Errorf("sounding body exceeds %d bytes", maxBodyBytes)
	}
	snd, err := netcdf.DecodeSoundingBytes(data, ref)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("sounding downloaded", "source", ref, "bytes", len(data))
	return snd, nil
}

func isURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
