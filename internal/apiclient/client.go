// Package apiclient adapts a remote partner HTTP API into a
// core.RecordStore data source, for reconciliation jobs whose source
// records live behind an HTTP endpoint rather than in Postgres. The
// client applies no circuit-breaking or retry of its own, and no code in
// this module routes its calls through the Resilience Manager's
// ExecuteAPI.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/reconcile/internal/tracing"
	"github.com/Ramsey-B/reconcile/pkg/core"
)

const (
	// MaxResponseSize bounds how much of a partner response body is read
	// into memory.
	MaxResponseSize = 10 * 1024 * 1024
)

// Config holds the HTTP client tuning for partner API egress.
type Config struct {
	BaseURL            string
	Timeout            time.Duration
	MaxIdleConns       int
	IdleConnTimeout    time.Duration
	DisableCompression bool
}

// DefaultConfig mirrors the teacher's httpclient defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}
}

// Client is a thin, size-bounded HTTP client wrapping a partner's
// record API. It implements enough of core.RecordStore to act as a
// read-only source (GetDataSource, Stream); write paths (WriteResults,
// job/case persistence) are not meaningful for a remote source and are
// left to the caller's Postgres-backed store — a job always reads
// source A/B through whichever store owns that DataSourceID and always
// writes through pgstore.
type Client struct {
	http    *http.Client
	baseURL string
	logger  ectologger.Logger
}

// New constructs a Client. cfg.BaseURL must be the partner API's root;
// paths are joined onto it.
func New(cfg Config, logger ectologger.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:       cfg.MaxIdleConns,
		IdleConnTimeout:    cfg.IdleConnTimeout,
		DisableCompression: cfg.DisableCompression,
	}
	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		logger:  logger,
	}
}

// dataSourceEnvelope is the partner API's expected JSON shape for a
// data source descriptor.
type dataSourceEnvelope struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	SchemaKeys []string       `json:"schema_keys"`
	Meta       map[string]any `json:"meta"`
}

// recordEnvelope is one record page entry.
type recordEnvelope struct {
	ID     string                    `json:"id"`
	Fields map[string]core.FieldValue `json:"fields"`
}

// recordPage is the partner API's paginated listing response.
type recordPage struct {
	Records    []recordEnvelope `json:"records"`
	NextCursor string           `json:"next_cursor"`
}

// GetDataSource fetches a data source descriptor from the partner API.
func (c *Client) GetDataSource(ctx context.Context, dataSourceID string) (core.DataSource, error) {
	ctx, span := tracing.StartSpan(ctx, "apiclient.GetDataSource")
	defer span.End()

	var env dataSourceEnvelope
	if err := c.getJSON(ctx, fmt.Sprintf("/data-sources/%s", url.PathEscape(dataSourceID)), &env); err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("apiclient: get data source %s", dataSourceID)
		return core.DataSource{}, err
	}

	return core.DataSource{
		ID:   env.ID,
		Name: env.Name,
	}, nil
}

// Stream pages through the partner API's record listing, following
// next_cursor until the partner signals the last page with an empty
// cursor. Unlike pgstore's Stream, this necessarily performs network
// I/O lazily, page by page, as the returned iterator is consumed —
// there is no way to materialize a remote source up front without
// risking unbounded memory for a large partner dataset.
func (c *Client) Stream(ctx context.Context, dataSourceID string) (iter.Seq2[core.Record, error], error) {
	ctx, span := tracing.StartSpan(ctx, "apiclient.Stream")
	defer span.End()

	return func(yield func(core.Record, error) bool) {
		cursor := ""
		for {
			path := fmt.Sprintf("/data-sources/%s/records?cursor=%s", url.PathEscape(dataSourceID), url.QueryEscape(cursor))
			var page recordPage
			if err := c.getJSON(ctx, path, &page); err != nil {
				yield(core.Record{}, fmt.Errorf("apiclient: fetch page: %w", err))
				return
			}
			for _, rec := range page.Records {
				r := core.Record{
					ID:     rec.ID,
					Fields: rec.Fields,
				}
				if !yield(r, nil) {
					return
				}
			}
			if page.NextCursor == "" {
				return
			}
			cursor = page.NextCursor
		}
	}, nil
}

// getJSON issues a GET against baseURL+path and decodes a JSON body,
// bounded to MaxResponseSize bytes.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return fmt.Errorf("apiclient: read body: %w", err)
	}
	if len(body) > MaxResponseSize {
		return fmt.Errorf("apiclient: response exceeds %d bytes", MaxResponseSize)
	}

	c.logger.WithContext(ctx).Debugf("apiclient GET %s -> %d (%s)", path, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("apiclient: %s returned %d: %s", path, resp.StatusCode, bytes.TrimSpace(body))
	}

	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("apiclient: decode response: %w", err)
	}
	return nil
}
