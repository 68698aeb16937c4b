// Package tagger adapts an external NER service to domain.Tagger.
package tagger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/opensource-finance/parsepay/internal/domain"
)

var tracer = otel.Tracer("parsepay-tagger")

// maxResponseBytes bounds how much of a tagger response is read.
const maxResponseBytes = 1 << 20

// Client calls a tagging endpoint that accepts {"text": "..."} and answers
// {"entities": [{"start": 0, "end": 6, "label": "AMOUNT"}]}.
type Client struct {
	url  string
	http *http.Client
}

// NewClient creates a tagger client. A non-positive timeout defaults to 2s.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		url:  strings.TrimRight(url, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

type tagRequest struct {
	Text string `json:"text"`
}

type tagResponse struct {
	Entities []domain.Span `json:"entities"`
}

// Tag sends text to the service and returns its spans.
// Any transport, status or decoding failure is returned as an error.
func (c *Client) Tag(ctx context.Context, text string) ([]domain.Span, error) {
	ctx, span := tracer.Start(ctx, "tagger.Tag")
	defer span.End()

	body, err := json.Marshal(tagRequest{Text: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build tagger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("tagger request failed: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		span.SetStatus(codes.Error, resp.Status)
		return nil, fmt.Errorf("tagger returned %s", resp.Status)
	}

	var out tagResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to decode tagger response: %w", err)
	}

	span.SetAttributes(attribute.Int("tagger.entities", len(out.Entities)))
	return out.Entities, nil
}
