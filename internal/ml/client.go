package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// RemoteScorer scores feature records against a running ModelServer.
type RemoteScorer struct {
	base string
	rest *resty.Client
}

// NewRemoteScorer creates a client for the server at base.
func NewRemoteScorer(base string, timeout time.Duration) *RemoteScorer {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second)
	}
	return &RemoteScorer{base: strings.TrimRight(base, "/"), rest: r}
}

// ScoreJSON posts a flat JSON feature record to /score.
func (c *RemoteScorer) ScoreJSON(ctx context.Context, features []byte) (Result, error) {
	if !json.Valid(features) {
		return Result{}, fmt.Errorf("%w: feature record is not valid JSON", ErrSchema)
	}

	var out RiskResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(RiskRequest{Features: features}).
		SetResult(&out).
		Post(c.base + "/score")
	if err != nil {
		return Result{}, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return Result{}, fmt.Errorf("API error: status %d, body: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	return Result{Risk: out.Risk, Decision: out.Decision, Threshold: out.Threshold}, nil
}
