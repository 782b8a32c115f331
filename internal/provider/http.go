package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// httpReply is the raw outcome of one vendor HTTP call.
type httpReply struct {
	Status     int
	Body       []byte
	RetryAfter time.Duration
}

// doJSON sends body as JSON and returns the raw reply. Only GET and POST are
// used by vendors; anything else is a programming error.
func doJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body any) (*httpReply, error) {
	if method != http.MethodPost && method != http.MethodGet {
		return nil, fmt.Errorf("unsupported HTTP method %q", method)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &httpReply{
		Status:     resp.StatusCode,
		Body:       data,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}, nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// sendFunc performs one attempt and returns the reply or a transport error.
type sendFunc func(ctx context.Context) (*httpReply, error)

// sendWithRateLimit runs send once, and once more after a short pause if the
// vendor rate limited the call with a Retry-After within maxLocalPause. Every
// 429 puts the model into the adapter's local cooldown.
func sendWithRateLimit(ctx context.Context, cd *cooldowns, kind Kind, model string, cooldown time.Duration, send sendFunc) (*httpReply, error) {
	reply, err := send(ctx)
	if err != nil || reply.Status != http.StatusTooManyRequests {
		return reply, err
	}

	cd.set(model, cooldown)
	if reply.RetryAfter <= 0 || reply.RetryAfter > maxLocalPause {
		return reply, nil
	}

	timer := time.NewTimer(reply.RetryAfter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return reply, nil
	case <-timer.C:
	}

	retry, err := send(ctx)
	if err != nil {
		return nil, err
	}
	if retry.Status == http.StatusTooManyRequests {
		cd.set(model, cooldown)
	} else if retry.Status/100 == 2 {
		cd.clear(model)
	}
	return retry, nil
}

// replyError converts a non-2xx reply into a typed error.
func replyError(kind Kind, model string, reply *httpReply) error {
	if reply.Status == http.StatusTooManyRequests {
		return &RateLimitError{Kind: kind, Model: model, RetryAfter: reply.RetryAfter, Body: string(reply.Body)}
	}
	return &StatusError{Kind: kind, Model: model, Status: reply.Status, Body: string(reply.Body)}
}
