package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/dgtviewer/pkg/boardstate"
)

// StatusError is a non-2xx answer from the state endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("state endpoint status=%d body=%s", e.Code, e.Body)
}

// HTTPFetcher reads /state.json from a dgtviewer server.
type HTTPFetcher struct {
	url  string
	http *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*HTTPFetcher)

func WithTimeout(d time.Duration) Option {
	return func(f *HTTPFetcher) { f.defaultTimeout = d }
}

// WithRetry retries 5xx answers and transport errors within one fetch.
func WithRetry(max int) Option {
	return func(f *HTTPFetcher) { f.retryMax = max }
}

func WithPath(path string) Option {
	return func(f *HTTPFetcher) {
		base := strings.TrimSuffix(f.url, "/state.json")
		f.url = base + "/" + strings.TrimLeft(path, "/")
	}
}

func NewHTTPFetcher(baseURL string, opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		url:            strings.TrimRight(baseURL, "/") + "/state.json",
		http:           &fasthttp.Client{ReadTimeout: 2 * time.Second, WriteTimeout: 2 * time.Second, MaxConnsPerHost: 4},
		defaultTimeout: 2 * time.Second,
		retryMax:       1,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (boardstate.BoardState, error) {
	var st boardstate.BoardState
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(f.url)
	req.Header.Set("Accept", "application/json")

	attempts := max(f.retryMax, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		err := f.http.DoDeadline(req, resp, f.computeDeadline(ctx))
		if err == nil {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				if err := json.Unmarshal(resp.Body(), &st); err != nil {
					return st, fmt.Errorf("decode state: %w", err)
				}
				if err := st.Validate(); err != nil {
					return st, err
				}
				return st, nil
			}
			err = &StatusError{Code: status, Body: truncate(string(resp.Body()), 256)}
			if !shouldRetryStatus(status) {
				return st, err
			}
		}
		lastErr = err
		if attempt < attempts {
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return st, lastErr
			}
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return st, fmt.Errorf("fetch state: %w", lastErr)
}

func (f *HTTPFetcher) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(f.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	attempt = min(max(attempt, 1), 6)
	return time.Duration(1<<uint(attempt-1)) * 50 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
