// Package executor performs upstream HTTP calls with bounded retries, a
// shared rate limiter and latency metrics.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/mohammed-shakir/catastro-tool/internal/core/observability"
	"github.com/mohammed-shakir/catastro-tool/internal/logger"
)

// ErrStatus marks a non-2xx upstream response. It is never retried.
var ErrStatus = errors.New("upstream status")

const (
	userAgent   = "catastro-tool/1.0 (+https://github.com/mohammed-shakir/catastro-tool)"
	maxBodySize = 256 << 20
)

type Request struct {
	// Upstream names the service in logs and metrics.
	Upstream    string
	Method      string
	URL         string
	Query       url.Values
	Body        []byte
	ContentType string
	Accept      string
	Timeout     time.Duration
}

type Response struct {
	Status      int
	Body        []byte
	ContentType string
}

// Client is what components depend on; *Executor implements it.
type Client interface {
	Get(ctx context.Context, upstream, rawURL string, q url.Values, timeout time.Duration) (Response, error)
	PostJSON(ctx context.Context, upstream, rawURL string, payload any, timeout time.Duration) (Response, error)
	Do(ctx context.Context, req Request) (Response, error)
}

var _ Client = (*Executor)(nil)

type Options struct {
	Retries        int
	RetryBackoff   time.Duration
	RequestsPerSec float64
}

type Executor struct {
	logger  *slog.Logger
	client  *http.Client
	limiter *rate.Limiter
	retries int
	backoff time.Duration
	sleep   func(ctx context.Context, d time.Duration) error // for tests
}

func New(log *slog.Logger, client *http.Client, opts Options) *Executor {
	if log == nil {
		log = logger.Discard()
	}
	if client == nil {
		client = http.DefaultClient
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1)
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Executor{
		logger:  log,
		client:  client,
		limiter: lim,
		retries: opts.Retries,
		backoff: opts.RetryBackoff,
		sleep:   Sleep,
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Executor) Get(ctx context.Context, upstream, rawURL string, q url.Values, timeout time.Duration) (Response, error) {
	return e.Do(ctx, Request{Upstream: upstream, Method: http.MethodGet, URL: rawURL, Query: q, Timeout: timeout})
}

// PostJSON marshals payload and posts it as application/json.
func (e *Executor) PostJSON(ctx context.Context, upstream, rawURL string, payload any, timeout time.Duration) (Response, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("encode %s payload: %w", upstream, err)
	}
	return e.Do(ctx, Request{
		Upstream:    upstream,
		Method:      http.MethodPost,
		URL:         rawURL,
		Body:        b,
		ContentType: "application/json",
		Timeout:     timeout,
	})
}

// Do runs req with up to Retries extra attempts on transport failures.
// Waits between attempts grow linearly: backoff, 2*backoff, ...
func (e *Executor) Do(ctx context.Context, req Request) (Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	start := time.Now()
	var (
		resp Response
		err  error
	)
	for attempt := 0; attempt <= e.retries; attempt++ {
		if attempt > 0 {
			wait := e.backoff * time.Duration(attempt)
			e.logger.WarnContext(ctx, "upstream retry",
				"upstream", req.Upstream, "attempt", attempt, "wait", wait, "err", err)
			if serr := e.sleep(ctx, wait); serr != nil {
				err = serr
				break
			}
		}
		resp, err = e.attempt(ctx, req)
		if err == nil || !retryable(ctx, err) {
			break
		}
	}

	dur := time.Since(start)
	observability.ObserveUpstream(req.Upstream, err, dur.Seconds())
	if err != nil {
		e.logger.DebugContext(ctx, "upstream call failed",
			"upstream", req.Upstream, "status", resp.Status, "duration", dur.String(), "err", err)
		return resp, err
	}
	e.logger.DebugContext(ctx, "upstream call done",
		"upstream", req.Upstream, "status", resp.Status, "bytes", len(resp.Body), "duration", dur.String())
	return resp, nil
}

func (e *Executor) attempt(ctx context.Context, req Request) (Response, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("%s: rate limit: %w", req.Upstream, err)
	}

	actx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return Response{}, fmt.Errorf("%s: parse url: %w", req.Upstream, err)
	}
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(actx, req.Method, u.String(), body)
	if err != nil {
		return Response{}, fmt.Errorf("%s: build request: %w", req.Upstream, err)
	}
	hreq.Header.Set("User-Agent", userAgent)
	if req.ContentType != "" {
		hreq.Header.Set("Content-Type", req.ContentType)
	}
	if req.Accept != "" {
		hreq.Header.Set("Accept", req.Accept)
	}

	hresp, err := e.client.Do(hreq)
	if err != nil {
		return Response{}, &transportError{upstream: req.Upstream, err: err}
	}
	defer func() { _ = hresp.Body.Close() }()

	b, err := io.ReadAll(io.LimitReader(hresp.Body, maxBodySize))
	if err != nil {
		return Response{}, &transportError{upstream: req.Upstream, err: fmt.Errorf("read body: %w", err)}
	}
	out := Response{Status: hresp.StatusCode, Body: b, ContentType: hresp.Header.Get("Content-Type")}
	if hresp.StatusCode < 200 || hresp.StatusCode >= 300 {
		return out, fmt.Errorf("%s: %w %d", req.Upstream, ErrStatus, hresp.StatusCode)
	}
	return out, nil
}

type transportError struct {
	upstream string
	err      error
}

func (t *transportError) Error() string { return t.upstream + ": " + t.err.Error() }
func (t *transportError) Unwrap() error { return t.err }

// retryable reports whether err is a transport failure and the caller is
// still waiting.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var te *transportError
	return errors.As(err, &te)
}
