// Package fetch retrieves JSON from user-supplied endpoints with retry,
// caching and error classification.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxRetries is how many attempts may follow the first one
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the first backoff step; each retry doubles it
	DefaultRetryDelay = time.Second
)

// Request is one outbound call
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a successful (2xx) reply with its body fully read
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Attempts counts every try including the successful one
	Attempts int
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Executor performs HTTP requests with exponential backoff on transport
// failures and 429 responses. Other error statuses fail immediately.
type Executor struct {
	http       *http.Client
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
	relay      *Relay
	origin     string
	tokens     oauth2.TokenSource
	sleep      Sleeper
	now        func() time.Time
	log        zerolog.Logger
	metrics    *Metrics

	rateLimit rate.Limit
	rateBurst int
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
}

// Option configures an Executor
type Option func(*Executor)

func WithHTTPClient(h *http.Client) Option {
	return func(e *Executor) {
		if h != nil {
			e.http = h
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(e *Executor) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(e *Executor) {
		if d >= 0 {
			e.retryDelay = d
		}
	}
}

// WithTimeout bounds each attempt. Zero leaves attempts unbounded.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// WithRelay routes matching hosts through a CORS relay. Nil disables it.
func WithRelay(r *Relay) Option {
	return func(e *Executor) { e.relay = r }
}

// WithOrigin sends Origin on every request and rejects responses whose
// Access-Control-Allow-Origin does not admit it
func WithOrigin(origin string) Option {
	return func(e *Executor) { e.origin = origin }
}

// WithRateLimit applies a per-host token bucket before every attempt
func WithRateLimit(perSecond float64, burst int) Option {
	return func(e *Executor) {
		if perSecond <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		e.rateLimit, e.rateBurst = rate.Limit(perSecond), burst
	}
}

// WithTokenSource authorizes requests with OAuth2 bearer tokens
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(e *Executor) { e.tokens = ts }
}

// WithSleeper replaces the backoff wait, mostly for tests
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) {
		if s != nil {
			e.sleep = s
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(e *Executor) { e.log = log }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor creates an executor with the default retry policy and relay
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		http:       http.DefaultClient,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		relay:      NewRelay("", nil),
		sleep:      sleepContext,
		now:        time.Now,
		log:        zerolog.Nop(),
		limiters:   make(map[string]*rate.Limiter),
	}
	for _, o := range opts {
		o(e)
	}

	if e.tokens != nil || e.timeout > 0 {
		client := *e.http
		if e.tokens != nil {
			base := client.Transport
			if base == nil {
				base = http.DefaultTransport
			}
			client.Transport = &oauth2.Transport{Source: e.tokens, Base: base}
		}
		if e.timeout > 0 {
			client.Timeout = e.timeout
		}
		e.http = &client
	}
	return e
}

// Backoff returns the wait before retry n+1 when the server gives no hint
func (e *Executor) Backoff(n int) time.Duration {
	return e.retryDelay << uint(n)
}

// MaxRetries returns the configured retry bound
func (e *Executor) MaxRetries() int { return e.maxRetries }

// Execute runs req, retrying transport failures and 429 responses up to
// MaxRetries times. The returned error is terminal: *HTTPError,
// *TransportError, ErrCORS or a context error.
func (e *Executor) Execute(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	target := e.relay.Rewrite(req.URL)
	if target != req.URL {
		e.log.Debug().Str("url", req.URL).Str("relay", target).Msg("routing through relay")
	}

	for attempt := 0; ; attempt++ {
		resp, err := e.attempt(ctx, method, target, req)
		if err == nil {
			resp.Attempts = attempt + 1
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		delay, retry := e.retryAfter(err, attempt)
		if !retry {
			return nil, err
		}

		e.log.Warn().Err(err).
			Str("url", req.URL).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("fetch failed, retrying")
		e.metrics.recordRetry()

		if err := e.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// retryAfter decides whether a failed attempt n is retried and how long to
// wait first
func (e *Executor) retryAfter(err error, n int) (time.Duration, bool) {
	if n >= e.maxRetries {
		return 0, false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return e.Backoff(n), true
	}

	var he *HTTPError
	if errors.As(err, &he) && he.StatusCode == http.StatusTooManyRequests {
		if he.HasRetryAfter {
			return he.RetryAfter, true
		}
		return e.Backoff(n), true
	}
	return 0, false
}

func (e *Executor) attempt(ctx context.Context, method, target string, req Request) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		// a URL the client cannot dial fails like an unreachable host
		return nil, &TransportError{Err: err}
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Sec-Fetch-Mode", "cors")
	if e.origin != "" {
		httpReq.Header.Set("Origin", e.origin)
	}
	for k, vs := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	if lim := e.limiter(httpReq.URL); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := e.now()
	resp, err := e.http.Do(httpReq)
	if err != nil {
		e.metrics.recordAttempt("transport_error", e.now().Sub(start))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			e.log.Debug().Err(closeErr).Msg("closing response body")
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		e.metrics.recordAttempt("transport_error", e.now().Sub(start))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Err: err}
	}

	if e.origin != "" {
		allowed := resp.Header.Get("Access-Control-Allow-Origin")
		if allowed != "*" && allowed != e.origin {
			e.metrics.recordAttempt("cors", e.now().Sub(start))
			return nil, ErrCORS
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.metrics.recordAttempt("http_error", e.now().Sub(start))
		he := &HTTPError{StatusCode: resp.StatusCode, StatusText: statusText(resp)}
		if resp.StatusCode == http.StatusTooManyRequests {
			he.RetryAfter, he.HasRetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), e.now())
		}
		return nil, he
	}

	e.metrics.recordAttempt("success", e.now().Sub(start))
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (e *Executor) limiter(u *url.URL) *rate.Limiter {
	if e.rateLimit <= 0 {
		return nil
	}
	host := u.Host
	e.mu.Lock()
	defer e.mu.Unlock()
	lim, ok := e.limiters[host]
	if !ok {
		lim = rate.NewLimiter(e.rateLimit, e.rateBurst)
		e.limiters[host] = lim
	}
	return lim
}
