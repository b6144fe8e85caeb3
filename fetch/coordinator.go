package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/briangreenhill/finboard/cache"
	"github.com/briangreenhill/finboard/fixtures"
	"github.com/briangreenhill/finboard/pkg/jsonvalue"
	"github.com/briangreenhill/finboard/pkg/schema"
)

// RequestExecutor performs one logical request, retries included
type RequestExecutor interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}

// RequestOptions customizes a fetch
type RequestOptions struct {
	Method string
	Header http.Header
	Body   []byte
}

// Result is what a fetch hands back to widgets. Exactly one of
// (Success, Data != nil) or (!Success, Error != "") holds.
type Result struct {
	Data    *jsonvalue.Value `json:"data"`
	Fields  []schema.Field   `json:"fields"`
	Success bool             `json:"success"`
	Error   string           `json:"error,omitempty"`
}

// OK builds a successful result and infers its fields
func OK(data jsonvalue.Value) Result {
	return Result{Data: &data, Fields: schema.Infer(data), Success: true}
}

// Failed builds a failed result
func Failed(msg string) Result {
	if msg == "" {
		msg = MsgUnknown
	}
	return Result{Fields: []schema.Field{}, Error: msg}
}

// ConnectionReport summarizes a connection test
type ConnectionReport struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Fields  []schema.Field `json:"fields"`
}

// Coordinator is the entry point for widget data. It serves fixtures,
// fresh cache entries, and otherwise goes to the network.
type Coordinator struct {
	cache        cache.Cache
	exec         RequestExecutor
	fixtures     *fixtures.Registry
	now          func() time.Time
	staleOnError bool
	log          zerolog.Logger
	metrics      *Metrics
	group        singleflight.Group
}

// CoordinatorOption configures a Coordinator
type CoordinatorOption func(*Coordinator)

// WithFixtures replaces the embedded fixture registry
func WithFixtures(r *fixtures.Registry) CoordinatorOption {
	return func(c *Coordinator) {
		if r != nil {
			c.fixtures = r
		}
	}
}

// WithClock replaces time.Now for freshness checks
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithStaleOnError serves a stale cache entry when the network fails
func WithStaleOnError(enabled bool) CoordinatorOption {
	return func(c *Coordinator) { c.staleOnError = enabled }
}

func WithCoordinatorLogger(log zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.log = log }
}

func WithCoordinatorMetrics(m *Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// NewCoordinator wires a cache and an executor together
func NewCoordinator(store cache.Cache, exec RequestExecutor, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		cache:    store,
		exec:     exec,
		fixtures: fixtures.Default(),
		now:      time.Now,
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fetch returns data for rawURL. It never returns an error; every failure
// is reported inside the Result.
func (c *Coordinator) Fetch(ctx context.Context, rawURL string, opts *RequestOptions) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("url", rawURL).Msg("fetch panicked")
			c.metrics.recordResult("error")
			res = Failed(fmt.Sprint(r))
		}
	}()

	var o RequestOptions
	if opts != nil {
		o = *opts
	}
	d := cache.NewDescriptor(o.Method, rawURL, o.Body)

	if fixtures.IsMock(rawURL) {
		c.metrics.recordResult("mock")
		return OK(c.fixtures.Resolve(rawURL, c.now()))
	}

	if e, ok := c.cache.Get(ctx, d); ok && e.Fresh(c.now()) {
		c.metrics.recordResult("cache")
		return OK(e.Payload)
	}

	// the shared load outlives any single caller; each caller only stops
	// waiting when its own context ends
	flight := c.group.DoChan(d.Key(), func() (v interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				c.log.Error().Interface("panic", r).Str("url", rawURL).Msg("fetch panicked")
				err = fmt.Errorf("%v", r)
			}
		}()
		return c.load(context.WithoutCancel(ctx), d, rawURL, o)
	})

	var r singleflight.Result
	select {
	case r = <-flight:
	case <-ctx.Done():
		c.log.Info().Err(ctx.Err()).Str("url", rawURL).Msg("fetch abandoned by caller")
		c.metrics.recordResult("error")
		return Failed(Classify(ctx.Err()))
	}

	v, err, shared := r.Val, r.Err, r.Shared
	if err != nil {
		if c.staleOnError {
			if e, ok := c.cache.Get(ctx, d); ok {
				c.log.Warn().Err(err).Str("url", rawURL).Dur("age", e.Age(c.now())).Msg("serving stale cache entry")
				c.metrics.recordResult("stale")
				return OK(e.Payload)
			}
		}
		c.log.Info().Err(err).Str("url", rawURL).Msg("fetch failed")
		c.metrics.recordResult("error")
		return Failed(Classify(err))
	}

	if shared {
		c.log.Debug().Str("url", rawURL).Msg("joined in-flight fetch")
	}
	c.metrics.recordResult("network")
	return OK(v.(jsonvalue.Value))
}

// load runs once per descriptor at a time
func (c *Coordinator) load(ctx context.Context, d cache.Descriptor, rawURL string, o RequestOptions) (jsonvalue.Value, error) {
	// another caller may have filled the cache while we waited to enter
	if e, ok := c.cache.Get(ctx, d); ok && e.Fresh(c.now()) {
		return e.Payload, nil
	}

	resp, err := c.exec.Execute(ctx, Request{
		Method: d.Method,
		URL:    rawURL,
		Header: o.Header,
		Body:   o.Body,
	})
	if err != nil {
		return jsonvalue.Null(), err
	}

	data, err := jsonvalue.Parse(resp.Body)
	if err != nil {
		return jsonvalue.Null(), fmt.Errorf("invalid JSON response: %w", err)
	}

	if err := c.cache.Put(ctx, d, data, c.cache.TTL()); err != nil {
		c.log.Warn().Err(err).Str("url", rawURL).Msg("cache write failed")
	}
	c.log.Debug().Str("url", rawURL).Int("attempts", resp.Attempts).Msg("fetched")
	return data, nil
}

// TestConnection fetches rawURL once and reports how many fields it has
func (c *Coordinator) TestConnection(ctx context.Context, rawURL string) ConnectionReport {
	res := c.Fetch(ctx, rawURL, nil)
	if res.Success {
		return ConnectionReport{
			Success: true,
			Message: fmt.Sprintf("API connection successful! %d fields found.", len(res.Fields)),
			Fields:  res.Fields,
		}
	}
	msg := res.Error
	if msg == "" {
		msg = MsgConnectFailed
	}
	return ConnectionReport{Message: msg, Fields: []schema.Field{}}
}

// ClearCache drops every cached response
func (c *Coordinator) ClearCache(ctx context.Context) error {
	return c.cache.Purge(ctx)
}

// CacheSize counts cached responses, stale ones included
func (c *Coordinator) CacheSize(ctx context.Context) int {
	return c.cache.Len(ctx)
}
