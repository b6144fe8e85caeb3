// Package widgets keeps dashboard widgets and refreshes their data
package widgets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/briangreenhill/finboard/fetch"
	"github.com/briangreenhill/finboard/pkg/jsonvalue"
)

var (
	ErrNotFound = errors.New("widget not found")
	ErrInvalid  = errors.New("invalid widget")
)

// DisplayMode selects how a widget renders its data
type DisplayMode string

const (
	DisplayCard  DisplayMode = "card"
	DisplayTable DisplayMode = "table"
	DisplayChart DisplayMode = "chart"
)

// FieldMapping picks one value out of a widget's data
type FieldMapping struct {
	Path   string `json:"path"`
	Label  string `json:"label"`
	Type   string `json:"type"`
	Format string `json:"format,omitempty"`
}

// Config holds per-widget rendering options
type Config struct {
	ShowArraysOnly    bool   `json:"showArraysOnly,omitempty"`
	SearchEnabled     bool   `json:"searchEnabled,omitempty"`
	PaginationEnabled bool   `json:"paginationEnabled,omitempty"`
	ItemsPerPage      int    `json:"itemsPerPage,omitempty"`
	ChartType         string `json:"chartType,omitempty"`
	TimeInterval      string `json:"timeInterval,omitempty"`
}

// Draft is the user-supplied part of a widget
type Draft struct {
	Name            string         `json:"name"`
	Type            DisplayMode    `json:"type"`
	APIURL          string         `json:"apiUrl"`
	RefreshInterval int            `json:"refreshInterval"`
	SelectedFields  []FieldMapping `json:"selectedFields"`
	DisplayMode     DisplayMode    `json:"displayMode"`
	Config          Config         `json:"config"`
}

// Validate checks the fields a widget cannot work without
func (d Draft) Validate() error {
	if d.APIURL == "" {
		return fmt.Errorf("%w: apiUrl is required", ErrInvalid)
	}
	if d.RefreshInterval < 0 {
		return fmt.Errorf("%w: refreshInterval must not be negative", ErrInvalid)
	}
	switch d.displayMode() {
	case DisplayCard, DisplayTable, DisplayChart:
	default:
		return fmt.Errorf("%w: unknown display mode %q", ErrInvalid, d.displayMode())
	}
	return nil
}

func (d Draft) displayMode() DisplayMode {
	if d.DisplayMode != "" {
		return d.DisplayMode
	}
	if d.Type != "" {
		return d.Type
	}
	return DisplayCard
}

// Widget is a draft plus its runtime state
type Widget struct {
	ID string `json:"id"`
	Draft
	Data        *jsonvalue.Value `json:"data,omitempty"`
	LastUpdated *time.Time       `json:"lastUpdated,omitempty"`
	IsLoading   bool             `json:"isLoading"`
	Error       string           `json:"error,omitempty"`
}

func (w *Widget) clone() Widget {
	out := *w
	out.SelectedFields = append([]FieldMapping(nil), w.SelectedFields...)
	return out
}

// Fetcher is the data source widgets refresh from
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts *fetch.RequestOptions) fetch.Result
	TestConnection(ctx context.Context, rawURL string) fetch.ConnectionReport
}

// Store holds widgets in display order
type Store struct {
	mu      sync.RWMutex
	order   []string
	widgets map[string]*Widget

	fetcher Fetcher
	now     func() time.Time
	newID   func() string
	log     zerolog.Logger
}

// StoreOption configures a Store
type StoreOption func(*Store)

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(fn func() string) StoreOption {
	return func(s *Store) { s.newID = fn }
}

func WithLogger(log zerolog.Logger) StoreOption {
	return func(s *Store) { s.log = log }
}

// NewStore creates an empty store backed by f
func NewStore(f Fetcher, opts ...StoreOption) *Store {
	s := &Store{
		widgets: make(map[string]*Widget),
		fetcher: f,
		now:     time.Now,
		newID:   uuid.NewString,
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Add stores a new widget in the loading state and refreshes it once
func (s *Store) Add(ctx context.Context, d Draft) (Widget, error) {
	if err := d.Validate(); err != nil {
		return Widget{}, err
	}
	d.DisplayMode = d.displayMode()
	if d.Type == "" {
		d.Type = d.DisplayMode
	}
	if d.SelectedFields == nil {
		d.SelectedFields = []FieldMapping{}
	}

	w := &Widget{ID: s.newID(), Draft: d, IsLoading: true}
	s.mu.Lock()
	s.widgets[w.ID] = w
	s.order = append(s.order, w.ID)
	s.mu.Unlock()

	s.log.Info().Str("widget", w.ID).Str("name", d.Name).Msg("widget added")

	out, err := s.Refresh(ctx, w.ID)
	if errors.Is(err, ErrNotFound) {
		// removed before the first refresh finished
		return Widget{}, err
	}
	return out, nil
}

// Get returns a copy of the widget
func (s *Store) Get(id string) (Widget, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.widgets[id]
	if !ok {
		return Widget{}, false
	}
	return w.clone(), true
}

// List returns copies of all widgets in display order
func (s *Store) List() []Widget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Widget, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.widgets[id].clone())
	}
	return out
}

// Len counts widgets
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Remove deletes a widget. Refreshes still in flight for it are discarded.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.widgets[id]; !ok {
		return ErrNotFound
	}
	delete(s.widgets, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Update applies fn to the widget under the store lock. The ID cannot be
// changed.
func (s *Store) Update(id string, fn func(*Widget)) (Widget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.widgets[id]
	if !ok {
		return Widget{}, ErrNotFound
	}
	updated := w.clone()
	fn(&updated)
	updated.ID = id
	if err := updated.Draft.Validate(); err != nil {
		return Widget{}, err
	}
	*w = updated
	return w.clone(), nil
}

// Reorder sets the display order to ids. Unknown and repeated ids are
// ignored, and widgets missing from ids are dropped from the dashboard.
func (s *Store) Reorder(ids []string) []Widget {
	s.mu.Lock()
	seen := make(map[string]bool, len(ids))
	order := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.widgets[id]; ok && !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
	}
	for id := range s.widgets {
		if !seen[id] {
			delete(s.widgets, id)
		}
	}
	s.order = order
	s.mu.Unlock()
	return s.List()
}

// Refresh fetches the widget's data. Fetch failures are recorded on the
// widget, keeping its previous data; the returned error is only
// ErrNotFound.
func (s *Store) Refresh(ctx context.Context, id string) (Widget, error) {
	s.mu.Lock()
	w, ok := s.widgets[id]
	if !ok {
		s.mu.Unlock()
		return Widget{}, ErrNotFound
	}
	w.IsLoading = true
	w.Error = ""
	url := w.APIURL
	s.mu.Unlock()

	start := s.now()
	res := s.fetcher.Fetch(ctx, url, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok = s.widgets[id]
	if !ok {
		s.log.Debug().Str("widget", id).Msg("discarding result for removed widget")
		return Widget{}, ErrNotFound
	}
	if w.APIURL != url {
		s.log.Debug().Str("widget", id).Msg("discarding result for replaced url")
		return w.clone(), nil
	}

	w.IsLoading = false
	if res.Success {
		now := s.now()
		w.Data = res.Data
		w.LastUpdated = &now
		w.Error = ""
		s.log.Debug().Str("widget", id).Dur("took", now.Sub(start)).Int("fields", len(res.Fields)).Msg("widget refreshed")
	} else {
		w.Error = res.Error
		s.log.Info().Str("widget", id).Str("error", res.Error).Msg("widget refresh failed")
	}
	return w.clone(), nil
}

// RefreshAll refreshes every widget in parallel
func (s *Store) RefreshAll(ctx context.Context) error {
	s.mu.RLock()
	ids := append([]string(nil), s.order...)
	s.mu.RUnlock()

	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if _, err := s.Refresh(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// TestConnection probes a URL without creating a widget
func (s *Store) TestConnection(ctx context.Context, rawURL string) fetch.ConnectionReport {
	return s.fetcher.TestConnection(ctx, rawURL)
}
