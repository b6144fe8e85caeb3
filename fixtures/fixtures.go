// Package fixtures serves static payloads for mock:// URLs so dashboards can
// run offline.
package fixtures

import (
	_ "embed"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/briangreenhill/finboard/pkg/jsonvalue"
)

// Scheme prefixes every fixture URL
const Scheme = "mock://"

//go:embed fixtures.yaml
var embedded []byte

// IsMock reports whether rawURL addresses a fixture
func IsMock(rawURL string) bool {
	return strings.HasPrefix(rawURL, Scheme)
}

// Fixture produces the payload for one mock URL
type Fixture interface {
	// URL returns the full mock URL, e.g. "mock://stock"
	URL() string
	// Payload renders the fixture at now
	Payload(now time.Time) (jsonvalue.Value, error)
}

// Func adapts a function to the Fixture interface
type Func struct {
	Name string
	Fn   func(now time.Time) jsonvalue.Value
}

func (f Func) URL() string { return f.Name }

func (f Func) Payload(now time.Time) (jsonvalue.Value, error) { return f.Fn(now), nil }

// Registry manages the available fixtures
type Registry struct {
	mu       sync.RWMutex
	fixtures map[string]Fixture
	random   func() float64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		fixtures: make(map[string]Fixture),
		random:   rand.Float64,
	}
}

// Register adds a fixture, replacing any with the same URL
func (r *Registry) Register(f Fixture) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fixtures[f.URL()] = f
}

// Get retrieves a fixture by URL
func (r *Registry) Get(rawURL string) (Fixture, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fixtures[rawURL]
	return f, ok
}

// List returns all registered URLs in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	urls := make([]string, 0, len(r.fixtures))
	for u := range r.fixtures {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// Resolve returns the payload for rawURL. Unknown URLs, and fixtures that
// fail to render, get the generic placeholder.
func (r *Registry) Resolve(rawURL string, now time.Time) jsonvalue.Value {
	if f, ok := r.Get(rawURL); ok {
		if v, err := f.Payload(now); err == nil {
			return v
		}
	}
	return Placeholder(now, r.random()*100)
}

// Placeholder is the payload served for unrecognized mock URLs
func Placeholder(now time.Time, value float64) jsonvalue.Value {
	return jsonvalue.Object(
		jsonvalue.Member{Key: "message", Value: jsonvalue.String("Test data")},
		jsonvalue.Member{Key: "timestamp", Value: jsonvalue.String(now.UTC().Format("2006-01-02T15:04:05.000Z"))},
		jsonvalue.Member{Key: "value", Value: jsonvalue.Number(value)},
		jsonvalue.Member{Key: "status", Value: jsonvalue.String("success")},
	)
}

// Load parses a YAML document mapping mock URLs to payloads
func Load(data []byte) (*Registry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	r := NewRegistry()
	if len(doc.Content) == 0 {
		return r, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("fixtures: top level must be a mapping, got line %d", root.Line)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		if !IsMock(name) {
			return nil, fmt.Errorf("fixtures: %q does not start with %s", name, Scheme)
		}
		r.Register(&yamlFixture{url: name, node: root.Content[i+1]})
	}
	return r, nil
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the registry built from the embedded fixture file
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := Load(embedded)
		if err != nil {
			panic(err)
		}
		defaultReg = r
	})
	return defaultReg
}

type yamlFixture struct {
	url  string
	node *yaml.Node
}

func (f *yamlFixture) URL() string { return f.url }

func (f *yamlFixture) Payload(now time.Time) (jsonvalue.Value, error) {
	return convert(f.node, now)
}

const todayTag = "!today"

func convert(n *yaml.Node, now time.Time) (jsonvalue.Value, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return convert(n.Alias, now)
	case yaml.MappingNode:
		members := make([]jsonvalue.Member, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := convert(n.Content[i+1], now)
			if err != nil {
				return jsonvalue.Null(), err
			}
			members = append(members, jsonvalue.Member{Key: n.Content[i].Value, Value: v})
		}
		return jsonvalue.Object(members...), nil
	case yaml.SequenceNode:
		elems := make([]jsonvalue.Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := convert(c, now)
			if err != nil {
				return jsonvalue.Null(), err
			}
			elems = append(elems, v)
		}
		return jsonvalue.Array(elems...), nil
	case yaml.ScalarNode:
		return scalar(n, now)
	default:
		return jsonvalue.Null(), fmt.Errorf("fixtures: unsupported node kind %d at line %d", n.Kind, n.Line)
	}
}

func scalar(n *yaml.Node, now time.Time) (jsonvalue.Value, error) {
	switch n.ShortTag() {
	case todayTag:
		return jsonvalue.String(now.UTC().Format(time.DateOnly)), nil
	case "!!null":
		return jsonvalue.Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return jsonvalue.Null(), err
		}
		return jsonvalue.Bool(b), nil
	case "!!int", "!!float":
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return jsonvalue.Null(), fmt.Errorf("fixtures: number %q at line %d: %w", n.Value, n.Line, err)
		}
		return jsonvalue.Number(f), nil
	default:
		return jsonvalue.String(n.Value), nil
	}
}
