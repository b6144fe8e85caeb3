package fixtures

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/finboard/pkg/fieldpath"
	"github.com/briangreenhill/finboard/pkg/jsonvalue"
)

var fixedNow = time.Date(2024, 3, 9, 15, 4, 5, 0, time.UTC)

func TestIsMock(t *testing.T) {
	assert.True(t, IsMock("mock://stock"))
	assert.True(t, IsMock("mock://anything-else"))
	assert.False(t, IsMock("https://mock.example.com"))
	assert.False(t, IsMock("MOCK://stock"))
}

func TestDefaultListsEmbeddedFixtures(t *testing.T) {
	assert.Equal(t, []string{
		"mock://alphavantage",
		"mock://bitcoin",
		"mock://crypto",
		"mock://forex",
		"mock://forex-pairs",
		"mock://gainers",
		"mock://market-summary",
		"mock://market-trends",
		"mock://portfolio",
		"mock://stock",
	}, Default().List())
}

func TestStockFixture(t *testing.T) {
	v := Default().Resolve("mock://stock", fixedNow)
	require.Equal(t, jsonvalue.KindArray, v.Kind())
	require.Equal(t, 5, v.Len())

	for _, row := range v.Elements() {
		var keys []string
		for _, m := range row.Members() {
			keys = append(keys, m.Key)
		}
		assert.Equal(t, []string{"symbol", "price", "change", "changePercent", "volume", "marketCap"}, keys)
	}

	first := v.Index(0)
	assert.Equal(t, "AAPL", fieldpath.Resolve(first, "symbol").Text())
	assert.Equal(t, "150.25", fieldpath.Resolve(first, "price").Text())
	assert.Equal(t, "2500000000000", fieldpath.Resolve(first, "marketCap").Text())
	assert.Equal(t, "-15.2", fieldpath.Resolve(v.Index(1), "change").Text())
}

func TestFixtureValues(t *testing.T) {
	tests := []struct {
		url  string
		path string
		want string
		kind jsonvalue.Kind
	}{
		{"mock://bitcoin", "rates.USD", "45000.00", jsonvalue.KindString},
		{"mock://bitcoin", "currency", "BTC", jsonvalue.KindString},
		{"mock://forex", "date", "2024-03-09", jsonvalue.KindString},
		{"mock://forex", "rates.JPY", "110.5", jsonvalue.KindNumber},
		{"mock://alphavantage", "Global Quote.09. change", "null", jsonvalue.KindNull},
		{"mock://portfolio", "dayChangePercent", "2.04", jsonvalue.KindNumber},
		{"mock://market-summary", "fearGreedIndex", "65", jsonvalue.KindNumber},
	}

	for _, tt := range tests {
		t.Run(tt.url+" "+tt.path, func(t *testing.T) {
			got := fieldpath.Resolve(Default().Resolve(tt.url, fixedNow), tt.path)
			assert.Equal(t, tt.kind, got.Kind())
			assert.Equal(t, tt.want, got.Text())
		})
	}
}

func TestAlphaVantageQuote(t *testing.T) {
	v := Default().Resolve("mock://alphavantage", fixedNow)
	quote, ok := v.Get("Global Quote")
	require.True(t, ok)
	require.Equal(t, 10, quote.Len())

	day, _ := quote.Get("07. latest trading day")
	assert.Equal(t, "2024-03-09", day.Text())
	change, _ := quote.Get("09. change")
	assert.Equal(t, jsonvalue.String("+1.50"), change)
}

func TestGainersKeepsSmallNumbers(t *testing.T) {
	v := Default().Resolve("mock://gainers", fixedNow)
	price, _ := v.Index(1).Get("price")
	n, ok := price.AsNumber()
	require.True(t, ok)
	assert.InDelta(t, 0.0000085, n, 1e-12)
}

func TestPlaceholderForUnknownMock(t *testing.T) {
	r := NewRegistry()
	r.random = func() float64 { return 0.5 }

	v := r.Resolve("mock://nope", fixedNow)
	assert.Equal(t, Placeholder(fixedNow, 50), v)
	assert.Equal(t, `{"message":"Test data","timestamp":"2024-03-09T15:04:05.000Z","value":50,"status":"success"}`, v.Text())
}

func TestRegisterFunc(t *testing.T) {
	r := NewRegistry()
	r.Register(Func{Name: "mock://clock", Fn: func(now time.Time) jsonvalue.Value {
		return jsonvalue.Number(float64(now.Year()))
	}})

	f, ok := r.Get("mock://clock")
	require.True(t, ok)
	assert.Equal(t, "mock://clock", f.URL())
	assert.Equal(t, "2024", r.Resolve("mock://clock", fixedNow).Text())
}

func TestLoadRejectsBadDocuments(t *testing.T) {
	for _, doc := range []string{
		"- a\n- b\n",
		"http://x: 1\n",
		"mock://x: [\n",
	} {
		_, err := Load([]byte(doc))
		assert.Error(t, err, doc)
	}
}

func TestLoadBooleansAndNulls(t *testing.T) {
	r, err := Load([]byte("\"mock://x\":\n  ok: true\n  none: null\n  when: 2024-01-01\n"))
	require.NoError(t, err)
	v := r.Resolve("mock://x", fixedNow)
	assert.Equal(t, `{"ok":true,"none":null,"when":"2024-01-01"}`, v.Text())
}
