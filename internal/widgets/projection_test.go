package widgets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/finboard/fixtures"
	"github.com/briangreenhill/finboard/pkg/jsonvalue"
)

func widgetFor(t *testing.T, doc string, fields ...FieldMapping) Widget {
	t.Helper()
	v, err := jsonvalue.Parse([]byte(doc))
	require.NoError(t, err)
	return Widget{ID: "w", Draft: Draft{SelectedFields: fields}, Data: &v}
}

func fixtureWidget(url string, fields ...FieldMapping) Widget {
	v := fixtures.Default().Resolve(url, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC))
	return Widget{ID: "w", Draft: Draft{APIURL: url, SelectedFields: fields}, Data: &v}
}

func TestCardRows(t *testing.T) {
	w := fixtureWidget("mock://portfolio",
		FieldMapping{Path: "totalValue", Label: "total_value", Type: "number", Format: "currency"},
		FieldMapping{Path: "dayChangePercent", Label: "Day.Change", Type: "number", Format: "percentage"},
		FieldMapping{Path: "missing", Label: "Missing", Type: "string"},
	)

	rows := CardRows(w)
	require.Len(t, rows, 3)
	assert.Equal(t, CardRow{Label: "total value", Path: "totalValue", Value: "$125,000.00", Raw: jsonvalue.Number(125000)}, rows[0])
	assert.Equal(t, "Day Change", rows[1].Label)
	assert.Equal(t, "2.04%", rows[1].Value)
	assert.Equal(t, "N/A", rows[2].Value)
}

func TestTableRowsRootArray(t *testing.T) {
	w := fixtureWidget("mock://stock",
		FieldMapping{Path: "symbol", Label: "Symbol", Type: "string"},
		FieldMapping{Path: "price", Label: "Price", Type: "number", Format: "currency"},
	)

	assert.Len(t, TableRows(w, ""), 5)

	rows := TableRows(w, "ms")
	require.Len(t, rows, 1)
	assert.Equal(t, "MSFT", rows[0].Members()[0].Value.Text())

	assert.Len(t, TableRows(w, "2750"), 1, "numbers are searched as text")
	assert.Empty(t, TableRows(w, "zzz"))
}

func TestTableRowsFindsArrays(t *testing.T) {
	doc := `{"meta":{"count":2},"data":{"items":[{"name":"a"},{"name":"b"}]},"other":[1]}`

	t.Run("selected array field wins", func(t *testing.T) {
		w := widgetFor(t, doc,
			FieldMapping{Path: "other", Type: "array"},
		)
		assert.Len(t, TableRows(w, ""), 1)
	})

	t.Run("search falls back to first array in document order", func(t *testing.T) {
		w := widgetFor(t, doc, FieldMapping{Path: "data.items[0].name", Label: "Name", Type: "string"})
		rows := TableRows(w, "B")
		require.Len(t, rows, 1)

		table := BuildTable(w, "", 1)
		assert.Equal(t, [][]string{{"a"}, {"b"}}, table.Rows)
	})

	t.Run("selected array field that does not resolve falls back to one row", func(t *testing.T) {
		w := widgetFor(t, doc, FieldMapping{Path: "nope", Type: "array"})
		rows := TableRows(w, "")
		require.Len(t, rows, 1)
		assert.Equal(t, *w.Data, rows[0])
	})

	t.Run("no array is a single row", func(t *testing.T) {
		w := widgetFor(t, `{"a":1}`, FieldMapping{Path: "a", Type: "number"})
		assert.Len(t, TableRows(w, ""), 1)
	})

	t.Run("no fields or no data", func(t *testing.T) {
		assert.Empty(t, TableRows(widgetFor(t, `[1,2]`), ""))
		assert.Empty(t, TableRows(Widget{Draft: Draft{SelectedFields: []FieldMapping{{Path: "a"}}}}, ""))
	})
}

func TestPaginate(t *testing.T) {
	rows := make([]jsonvalue.Value, 23)
	for i := range rows {
		rows[i] = jsonvalue.Number(float64(i))
	}

	tests := []struct {
		name      string
		page      int
		perPage   int
		wantLen   int
		wantFirst string
		wantPages int
	}{
		{"first page", 1, 10, 10, "0", 3},
		{"last partial page", 3, 10, 3, "20", 3},
		{"past the end", 4, 10, 0, "", 3},
		{"clamped page", 0, 10, 10, "0", 3},
		{"default size", 1, 0, 10, "0", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, pages := Paginate(rows, tt.page, tt.perPage)
			assert.Len(t, items, tt.wantLen)
			assert.Equal(t, tt.wantPages, pages)
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantFirst, items[0].Text())
			}
		})
	}
}

func TestBuildTable(t *testing.T) {
	w := fixtureWidget("mock://stock",
		FieldMapping{Path: "[0].symbol", Label: "Symbol", Type: "string"},
		FieldMapping{Path: "[0].change", Label: "Change", Type: "number", Format: "number"},
	)
	w.Config.ItemsPerPage = 2

	table := BuildTable(w, "", 2)
	assert.Equal(t, []Column{{Label: "Symbol", Path: "[0].symbol"}, {Label: "Change", Path: "[0].change", Format: "number"}}, table.Columns)
	assert.Equal(t, [][]string{{"MSFT", "8.75"}, {"TSLA", "25.80"}}, table.Rows)
	assert.Equal(t, 5, table.Total)
	assert.Equal(t, 3, table.Pages)
	assert.Equal(t, 2, table.PerPage)
}

func TestChartSeriesFromArray(t *testing.T) {
	w := fixtureWidget("mock://crypto",
		FieldMapping{Path: "symbol", Label: "Symbol", Type: "string"},
		FieldMapping{Path: "price", Label: "Price", Type: "number"},
	)

	chart, ok := ChartSeries(w)
	require.True(t, ok)
	assert.Equal(t, []string{"BTC", "ETH", "BNB", "ADA", "SOL"}, chart.Labels)
	require.Len(t, chart.Datasets, 1)
	assert.Equal(t, Dataset{Label: "Price", Data: []float64{45000, 3200, 320, 0.45, 95}}, chart.Datasets[0])
}

func TestChartSeriesLabels(t *testing.T) {
	t.Run("without string fields labels are item numbers", func(t *testing.T) {
		w := fixtureWidget("mock://market-trends",
			FieldMapping{Path: "cryptoIndex", Label: "Crypto", Type: "number"},
			FieldMapping{Path: "stockIndex", Label: "Stocks", Type: "number"},
		)
		chart, ok := ChartSeries(w)
		require.True(t, ok)
		assert.Equal(t, []string{"Item 1", "Item 2", "Item 3", "Item 4", "Item 5"}, chart.Labels)
		assert.Len(t, chart.Datasets, 2)
	})

	t.Run("pair key is a label", func(t *testing.T) {
		w := fixtureWidget("mock://forex-pairs",
			FieldMapping{Path: "pair", Label: "Pair", Type: "string"},
			FieldMapping{Path: "rate", Label: "Rate", Type: "number"},
		)
		chart, ok := ChartSeries(w)
		require.True(t, ok)
		assert.Equal(t, "EUR/USD", chart.Labels[0])
	})

	t.Run("falls back to selected string field", func(t *testing.T) {
		w := widgetFor(t, `[{"ticker":"X","v":1},{"v":2}]`,
			FieldMapping{Path: "ticker", Type: "string"},
			FieldMapping{Path: "v", Label: "V", Type: "number"},
		)
		chart, ok := ChartSeries(w)
		require.True(t, ok)
		assert.Equal(t, []string{"X", "Item 2"}, chart.Labels)
	})

	t.Run("non numbers plot as zero", func(t *testing.T) {
		w := widgetFor(t, `[{"name":"a","v":"12"},{"name":"b","v":3}]`,
			FieldMapping{Path: "name", Type: "string"},
			FieldMapping{Path: "v", Label: "V", Type: "number"},
		)
		chart, _ := ChartSeries(w)
		assert.Equal(t, []float64{0, 3}, chart.Datasets[0].Data)
	})
}

func TestChartSeriesRates(t *testing.T) {
	w := fixtureWidget("mock://forex",
		FieldMapping{Path: "rates.EUR", Label: "EUR", Type: "number"},
		FieldMapping{Path: "rates.JPY", Label: "JPY", Type: "number"},
		FieldMapping{Path: "base", Label: "Base", Type: "string"},
	)
	chart, ok := ChartSeries(w)
	require.True(t, ok)
	assert.Equal(t, []string{"EUR", "JPY"}, chart.Labels)
	assert.Equal(t, []Dataset{
		{Label: "EUR", Data: []float64{0.85, 110.5}},
		{Label: "JPY", Data: []float64{0.85, 110.5}},
	}, chart.Datasets)

	// string rates have nothing numeric to plot
	_, ok = ChartSeries(fixtureWidget("mock://bitcoin", FieldMapping{Path: "currency", Type: "string"}))
	assert.False(t, ok)
}

func TestChartSeriesTimeSeries(t *testing.T) {
	w := widgetFor(t, `{
		"Meta Data":{"2. Symbol":"IBM"},
		"Time Series (Daily)":{
			"2024-03-08":{"close":151.2,"volume":10},
			"2024-03-07":{"close":150.1,"volume":12}
		}
	}`,
		FieldMapping{Path: "label", Type: "string"},
		FieldMapping{Path: "close", Label: "Close", Type: "number"},
	)

	chart, ok := ChartSeries(w)
	require.True(t, ok)
	assert.Equal(t, []string{"2024-03-08", "2024-03-07"}, chart.Labels)
	assert.Equal(t, []float64{151.2, 150.1}, chart.Datasets[0].Data)
}

func TestChartSeriesNothingToPlot(t *testing.T) {
	_, ok := ChartSeries(widgetFor(t, `{"a":"x"}`, FieldMapping{Path: "a", Type: "string"}))
	assert.False(t, ok)

	_, ok = ChartSeries(widgetFor(t, `[{"a":"x"}]`, FieldMapping{Path: "a", Type: "string"}))
	assert.False(t, ok, "no numeric fields")

	_, ok = ChartSeries(widgetFor(t, `{"items":[]}`, FieldMapping{Path: "n", Type: "number"}))
	assert.False(t, ok, "empty array")
}
