package widgets

import (
	"fmt"
	"strings"

	"github.com/briangreenhill/finboard/internal/format"
	"github.com/briangreenhill/finboard/pkg/fieldpath"
	"github.com/briangreenhill/finboard/pkg/jsonvalue"
)

// DefaultItemsPerPage is the table page size when the widget sets none
const DefaultItemsPerPage = 10

// labelKeys are tried in order when naming chart points
var labelKeys = []string{"date", "symbol", "name", "id", "title", "pair"}

// CardRow is one labelled value of a card widget
type CardRow struct {
	Label string          `json:"label"`
	Path  string          `json:"path"`
	Value string          `json:"value"`
	Raw   jsonvalue.Value `json:"raw"`
}

// Column describes one table column
type Column struct {
	Label  string `json:"label"`
	Path   string `json:"path"`
	Format string `json:"format,omitempty"`
}

// Table is one page of a table widget
type Table struct {
	Columns []Column   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Total   int        `json:"total"`
	Page    int        `json:"page"`
	PerPage int        `json:"perPage"`
	Pages   int        `json:"pages"`
}

// Dataset is one numeric series of a chart
type Dataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

// Chart holds labels and the series plotted against them
type Chart struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// resolve treats the empty path as the value itself
func resolve(v jsonvalue.Value, path string) jsonvalue.Value {
	if path == "" {
		return v
	}
	return fieldpath.Resolve(v, path)
}

// itemPath rewrites a path inferred through the first element of an array
// ("items[0].price") so it can be applied to each element ("price")
func itemPath(arrayPath, path string) string {
	if rest, ok := strings.CutPrefix(path, arrayPath+"[0]."); ok {
		return rest
	}
	return path
}

func hasData(w Widget) bool {
	return w.Data != nil && w.Data.Truthy() && len(w.SelectedFields) > 0
}

func firstOfType(fields []FieldMapping, typ string) (FieldMapping, bool) {
	for _, f := range fields {
		if f.Type == typ {
			return f, true
		}
	}
	return FieldMapping{}, false
}

// findRows locates the array a table or chart iterates. The root array
// wins, then the first selected array field, then the first array found in
// the document.
func findRows(w Widget) (jsonvalue.Value, string, bool) {
	data := *w.Data
	if data.Kind() == jsonvalue.KindArray {
		return data, "", true
	}
	if f, ok := firstOfType(w.SelectedFields, "array"); ok {
		arr := resolve(data, f.Path)
		return arr, f.Path, arr.Kind() == jsonvalue.KindArray
	}
	return fieldpath.FindFirstArray(data, fieldpath.DefaultSearchDepth)
}

// CardRows resolves every selected field against the widget data
func CardRows(w Widget) []CardRow {
	rows := make([]CardRow, 0, len(w.SelectedFields))
	if w.Data == nil {
		return rows
	}
	for _, f := range w.SelectedFields {
		v := resolve(*w.Data, f.Path)
		label := f.Label
		if label == "" {
			label = f.Path
		}
		rows = append(rows, CardRow{
			Label: format.Label(label),
			Path:  f.Path,
			Value: format.Value(v, f.Format),
			Raw:   v,
		})
	}
	return rows
}

// TableRows returns the rows a table widget shows, filtered by search.
// Data without any array is shown as a single row.
func TableRows(w Widget, search string) []jsonvalue.Value {
	if !hasData(w) {
		return []jsonvalue.Value{}
	}

	arr, arrayPath, ok := findRows(w)
	rows := []jsonvalue.Value{*w.Data}
	if ok {
		rows = arr.Elements()
	}

	if search == "" {
		return append([]jsonvalue.Value{}, rows...)
	}
	needle := strings.ToLower(search)
	out := []jsonvalue.Value{}
	for _, row := range rows {
		for _, f := range w.SelectedFields {
			v := resolve(row, itemPath(arrayPath, f.Path))
			if strings.Contains(strings.ToLower(v.Text()), needle) {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

// Paginate returns page (1-based) of rows and the page count. Pages past
// the end are empty; pages before the first are clamped.
func Paginate(rows []jsonvalue.Value, page, perPage int) ([]jsonvalue.Value, int) {
	if perPage <= 0 {
		perPage = DefaultItemsPerPage
	}
	pages := (len(rows) + perPage - 1) / perPage
	if page < 1 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= len(rows) {
		return []jsonvalue.Value{}, pages
	}
	end := min(start+perPage, len(rows))
	return rows[start:end], pages
}

// BuildTable formats one page of a table widget
func BuildTable(w Widget, search string, page int) Table {
	perPage := w.Config.ItemsPerPage
	if perPage <= 0 {
		perPage = DefaultItemsPerPage
	}
	if page < 1 {
		page = 1
	}

	arrayPath := ""
	if hasData(w) {
		if _, p, ok := findRows(w); ok {
			arrayPath = p
		}
	}

	all := TableRows(w, search)
	items, pages := Paginate(all, page, perPage)

	t := Table{
		Columns: make([]Column, 0, len(w.SelectedFields)),
		Rows:    make([][]string, 0, len(items)),
		Total:   len(all),
		Page:    page,
		PerPage: perPage,
		Pages:   pages,
	}
	for _, f := range w.SelectedFields {
		t.Columns = append(t.Columns, Column{Label: f.Label, Path: f.Path, Format: f.Format})
	}
	for _, item := range items {
		cells := make([]string, 0, len(w.SelectedFields))
		for _, f := range w.SelectedFields {
			cells = append(cells, format.Value(resolve(item, itemPath(arrayPath, f.Path)), f.Format))
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

// ChartSeries builds chart data for the widget. It reports false when the
// data has nothing to plot.
func ChartSeries(w Widget) (Chart, bool) {
	if !hasData(w) {
		return Chart{}, false
	}
	data := *w.Data

	if rates, ok := data.Get("rates"); ok && rates.Kind() == jsonvalue.KindObject {
		return rateSeries(w, rates)
	}

	var rows []jsonvalue.Value
	arrayPath := ""
	if series, ok := timeSeriesRows(data); ok {
		rows = series
	} else if arr, p, ok := findRows(w); ok {
		rows, arrayPath = arr.Elements(), p
	}
	if len(rows) == 0 {
		return Chart{}, false
	}

	var numeric []FieldMapping
	for _, f := range w.SelectedFields {
		if f.Type == "number" {
			numeric = append(numeric, f)
		}
	}
	if len(numeric) == 0 {
		return Chart{}, false
	}

	chart := Chart{Labels: make([]string, len(rows))}
	_, hasString := firstOfType(w.SelectedFields, "string")
	for i, row := range rows {
		if !hasString {
			chart.Labels[i] = fmt.Sprintf("Item %d", i+1)
			continue
		}
		chart.Labels[i] = pointLabel(w, row, arrayPath, i)
	}

	for _, f := range numeric {
		ds := Dataset{Label: f.Label, Data: make([]float64, len(rows))}
		for i, row := range rows {
			if n, ok := resolve(row, itemPath(arrayPath, f.Path)).AsNumber(); ok {
				ds.Data[i] = n
			}
		}
		chart.Datasets = append(chart.Datasets, ds)
	}
	return chart, true
}

// rateSeries plots selected "rates.XXX" numbers, one label per currency
func rateSeries(w Widget, rates jsonvalue.Value) (Chart, bool) {
	var fields []FieldMapping
	var currencies []string
	for _, f := range w.SelectedFields {
		if f.Type == "number" && strings.HasPrefix(f.Path, "rates.") {
			fields = append(fields, f)
			currencies = append(currencies, strings.TrimPrefix(f.Path, "rates."))
		}
	}
	if len(fields) == 0 {
		return Chart{}, false
	}

	chart := Chart{Labels: currencies}
	for _, f := range fields {
		ds := Dataset{Label: f.Label, Data: make([]float64, len(currencies))}
		for i, c := range currencies {
			if v, ok := rates.Get(c); ok {
				ds.Data[i], _ = v.AsNumber()
			}
		}
		chart.Datasets = append(chart.Datasets, ds)
	}
	return chart, true
}

// timeSeriesRows flattens an Alpha Vantage style object keyed by date
// into rows carrying a "date" member
func timeSeriesRows(data jsonvalue.Value) ([]jsonvalue.Value, bool) {
	for _, m := range data.Members() {
		if !strings.Contains(m.Key, "Time Series") && !strings.Contains(m.Key, "Technical Analysis") {
			continue
		}
		if m.Value.Kind() != jsonvalue.KindObject {
			return nil, false
		}
		rows := make([]jsonvalue.Value, 0, m.Value.Len())
		for _, entry := range m.Value.Members() {
			members := []jsonvalue.Member{{Key: "date", Value: jsonvalue.String(entry.Key)}}
			members = append(members, entry.Value.Members()...)
			rows = append(rows, jsonvalue.Object(members...))
		}
		return rows, true
	}
	return nil, false
}

func pointLabel(w Widget, row jsonvalue.Value, arrayPath string, i int) string {
	var label jsonvalue.Value
	for _, k := range labelKeys {
		if v, ok := row.Get(k); ok {
			label = v
			break
		}
	}

	if !label.Truthy() {
		if f, ok := labelField(w.SelectedFields); ok {
			label = resolve(row, itemPath(arrayPath, f.Path))
		}
	}
	if label.IsNull() {
		return fmt.Sprintf("Item %d", i+1)
	}
	return label.Text()
}

// labelField prefers a string field that looks like an identifier
func labelField(fields []FieldMapping) (FieldMapping, bool) {
	for _, f := range fields {
		if f.Type != "string" {
			continue
		}
		for _, hint := range []string{"symbol", "name", "id", "title"} {
			if strings.Contains(f.Path, hint) {
				return f, true
			}
		}
	}
	return firstOfType(fields, "string")
}
