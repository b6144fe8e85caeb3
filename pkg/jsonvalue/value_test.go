package jsonvalue

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeepsMemberOrder(t *testing.T) {
	v, err := Parse([]byte(`{"zeta":1,"alpha":{"b":true,"a":null},"mid":"x"}`))
	require.NoError(t, err)
	require.Equal(t, KindObject, v.Kind())

	var keys []string
	for _, m := range v.Members() {
		keys = append(keys, m.Key)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, keys)

	alpha, ok := v.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "b", alpha.Members()[0].Key)
	assert.Equal(t, "a", alpha.Members()[1].Key)
}

func TestParseScalars(t *testing.T) {
	tests := []struct {
		in   string
		kind Kind
		text string
	}{
		{`"hello"`, KindString, "hello"},
		{`42`, KindNumber, "42"},
		{`-0.55`, KindNumber, "-0.55"},
		{`2500000000000`, KindNumber, "2500000000000"},
		{`true`, KindBool, "true"},
		{`null`, KindNull, "null"},
	}

	for _, tt := range tests {
		v, err := Parse([]byte(tt.in))
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.kind, v.Kind(), tt.in)
		assert.Equal(t, tt.text, v.Text(), tt.in)
	}
}

func TestParseDuplicateKeyKeepsFirstPosition(t *testing.T) {
	v, err := Parse([]byte(`{"a":1,"b":2,"a":3}`))
	require.NoError(t, err)
	require.Equal(t, 2, v.Len())
	assert.Equal(t, "a", v.Members()[0].Key)
	n, _ := v.Members()[0].Value.AsNumber()
	assert.Equal(t, 3.0, n)
}

func TestParseWideObject(t *testing.T) {
	const n = 50000
	var b strings.Builder
	b.WriteByte('{')
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `"k%d":%d`, i, i)
	}
	b.WriteString(`,"k0":-1}`)

	start := time.Now()
	v, err := Parse([]byte(b.String()))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Equal(t, n, v.Len())
	first := v.Members()[0]
	assert.Equal(t, "k0", first.Key)
	assert.Equal(t, "-1", first.Value.Text())
	assert.Equal(t, fmt.Sprintf("k%d", n-1), v.Members()[n-1].Key)
}

func TestObjectDuplicateKeys(t *testing.T) {
	v := Object(
		Member{Key: "a", Value: String("1")},
		Member{Key: "b", Value: String("2")},
		Member{Key: "a", Value: String("3")},
	)
	require.Equal(t, 2, v.Len())
	assert.Equal(t, "a", v.Members()[0].Key)
	assert.Equal(t, "3", v.Members()[0].Value.Text())
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{``, `{`, `[1,2`, `{"a":1}{}`, `{"a" 1}`, `nope`} {
		_, err := Parse([]byte(in))
		assert.Error(t, err, "input %q", in)
	}
}

func TestMarshalRoundTripPreservesOrder(t *testing.T) {
	in := `{"symbol":"AAPL","price":150.25,"tags":["a","b"],"meta":{"ok":true,"note":null},"html":"<b>&</b>"}`
	v, err := Parse([]byte(in))
	require.NoError(t, err)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, in, string(out))
}

func TestUnmarshalIntoStructField(t *testing.T) {
	var holder struct {
		Data Value `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"data":[1,{"x":2}]}`), &holder))
	assert.Equal(t, KindArray, holder.Data.Kind())
	assert.Equal(t, 2, holder.Data.Len())
	x, ok := holder.Data.Index(1).Get("x")
	require.True(t, ok)
	assert.Equal(t, "2", x.Text())
}

func TestConstructorsMatchParsedValues(t *testing.T) {
	parsed, err := Parse([]byte(`{"a":[1,"two"],"b":{}}`))
	require.NoError(t, err)

	built := Object(
		Member{Key: "a", Value: Array(Number(1), String("two"))},
		Member{Key: "b", Value: Object()},
	)
	assert.Equal(t, built, parsed)
}

func TestSliceAndWith(t *testing.T) {
	arr := Array(Number(1), Number(2), Number(3), Number(4))
	assert.Equal(t, Array(Number(1), Number(2), Number(3)), arr.Slice(3))
	assert.Equal(t, Array(Number(1)), Array(Number(1)).Slice(3))
	assert.True(t, String("x").Slice(3).IsNull())

	obj := Object(Member{Key: "date", Value: String("old")}, Member{Key: "k", Value: Bool(true)})
	updated := obj.With("date", String("new"))
	got, _ := updated.Get("date")
	assert.Equal(t, "new", got.Text())
	orig, _ := obj.Get("date")
	assert.Equal(t, "old", orig.Text(), "With must not mutate the receiver")
}

func TestTruthy(t *testing.T) {
	assert.False(t, Null().Truthy())
	assert.False(t, String("").Truthy())
	assert.False(t, Number(0).Truthy())
	assert.True(t, Number(-1).Truthy())
	assert.True(t, Object().Truthy())
}
