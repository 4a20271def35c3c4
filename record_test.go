package csvjson

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOrder(t *testing.T) {
	t.Parallel()

	rec := NewRecord(0)
	rec.Set("z", 1)
	rec.Set("a", 2)
	rec.Set("z", 3)
	assert.Equal(t, []string{"z", "a"}, rec.Keys())
	assert.Equal(t, 2, rec.Len())

	v, ok := rec.Get("z")
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	rec.Delete("z")
	rec.Delete("missing")
	assert.Equal(t, []string{"a"}, rec.Keys())
	_, ok = rec.Get("z")
	assert.False(t, ok)
}

func TestRecordNil(t *testing.T) {
	t.Parallel()

	var rec *Record
	assert.Nil(t, rec.Keys())
	assert.Equal(t, 0, rec.Len())
	_, ok := rec.Get("a")
	assert.False(t, ok)
	assert.Empty(t, rec.Map())

	b, err := rec.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestRecordMarshalJSON(t *testing.T) {
	t.Parallel()

	rec := RecordOf("b", 1.5, "a", nil, "html", "<a&b>", "nested", map[string]any{"k": []any{true}})
	b, err := rec.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"b":1.5,"a":null,"html":"<a&b>","nested":{"k":[true]}}`, string(b))
}

func TestRecordMarshalJSONError(t *testing.T) {
	t.Parallel()

	_, err := json.Marshal(RecordOf("ch", make(chan int)))
	require.Error(t, err)
}

func TestRecordUnmarshalJSON(t *testing.T) {
	t.Parallel()

	var rec Record
	require.NoError(t, json.Unmarshal([]byte(`{"z":1,"a":"x","n":null,"o":{"p":[1,2]}}`), &rec))
	assert.Equal(t, []string{"z", "a", "n", "o"}, rec.Keys())
	assert.Equal(t, map[string]any{
		"z": 1.0,
		"a": "x",
		"n": nil,
		"o": map[string]any{"p": []any{1.0, 2.0}},
	}, rec.Map())

	for _, bad := range []string{`[1,2]`, `"s"`, `null`, `{"a":1} {"b":2}`, `{"a":`} {
		var r Record
		assert.Error(t, r.UnmarshalJSON([]byte(bad)), bad)
	}
}
