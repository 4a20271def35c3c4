package csvjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		raw         []string
		rename      map[string]string
		stripPrefix bool
		want        []string
	}{
		{name: "trimmed", raw: []string{" a ", "b"}, want: []string{"a", "b"}},
		{name: "duplicates", raw: []string{"id", "id", "id"}, want: []string{"id", "id_2", "id_3"}},
		{name: "suffixCollision", raw: []string{"id", "id_2", "id"}, want: []string{"id", "id_2", "id_3"}},
		{name: "emptyNames", raw: []string{"", ""}, want: []string{"", "_2"}},
		{name: "renamed", raw: []string{"E-Mail"}, rename: map[string]string{"E-Mail": "email"}, want: []string{"email"}},
		{name: "renameCollision", raw: []string{"a", "b"}, rename: map[string]string{"b": "a"}, want: []string{"a", "a_2"}},
		{name: "prefixStripped", raw: []string{"'=x"}, stripPrefix: true, want: []string{"=x"}},
		{name: "prefixKept", raw: []string{"'=x"}, want: []string{"'=x"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, decodeHeaders(tc.raw, tc.rename, tc.stripPrefix))
		})
	}
}

func TestResolveHeaders(t *testing.T) {
	t.Parallel()

	recs := []*Record{RecordOf("b", 1, "a", 2), RecordOf("c", 3, "a", 4), nil}

	assert.Equal(t, []string{"b", "a", "c"}, ResolveHeaders(recs, EncodeOptions{}))
	assert.Equal(t, []string{"a", "x", "b", "c"}, ResolveHeaders(recs, EncodeOptions{Template: []string{"a", "x"}}))
	assert.Equal(t, []string{"c"}, ResolveHeaders(recs, EncodeOptions{Headers: []string{"c"}, Template: []string{"a"}}))
	assert.Empty(t, ResolveHeaders(nil, EncodeOptions{}))
}

func TestHeaderLine(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"ID", "name"}, headerLine([]string{"id", "name"}, map[string]string{"id": "ID"}))
}
