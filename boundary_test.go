package csvjson

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRecordBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		from int
		want int
	}{
		{name: "firstRecord", data: "a,b\nc,d\n", want: 4},
		{name: "secondRecord", data: "a,b\nc,d\n", from: 4, want: 8},
		{name: "quotedNewline", data: "\"a\nb\",c\nd\n", want: 8},
		{name: "crlf", data: "a\r\nb", want: 3},
		{name: "bareCR", data: "a\rb", want: 2},
		{name: "trailingBackslash", data: "a\\\nb", want: 3},
		{name: "escapedQuote", data: "\\\"a\nb", want: 4},
		{name: "quoteMidField", data: "a\"b\nc", want: 4},
		{name: "closedQuoteThenNewline", data: "\"a\"\nb", want: 4},
		{name: "doubledQuote", data: "\"a\"\"\nb\"\nc", want: 8},
		{name: "unterminated", data: "\"a\nb", want: 4},
		{name: "noTerminator", data: "abc", want: 3},
		{name: "atEnd", data: "abc", from: 3, want: 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, NextRecordBoundary([]byte(tc.data), tc.from, ','))
		})
	}
}

func TestNextRecordBoundaryMatchesReader(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"a,b\n\"x\ny\",z\r\n\\\"q,\"r\"\"s\"\nlast",
		"h1;h2\r\n\"a;b\";c\r\n\r\nd;\"e\r\nf\"\r\n",
		"\"ab\"c\",d\ne,f\n",
	}
	for _, input := range inputs {
		comma := InferDelimiter(input, nil)
		want, err := DecodeRows(strings.NewReader(input), rowOptions(comma))
		require.NoError(t, err)

		var got [][]string
		data := []byte(input)
		for start := 0; start < len(data); {
			end := NextRecordBoundary(data, start, comma)
			if strings.TrimLeft(string(data[start:end]), "\r\n") != "" {
				fields, err := Tokenize(string(data[start:end]), comma)
				require.NoError(t, err)
				got = append(got, fields)
			}
			start = end
		}
		assert.Equal(t, want, got, "input %q", input)
	}
}
