package csvjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferDelimiter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		sample     string
		candidates []byte
		want       byte
	}{
		{name: "comma", sample: "a,b,c\n1;2", want: ','},
		{name: "semicolon", sample: "a;b;c", want: ';'},
		{name: "tab", sample: "a\tb\tc,d", want: '\t'},
		{name: "pipe", sample: "a|b", want: '|'},
		{name: "onlyFirstLineCounts", sample: "a;b\n1,2,3,4,5", want: ';'},
		{name: "skipsLeadingBlankLines", sample: "\r\n\na,b", want: ','},
		{name: "tieFallsBack", sample: "a,b|c", want: ';'},
		{name: "noCandidateFallsBack", sample: "abc", want: ';'},
		{name: "emptyFallsBack", sample: "", want: ';'},
		{name: "customCandidates", sample: "a:b:c,d", candidates: []byte{':', ','}, want: ':'},
		{name: "restrictedCandidates", sample: "a,b,c;d", candidates: []byte{';'}, want: ';'},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, string(tc.want), string(InferDelimiter(tc.sample, tc.candidates)))
		})
	}
}

func TestFirstNonEmptyLine(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "x", firstNonEmptyLine("\n\r\nx\ny"))
	assert.Equal(t, "", firstNonEmptyLine("\n\n"))
	assert.Equal(t, "tail", firstNonEmptyLine("tail"))
}
