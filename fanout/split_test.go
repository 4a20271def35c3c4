package fanout

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	t.Parallel()

	data := []byte("a,b\n\"x\ny\",z\r\n3,4\n5,\"6\r\n7\"\n8,9")
	for n := 1; n <= 8; n++ {
		chunks := Split(data, n, ',')
		require.NotEmpty(t, chunks)

		var joined []byte
		line := 1
		for i, c := range chunks {
			assert.Equal(t, i, c.Index)
			assert.Equal(t, line, c.FirstLine, "n=%d chunk %d", n, i)
			assert.NotContains(t, []string{"y\",z", "7\""}, firstLineOf(c.Data), "n=%d chunk %d", n, i)
			line += countLines(c.Data)
			joined = append(joined, c.Data...)
		}
		assert.Equal(t, data, joined, "n=%d", n)
	}
}

func TestSplitEmpty(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Split(nil, 4, ','))
	assert.Len(t, Split([]byte("a\n"), 0, ','), 1)
}

func TestCountLines(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, countLines([]byte("abc")))
	assert.Equal(t, 3, countLines([]byte("a\nb\r\nc\rd")))
	assert.Equal(t, 2, countLines([]byte("\r\n\r\n")))
}

func firstLineOf(b []byte) string {
	if i := bytes.IndexAny(b, "\r\n"); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
