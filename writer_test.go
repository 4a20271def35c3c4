package csvjson

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterWrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		records []*Record
		config  func(*EncodeOptions)
		want    string
	}{
		{
			name:    "basic",
			records: []*Record{RecordOf("a", "x", "b", 1)},
			want:    "a;b\r\nx;1\r\n",
		},
		{
			name: "multipleRecords",
			records: []*Record{
				RecordOf("a", "alpha", "b", "beta"),
				RecordOf("a", "gamma", "b", "delta"),
			},
			want: "a;b\r\nalpha;beta\r\ngamma;delta\r\n",
		},
		{
			name:    "nullAndMissing",
			records: []*Record{RecordOf("a", nil, "b", "x"), RecordOf("b", "y")},
			want:    "a;b\r\n;x\r\n;y\r\n",
		},
		{
			name:    "delimiterForcesQuote",
			records: []*Record{RecordOf("k", "alpha;beta")},
			want:    "k\r\n\"alpha;beta\"\r\n",
		},
		{
			name:    "quoteEscaping",
			records: []*Record{RecordOf("k", `he said "hello"`, "v", "plain")},
			want:    "k;v\r\n\"he said \"\"hello\"\"\";plain\r\n",
		},
		{
			name:    "newlineForcesQuote",
			records: []*Record{RecordOf("k", "multi\nline", "v", "z")},
			want:    "k;v\r\n\"multi\nline\";z\r\n",
		},
		{
			name:    "backslashForcesQuote",
			records: []*Record{RecordOf("k", `C:\tmp`)},
			want:    "k\r\n\"C:\\tmp\"\r\n",
		},
		{
			name:    "loneEmptyField",
			records: []*Record{RecordOf("k", "")},
			want:    "k\r\n\"\"\r\n",
		},
		{
			name:    "numbersAndBooleans",
			records: []*Record{RecordOf("f", 1.5, "big", 1e21, "neg", -5, "ok", true)},
			want:    "f;big;neg;ok\r\n1.5;1000000000000000000000;-5;true\r\n",
		},
		{
			name:    "nestedValueAsJSON",
			records: []*Record{RecordOf("k", map[string]any{"n": 1})},
			want:    "k\r\n\"{\"\"n\"\":1}\"\r\n",
		},
		{
			name:    "customComma",
			records: []*Record{RecordOf("a", "x,y", "b", "z")},
			config: func(o *EncodeOptions) {
				o.Delimiter = ','
			},
			want: "a,b\r\n\"x,y\",z\r\n",
		},
		{
			name:    "lineFeedOnly",
			records: []*Record{RecordOf("a", "1"), RecordOf("a", "2")},
			config: func(o *EncodeOptions) {
				o.RFC4180Compliant = false
			},
			want: "a\n1\n2\n",
		},
		{
			name:    "withoutHeaders",
			records: []*Record{RecordOf("a", "1", "b", "2")},
			config: func(o *EncodeOptions) {
				o.IncludeHeaders = false
			},
			want: "1;2\r\n",
		},
		{
			name:    "explicitHeadersDropOthers",
			records: []*Record{RecordOf("a", "1", "b", "2", "c", "3")},
			config: func(o *EncodeOptions) {
				o.Headers = []string{"c", "a"}
			},
			want: "c;a\r\n3;1\r\n",
		},
		{
			name:    "templateLeads",
			records: []*Record{RecordOf("a", "1", "b", "2")},
			config: func(o *EncodeOptions) {
				o.Template = []string{"b", "z"}
			},
			want: "b;z;a\r\n2;;1\r\n",
		},
		{
			name:    "renamedHeaderLine",
			records: []*Record{RecordOf("email", "x@y")},
			config: func(o *EncodeOptions) {
				o.RenameMap = map[string]string{"email": "E-Mail"}
			},
			want: "E-Mail\r\nx@y\r\n",
		},
		{
			name:    "formulaNeutralized",
			records: []*Record{RecordOf("k", "=SUM(A1)", "n", "-5", "m", -5)},
			want:    "k;n;m\r\n'=SUM(A1);'-5;-5\r\n",
		},
		{
			name:    "formulaHeaderNeutralized",
			records: []*Record{RecordOf("@user", "x")},
			want:    "'@user\r\nx\r\n",
		},
		{
			name:    "bidiControlsStripped",
			records: []*Record{RecordOf("k", "\u202E=cmd")},
			want:    "k\r\n'=cmd\r\n",
		},
		{
			name:    "protectionOff",
			records: []*Record{RecordOf("k", "=1+1")},
			config: func(o *EncodeOptions) {
				o.PreventCSVInjection = false
			},
			want: "k\r\n=1+1\r\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			opts := DefaultEncodeOptions()
			if tc.config != nil {
				tc.config(&opts)
			}
			var buf bytes.Buffer
			w, err := NewWriter(&buf, opts)
			require.NoError(t, err)
			for _, rec := range tc.records {
				require.NoError(t, w.Write(rec))
			}
			require.NoError(t, w.Flush())
			assert.Equal(t, tc.want, buf.String())
		})
	}
}

func TestWriterFirstRecordFixesColumns(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w, err := NewWriter(&buf, DefaultEncodeOptions())
	require.NoError(t, err)
	require.NoError(t, w.Write(RecordOf("a", "1")))
	require.NoError(t, w.Write(RecordOf("a", "2", "b", "dropped")))
	require.NoError(t, w.Flush())

	assert.Equal(t, "a\r\n1\r\n2\r\n", buf.String())
	assert.Equal(t, []string{"a"}, w.Headers())
	assert.Equal(t, 2, w.Count())
}

func TestEncodeUnionHeaders(t *testing.T) {
	t.Parallel()

	out, err := Encode([]*Record{RecordOf("a", 1), RecordOf("b", 2), RecordOf("a", 3, "c", 4)}, DefaultEncodeOptions())
	require.NoError(t, err)
	assert.Equal(t, "a;b;c\r\n1;;\r\n;2;\r\n3;;4\r\n", string(out))
}

func TestWriterRejectPolicy(t *testing.T) {
	t.Parallel()

	opts := DefaultEncodeOptions()
	opts.InjectionPolicy = InjectionReject

	var buf bytes.Buffer
	w, err := NewWriter(&buf, opts)
	require.NoError(t, err)

	err = w.Write(RecordOf("cmd", "+cmd|' /C calc'!A0"))
	require.ErrorIs(t, err, ErrUnsafeValue)
	var serr *SecurityError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "cmd", serr.Field)

	// The stream stays usable after a rejected value.
	require.NoError(t, w.Write(RecordOf("cmd", "safe")))
	require.NoError(t, w.Flush())
	assert.Equal(t, "cmd\r\nsafe\r\n", buf.String())
}

func TestWriterMaxRecords(t *testing.T) {
	t.Parallel()

	opts := DefaultEncodeOptions()
	opts.MaxRecords = 2

	var buf bytes.Buffer
	w, err := NewWriter(&buf, opts)
	require.NoError(t, err)
	require.NoError(t, w.Write(RecordOf("n", 1)))
	require.NoError(t, w.Write(RecordOf("n", 2)))

	err = w.Write(RecordOf("n", 3))
	require.ErrorIs(t, err, ErrLimitExceeded)
	var lerr *LimitError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, 2, lerr.Limit)
	assert.Equal(t, 3, lerr.Actual)

	require.ErrorIs(t, w.Write(RecordOf("n", 4)), ErrLimitExceeded)
	require.NoError(t, w.Flush())
	assert.Equal(t, "n\r\n1\r\n2\r\n", buf.String())
}

type failingWriter struct {
	err error
}

func (w failingWriter) Write([]byte) (int, error) {
	return 0, w.err
}

func TestWriterFlushError(t *testing.T) {
	t.Parallel()

	expected := errors.New("flush failure")
	w, err := NewWriter(failingWriter{err: expected}, DefaultEncodeOptions())
	require.NoError(t, err)
	require.NoError(t, w.Write(RecordOf("a", "b")))

	require.ErrorIs(t, w.Flush(), expected)
	require.ErrorIs(t, w.Error(), expected)
	require.ErrorIs(t, w.Write(RecordOf("a", "c")), expected)
}

func TestNewWriterValidation(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { _, _ = NewWriter(nil, DefaultEncodeOptions()) })

	for _, opts := range []EncodeOptions{
		{Delimiter: '\\'},
		{MaxRecords: -1},
		{ChunkSize: -1},
		{Template: []string{"a", "a"}},
		{InjectionPolicy: InjectionPolicy(7)},
	} {
		_, err := NewWriter(&bytes.Buffer{}, opts)
		require.ErrorIs(t, err, ErrConfiguration)
	}
}

func TestEncodeChunks(t *testing.T) {
	t.Parallel()

	var recs []*Record
	for i := 0; i < 50; i++ {
		recs = append(recs, RecordOf("id", i, "name", "row"))
	}
	opts := DefaultEncodeOptions()
	opts.ChunkSize = 32

	want, err := Encode(recs, opts)
	require.NoError(t, err)

	var got []byte
	var chunks [][]byte
	for chunk, err := range EncodeChunks(sliceSeq(recs), opts) {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
		got = append(got, chunk...)
	}
	assert.Equal(t, string(want), string(got))
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks[:len(chunks)-1] {
		assert.GreaterOrEqual(t, len(c), 32)
	}
}

func TestEncodeChunksIsLazy(t *testing.T) {
	t.Parallel()

	pulled := 0
	records := func(yield func(*Record) bool) {
		for i := 0; i < 10000; i++ {
			pulled++
			if !yield(RecordOf("v", strings.Repeat("x", 10))) {
				return
			}
		}
	}
	opts := DefaultEncodeOptions()
	opts.ChunkSize = 64

	for chunk, err := range EncodeChunks(records, opts) {
		require.NoError(t, err)
		require.NotEmpty(t, chunk)
		break
	}
	assert.Less(t, pulled, 20)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	values := []any{
		"plain",
		"=HYPERLINK(\"x\")",
		"@mention",
		"semi;colon",
		"comma,separated",
		"multi\r\nline",
		`say "hi"`,
		`back\slash`,
		"tab\tinside",
		nil,
	}
	var recs []*Record
	for i, v := range values {
		recs = append(recs, RecordOf("id", float64(i), "value", v))
	}

	for _, tsv := range []bool{false, true} {
		enc, dec := DefaultEncodeOptions(), DefaultDecodeOptions()
		if tsv {
			enc, dec = DefaultTSVEncodeOptions(), DefaultTSVDecodeOptions()
		}
		dec.ParseNumbers = true

		out, err := Encode(recs, enc)
		require.NoError(t, err)
		back, err := Decode(bytes.NewReader(out), dec)
		require.NoError(t, err)
		require.Len(t, back, len(recs))
		for i := range recs {
			assert.Equal(t, recs[i].Map(), back[i].Map(), "tsv=%v record %d", tsv, i)
		}
	}
}

func sliceSeq(recs []*Record) func(func(*Record) bool) {
	return func(yield func(*Record) bool) {
		for _, r := range recs {
			if !yield(r) {
				return
			}
		}
	}
}
