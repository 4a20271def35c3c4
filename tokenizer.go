package csvjson

import "strings"

type tokenState uint8

const (
	stateUnquoted tokenState = iota
	stateQuoted
	stateQuotedMaybeEnd
)

// rowTokenizer is the quote-aware state machine. It consumes one physical
// line per feed call and keeps its state when a quoted field spans lines.
type rowTokenizer struct {
	comma byte

	state        tokenState
	atFieldStart bool
	fields       []string
	field        []byte

	// lines counts physical lines fed into the current record.
	lines int
	// position of the quote that opened the current quoted field.
	quoteLine   int
	quoteColumn int
}

func newRowTokenizer(comma byte) *rowTokenizer {
	t := &rowTokenizer{
		comma: comma,
		field: make([]byte, 0, 64),
	}
	t.reset()
	return t
}

// reset prepares the tokenizer for a new record.
func (t *rowTokenizer) reset() {
	t.state = stateUnquoted
	t.atFieldStart = true
	t.fields = make([]string, 0, cap(t.fields))
	t.field = t.field[:0]
	t.lines = 0
	t.quoteLine = 0
	t.quoteColumn = 0
}

// inQuotes reports whether the record is waiting for the next physical line.
func (t *rowTokenizer) inQuotes() bool {
	return t.state == stateQuoted
}

// feed tokenizes one physical line without its terminator. It reports whether
// the logical record is complete. When it is not, the caller passes the line
// terminator to continueLine and feeds the next physical line.
func (t *rowTokenizer) feed(line string) bool {
	t.lines++
	comma := t.comma

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch t.state {
		case stateUnquoted:
			switch {
			case c == comma:
				t.emit()
			case c == '"' && t.atFieldStart:
				t.state = stateQuoted
				t.atFieldStart = false
				t.quoteLine = t.lines
				t.quoteColumn = i + 1
			case c == '\\':
				t.atFieldStart = false
				if i+1 < len(line) {
					i++
					t.field = append(t.field, line[i])
				} else {
					// Trailing backslash is kept literally.
					t.field = append(t.field, c)
				}
			default:
				t.atFieldStart = false
				// Copy the plain run up to the next byte of interest.
				run := i + 1
				for run < len(line) {
					b := line[run]
					if b == comma || b == '\\' {
						break
					}
					run++
				}
				t.field = append(t.field, line[i:run]...)
				i = run - 1
			}
		case stateQuoted:
			if c == '"' {
				t.state = stateQuotedMaybeEnd
				continue
			}
			end := strings.IndexByte(line[i:], '"')
			if end < 0 {
				t.field = append(t.field, line[i:]...)
				i = len(line)
				continue
			}
			t.field = append(t.field, line[i:i+end]...)
			i += end - 1
		case stateQuotedMaybeEnd:
			switch c {
			case '"':
				// RFC-4180 doubled quote.
				t.field = append(t.field, '"')
				t.state = stateQuoted
			case comma:
				t.state = stateUnquoted
				t.emit()
			default:
				// Lenient recovery: the quote was literal.
				t.field = append(t.field, '"', c)
				t.state = stateQuoted
			}
		}
	}

	switch t.state {
	case stateQuoted:
		return false
	case stateQuotedMaybeEnd:
		t.state = stateUnquoted
	}
	t.emit()
	return true
}

// continueLine appends the physical line terminator that fell inside a
// quoted field.
func (t *rowTokenizer) continueLine(terminator string) {
	t.field = append(t.field, terminator...)
}

func (t *rowTokenizer) emit() {
	t.fields = append(t.fields, string(t.field))
	t.field = t.field[:0]
	t.atFieldStart = true
}

// unterminated builds the error for a quote still open at end of input.
// startLine is the physical line number of the record's first line.
func (t *rowTokenizer) unterminated(startLine int) error {
	return &ParsingError{
		Line:   startLine + t.quoteLine - 1,
		Column: t.quoteColumn,
		Field:  len(t.fields) + 1,
		Err:    ErrUnterminatedQuote,
	}
}

// Tokenize splits a single logical record with the quote-aware rules.
// Line terminators inside quoted fields are kept verbatim; text after the
// end of the first record is ignored.
func Tokenize(record string, comma byte) ([]string, error) {
	t := newRowTokenizer(comma)
	rest := record
	for {
		line, term, next := cutLine(rest)
		if t.feed(line) {
			return t.fields, nil
		}
		if term == "" {
			return nil, t.unterminated(1)
		}
		t.continueLine(term)
		rest = next
	}
}

// cutLine splits s at the first "\r\n", "\n" or "\r".
func cutLine(s string) (line, terminator, rest string) {
	i := strings.IndexAny(s, "\r\n")
	if i < 0 {
		return s, "", ""
	}
	if s[i] == '\r' && i+1 < len(s) && s[i+1] == '\n' {
		return s[:i], s[i : i+2], s[i+2:]
	}
	return s[:i], s[i : i+1], s[i+1:]
}
