package csvjson

// NextRecordBoundary returns the offset of the first byte after the logical
// record that starts at data[from], or len(data) when the record runs to the
// end of data. from must be a record start; line breaks inside quoted fields
// do not end a record, exactly as for the quote-aware tokenizer.
func NextRecordBoundary(data []byte, from int, comma byte) int {
	state := stateUnquoted
	atFieldStart := true
	for i := from; i < len(data); i++ {
		c := data[i]
		switch state {
		case stateUnquoted:
			switch {
			case c == '\n':
				return i + 1
			case c == '\r':
				return crlfEnd(data, i)
			case c == comma:
				atFieldStart = true
			case c == '"' && atFieldStart:
				state = stateQuoted
				atFieldStart = false
			case c == '\\':
				atFieldStart = false
				if i+1 < len(data) && data[i+1] != '\n' && data[i+1] != '\r' {
					i++
				}
			default:
				atFieldStart = false
			}
		case stateQuoted:
			if c == '"' {
				state = stateQuotedMaybeEnd
			}
		case stateQuotedMaybeEnd:
			switch c {
			case '\n':
				return i + 1
			case '\r':
				return crlfEnd(data, i)
			case comma:
				state = stateUnquoted
				atFieldStart = true
			default:
				state = stateQuoted
			}
		}
	}
	return len(data)
}

func crlfEnd(data []byte, i int) int {
	if i+1 < len(data) && data[i+1] == '\n' {
		return i + 2
	}
	return i + 1
}
