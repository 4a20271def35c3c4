package fanout

import "github.com/oleg578/csvjson"

// Chunk is a run of whole records cut from a larger input.
type Chunk struct {
	Index int
	Data  []byte
	// FirstLine is the 1-based physical line of Data[0] within the input.
	FirstLine int
}

// Split cuts data into at most about n chunks of similar size. Cuts only fall
// on record boundaries, so a quoted field spanning lines is never divided.
func Split(data []byte, n int, comma byte) []Chunk {
	if len(data) == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	target := max(1, len(data)/n)

	var chunks []Chunk
	start, line := 0, 1
	for start < len(data) {
		end := start
		for end < len(data) && end-start < target {
			end = csvjson.NextRecordBoundary(data, end, comma)
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Data: data[start:end], FirstLine: line})
		line += countLines(data[start:end])
		start = end
	}
	return chunks
}

// countLines counts line terminators; "\r\n" counts once.
func countLines(data []byte) int {
	n := 0
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case '\n':
			n++
		case '\r':
			n++
			if i+1 < len(data) && data[i+1] == '\n' {
				i++
			}
		}
	}
	return n
}
