package csvjson

import (
	"bytes"
	"io"
)

const defaultBufferSize = 1 << 10 // 1024 bytes

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// lineReader pulls physical lines from src through a fixed read buffer, so
// read-ahead never exceeds one buffer beyond the current partial line.
type lineReader struct {
	src io.Reader

	buf    []byte
	bufPos int
	bufLen int
	bufErr error

	pending []byte
	// line is the number of physical lines returned so far.
	line int
}

func newLineReader(src io.Reader, size int) *lineReader {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &lineReader{
		src:     src,
		buf:     make([]byte, size),
		pending: make([]byte, 0, 256),
	}
}

// readLine returns the next physical line without its terminator, and the
// terminator itself ("\n", "\r\n" or "\r"). A final line with no terminator
// is returned with an empty terminator; after that readLine returns io.EOF.
func (l *lineReader) readLine() (line, terminator string, err error) {
	l.pending = l.pending[:0]
	for {
		if l.bufPos >= l.bufLen {
			if l.bufErr != nil {
				if l.bufErr == io.EOF && len(l.pending) > 0 {
					return l.emit(), "", nil
				}
				return "", "", l.bufErr
			}
			if err := l.fill(); err != nil {
				return "", "", err
			}
			continue
		}

		data := l.buf[l.bufPos:l.bufLen]
		i := indexLineBreak(data)
		if i < 0 {
			l.pending = append(l.pending, data...)
			l.bufPos = l.bufLen
			continue
		}
		l.pending = append(l.pending, data[:i]...)
		l.bufPos += i + 1
		if data[i] == '\n' {
			return l.emit(), "\n", nil
		}

		// Support CRLF by peeking ahead for '\n', which may sit in the next read.
		next, err := l.peekByte()
		switch {
		case err == nil && next == '\n':
			l.bufPos++
			return l.emit(), "\r\n", nil
		case err != nil && err != io.EOF:
			return "", "", err
		}
		return l.emit(), "\r", nil
	}
}

// buffered returns the bytes already read from src but not yet consumed.
func (l *lineReader) buffered() string {
	return string(l.buf[l.bufPos:l.bufLen])
}

func (l *lineReader) emit() string {
	l.line++
	p := l.pending
	if l.line == 1 {
		p = bytes.TrimPrefix(p, utf8BOM)
	}
	s := string(p)
	l.pending = l.pending[:0]
	return s
}

// fill reads the next chunk from src. Reads returning no data and no error
// are retried, as io.Reader permits them.
func (l *lineReader) fill() error {
	for {
		n, err := l.src.Read(l.buf)
		if n > 0 {
			l.bufPos = 0
			l.bufLen = n
			l.bufErr = err
			return nil
		}
		if err != nil {
			l.bufPos, l.bufLen = 0, 0
			l.bufErr = err
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// peekByte returns the next buffered byte, refilling from src as needed.
func (l *lineReader) peekByte() (byte, error) {
	for {
		if l.bufPos < l.bufLen {
			return l.buf[l.bufPos], nil
		}
		if l.bufErr != nil {
			return 0, l.bufErr
		}
		if err := l.fill(); err != nil {
			return 0, err
		}
	}
}

func indexLineBreak(data []byte) int {
	i := bytes.IndexByte(data, '\n')
	j := bytes.IndexByte(data, '\r')
	if j >= 0 && (i < 0 || j < i) {
		return j
	}
	return i
}
