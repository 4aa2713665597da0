package providers

import (
	"bufio"
	"bytes"
	"io"
)

// maxSSELineSize bounds a single SSE line; the default bufio limit of 64KiB
// is too small for some usage payloads.
const maxSSELineSize = 1 << 20

// SSEScanner scans Server-Sent Events (SSE) streams
type SSEScanner struct {
	scanner *bufio.Scanner
	data    string
	err     error
}

// NewSSEScanner creates a new SSE scanner
func NewSSEScanner(r io.Reader) *SSEScanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &SSEScanner{
		scanner: scanner,
	}
}

// Scan advances to the next SSE data event
func (s *SSEScanner) Scan() bool {
	for s.scanner.Scan() {
		line := s.scanner.Bytes()

		// Skip empty lines (event boundaries)
		if len(line) == 0 {
			continue
		}

		if data, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			s.data = string(bytes.TrimPrefix(data, []byte(" ")))
			return true
		}
	}

	s.err = s.scanner.Err()
	return false
}

// Data returns the current event data
func (s *SSEScanner) Data() string {
	return s.data
}

// Err returns any scanning error
func (s *SSEScanner) Err() error {
	return s.err
}
