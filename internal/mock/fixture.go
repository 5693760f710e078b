package mock

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"lasersell-stream/internal/proto"
)

// LoadFixture reads server events from a json-lines file. Blank lines and lines
// starting with # are skipped.
func LoadFixture(path string) ([]proto.ServerMessage, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadFixture(file)
}

func ReadFixture(r io.Reader) ([]proto.ServerMessage, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var out []proto.ServerMessage
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 || text[0] == '#' {
			continue
		}
		msg, err := proto.DecodeServerMessage(text)
		if err != nil {
			return nil, fmt.Errorf("fixture line %d: %w", line, err)
		}
		out = append(out, msg)
	}
	return out, scanner.Err()
}
