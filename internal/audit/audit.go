// Package audit keeps a verbatim copy of every routed raw message on disk,
// named by topic and time, for replay and debugging. Written independently
// of decode success.
package audit

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Writer struct {
	dir string
}

func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		dir = "notices"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create dir %s: %w", dir, err)
	}
	return &Writer{dir: dir}, nil
}

// Write stores the payload in its native encoding and returns the file path.
// The timestamp is the event's observed time when known, otherwise the
// receive time.
func (w *Writer) Write(topic string, ts time.Time, payload []byte) (string, error) {
	ext := ".json"
	if trimmed := bytes.TrimLeft(payload, " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '<' {
		ext = ".xml"
	}
	name := fmt.Sprintf("%s_%s%s", topic, ts.UTC().Format("20060102T150405.000000000"), ext)
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("audit: write %s: %w", path, err)
	}
	return path, nil
}
