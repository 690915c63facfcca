package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// sniff detects the type of a local file. Anything that is not a plain
// file on disk (URLs, devices) is left for the demuxer to probe and
// reported as nil. The result is informational: text-based inputs such as
// SDP session files are valid demuxer input.
func sniff(path string) (*mimetype.MIME, error) {
	if strings.Contains(path, "://") {
		return nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("engine: %w", err)
		}
		return nil, nil
	}
	if !info.Mode().IsRegular() {
		return nil, nil
	}

	m, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine: detecting file type failed: %w", err)
	}
	return m, nil
}

// isText reports whether m is plain text or derives from it.
func isText(m *mimetype.MIME) bool {
	for p := m; p != nil; p = p.Parent() {
		if p.Is("text/plain") {
			return true
		}
	}
	return false
}
