package harvest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	errs "tweetharvest/pkg/errors"
	"tweetharvest/pkg/storage"
)

// NewRunID returns a fresh identifier for one batch invocation
func NewRunID() string {
	return uuid.NewString()
}

// ReadKeys loads query keys from path. A missing file is a configuration error.
func ReadKeys(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.ErrorTypeConfig, 0, "query file %s not found", path)
		}
		return nil, fmt.Errorf("failed to open query file: %w", err)
	}
	defer f.Close()

	keys, err := ParseKeys(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read query file %s: %w", path, err)
	}
	return keys, nil
}

// ParseKeys reads one key per line. Lines are trimmed; blank lines and
// comments are skipped. A comment is a lone "#" or "#" followed by
// whitespace, so hashtag keys such as "#golang" are kept.
func ParseKeys(r io.Reader) ([]string, error) {
	var keys []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || isComment(line) {
			continue
		}
		keys = append(keys, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func isComment(line string) bool {
	if !strings.HasPrefix(line, "#") {
		return false
	}
	if len(line) == 1 {
		return true
	}
	return line[1] == ' ' || line[1] == '\t'
}

// Dedupe drops repeated keys, keeping the first occurrence. It returns the
// unique keys in input order and how many duplicates were removed.
func Dedupe(keys []string) ([]string, int) {
	seen := mapset.NewThreadUnsafeSetWithSize[string](len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if !seen.Add(k) {
			continue
		}
		out = append(out, k)
	}
	return out, len(keys) - len(out)
}

// WriteKeys writes keys to path, one per line, replacing the file atomically
func WriteKeys(path string, keys []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create key file directory: %w", err)
	}

	var buf bytes.Buffer
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteByte('\n')
	}
	if err := storage.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}
