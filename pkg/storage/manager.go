package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Format selects how page artifacts are written
type Format string

const (
	// FormatJSON stores the raw response body
	FormatJSON Format = "json"
	// FormatCSV stores the page's records flattened into columns
	FormatCSV Format = "csv"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want json or csv)", s)
	}
}

// Manager writes page artifacts under one directory
type Manager struct {
	outputDir string
	format    Format
}

// NewManager creates a new storage manager
func NewManager(outputDir string, format Format) (*Manager, error) {
	if format == "" {
		format = FormatJSON
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Manager{outputDir: outputDir, format: format}, nil
}

// SafeName maps a query key to a string usable in file names. Keys made
// only of letters, digits, '_' and '.' are used as they are. Any other key
// has its remaining runes replaced by '_' and gets a '-' plus a digest of
// the raw key appended, so keys that sanitize alike ("#go", "@go") still
// get distinct names. Unchanged names never contain '-'.
func SafeName(key string) string {
	var sb strings.Builder
	changed := key == "" || key == "." || key == ".."
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
			changed = true
		}
	}
	if !changed {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	return "_" + sb.String() + "-" + hex.EncodeToString(sum[:])[:keyDigestLen]
}

// keyDigestLen is how many hex digits of the key digest a sanitized name carries
const keyDigestLen = 12

func artifactStem(key string, index int) string {
	return SafeName(key) + "_" + strconv.Itoa(index)
}

// ArtifactPath returns where page index of key is stored
func (m *Manager) ArtifactPath(key string, index int) string {
	return filepath.Join(m.outputDir, artifactStem(key, index)+"."+string(m.format))
}

// SavePage writes one page artifact and returns its path. An existing
// artifact for the same key and index is replaced atomically.
func (m *Manager) SavePage(key string, index int, body []byte, records []json.RawMessage) (string, error) {
	var (
		data []byte
		err  error
	)
	switch m.format {
	case FormatCSV:
		data, err = FlattenRecords(records)
		if err != nil {
			return "", fmt.Errorf("failed to flatten page %d of %q: %w", index, key, err)
		}
	default:
		data = body
	}

	filename := m.ArtifactPath(key, index)
	if err := WriteFileAtomic(filename, data); err != nil {
		return "", err
	}
	return filename, nil
}

// WriteFileAtomic writes data to a temporary file, syncs it and renames it
// over filename so readers never observe a partial file.
func WriteFileAtomic(filename string, data []byte) error {
	tempFile := filename + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = out.Write(data)
	if err == nil {
		err = out.Sync()
	}
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write file data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

// GetOutputDir returns the output directory path
func (m *Manager) GetOutputDir() string {
	return m.outputDir
}

// JSONArtifacts lists every .json artifact below root in lexical order
func JSONArtifacts(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".json" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// FlattenRecords renders records as CSV. Nested objects become dotted
// column names; arrays are kept as JSON text. Columns are sorted.
func FlattenRecords(records []json.RawMessage) ([]byte, error) {
	rows := make([]map[string]string, 0, len(records))
	columns := make(map[string]bool)

	for i, raw := range records {
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		row := make(map[string]string)
		flatten("", v, row)
		for col := range row {
			columns[col] = true
		}
		rows = append(rows, row)
	}

	header := make([]string, 0, len(columns))
	for col := range columns {
		header = append(header, col)
	}
	sort.Strings(header)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, row := range rows {
		line := make([]string, len(header))
		for i, col := range header {
			line[i] = row[col]
		}
		if err := w.Write(line); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func flatten(prefix string, v interface{}, out map[string]string) {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, child := range val {
			name := k
			if prefix != "" {
				name = prefix + "." + k
			}
			flatten(name, child, out)
		}
	case []interface{}:
		b, _ := json.Marshal(val)
		out[prefix] = string(b)
	case nil:
		out[prefix] = ""
	case string:
		out[prefix] = val
	case bool:
		out[prefix] = strconv.FormatBool(val)
	case float64:
		out[prefix] = strconv.FormatFloat(val, 'f', -1, 64)
	default:
		out[prefix] = fmt.Sprint(val)
	}
}
