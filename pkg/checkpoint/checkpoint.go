package checkpoint

import (
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/oklog/ulid/v2"

	"tweetharvest/pkg/logger"
)

const (
	snapshotPrefix = "completed-"
	snapshotExt    = ".json"
	tempSuffix     = ".tmp"

	// SnapshotVersion is written into every snapshot
	SnapshotVersion = 1
)

// Snapshot is the on-disk record of completed query keys
type Snapshot struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	WrittenAt time.Time `json:"written_at"`
	Completed []string  `json:"completed"`
}

// Info describes one snapshot file
type Info struct {
	Name string
	Path string
	Time time.Time
	Size int64
}

// Store tracks completed keys and persists them as immutable, timestamped
// snapshots. Each Flush writes a new file; older files are never modified,
// so a crash during a flush leaves the previous snapshot intact.
type Store struct {
	dir    string
	runID  string
	logger logger.Logger
	now    func() time.Time

	mu        sync.Mutex
	entropy   *ulid.MonotonicEntropy
	completed mapset.Set[string]
}

// NewStore creates a store writing snapshots to dir
func NewStore(dir, runID string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	return &Store{
		dir:       dir,
		runID:     runID,
		logger:    log,
		now:       time.Now,
		entropy:   ulid.Monotonic(crand.Reader, 0),
		completed: mapset.NewThreadUnsafeSet[string](),
	}, nil
}

// SetClock replaces the time source used to stamp snapshots
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Dir returns the snapshot directory
func (s *Store) Dir() string { return s.dir }

// Load reads the most recent readable snapshot and merges its keys into the
// store. It returns a copy of the resulting completed set. With no snapshots
// on disk the set is empty.
func (s *Store) Load() (mapset.Set[string], error) {
	infos, err := s.List()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(infos) - 1; i >= 0; i-- {
		snap, err := readSnapshot(infos[i].Path)
		if err != nil {
			s.logger.WarnWithFields("Skipping unreadable checkpoint", map[string]interface{}{
				"path":  infos[i].Path,
				"error": err.Error(),
			})
			continue
		}

		for _, key := range snap.Completed {
			s.completed.Add(key)
		}
		s.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
			"path":       infos[i].Path,
			"completed":  len(snap.Completed),
			"run_id":     snap.RunID,
			"written_at": snap.WrittenAt,
		})
		return s.completed.Clone(), nil
	}

	if len(infos) > 0 {
		return nil, fmt.Errorf("none of %d checkpoint snapshots in %s could be read", len(infos), s.dir)
	}

	s.logger.DebugWithFields("No checkpoint found", map[string]interface{}{
		"dir": s.dir,
	})
	return s.completed.Clone(), nil
}

func readSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &snap, nil
}

// MarkCompleted records key as completed in memory. It is persisted on the
// next Flush.
func (s *Store) MarkCompleted(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed.Add(key)
}

// IsCompleted reports whether key is completed
func (s *Store) IsCompleted(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed.Contains(key)
}

// Len returns the number of completed keys
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed.Cardinality()
}

// Completed returns the completed keys in sorted order
func (s *Store) Completed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.completed)
}

// Pending returns the keys not yet completed, preserving their order
func (s *Store) Pending(keys []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, k := range keys {
		if !s.completed.Contains(k) {
			out = append(out, k)
		}
	}
	return out
}

// Flush writes the completed set to a new snapshot file and returns its path
func (s *Store) Flush() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	id, err := ulid.New(ulid.Timestamp(now), s.entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate snapshot id: %w", err)
	}

	snap := Snapshot{
		Version:   SnapshotVersion,
		RunID:     s.runID,
		WrittenAt: now,
		Completed: sortedKeys(s.completed),
	}

	path := filepath.Join(s.dir, snapshotPrefix+id.String()+snapshotExt)
	if err := writeSnapshot(path, &snap); err != nil {
		return "", err
	}

	s.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"path":      path,
		"completed": len(snap.Completed),
	})
	return path, nil
}

func writeSnapshot(path string, snap *Snapshot) error {
	tempPath := path + tempSuffix
	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snap); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		os.Remove(tempPath)
		return fmt.Errorf("checkpoint %s already exists", path)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to publish checkpoint file: %w", err)
	}
	return nil
}

// List returns the snapshot files in the store's directory, oldest first.
// Temporary files from interrupted flushes are ignored.
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var infos []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotExt) {
			continue
		}

		info := Info{Name: name, Path: filepath.Join(s.dir, name)}
		idPart := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotExt)
		if id, err := ulid.ParseStrict(idPart); err == nil {
			info.Time = ulid.Time(id.Time()).UTC()
		}
		if fi, err := entry.Info(); err == nil {
			info.Size = fi.Size()
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Prune deletes all but the newest keep snapshots. keep <= 0 keeps everything.
func (s *Store) Prune(keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	infos, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(infos) <= keep {
		return 0, nil
	}

	removed := 0
	for _, info := range infos[:len(infos)-keep] {
		if err := os.Remove(info.Path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove old checkpoint: %w", err)
		}
		removed++
	}

	s.logger.DebugWithFields("Old checkpoints pruned", map[string]interface{}{
		"removed": removed,
		"kept":    keep,
	})
	return removed, nil
}

func sortedKeys(set mapset.Set[string]) []string {
	keys := set.ToSlice()
	sort.Strings(keys)
	return keys
}

// DefaultDir returns the per-user data directory for snapshots
func DefaultDir() (string, error) {
	dataDir, err := getDataDirectory()
	if err != nil {
		return "", fmt.Errorf("failed to get data directory: %w", err)
	}
	return filepath.Join(dataDir, "checkpoints"), nil
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "tweetharvest")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "tweetharvest")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "tweetharvest")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "tweetharvest")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return dataDir, nil
}
