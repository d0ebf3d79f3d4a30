// Package store persists host-authored static forwarding entries so they
// survive a restart of the daemon or a reset of the switch.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/log"
)

const persistenceVersion = "v1"

// snapshot is the on-disk format.
type snapshot struct {
	Version string    `yaml:"version"`
	Chip    string    `yaml:"chip"`
	SavedAt time.Time `yaml:"saved_at"`
	Entries []record  `yaml:"entries"`
}

type record struct {
	MAC      core.MAC      `yaml:"mac"`
	Ports    []core.PortID `yaml:"ports,flow"`
	CPU      bool          `yaml:"cpu,omitempty"`
	Override bool          `yaml:"override,omitempty"`
}

func toRecord(e core.FdbEntry) record {
	return record{
		MAC:      e.MAC,
		Ports:    e.DestPorts.Ports(),
		CPU:      e.DestPorts&core.CPUPort != 0,
		Override: e.Override,
	}
}

func (r record) entry() core.FdbEntry {
	e := core.FdbEntry{MAC: r.MAC, DestPorts: core.MaskOf(r.Ports...), Override: r.Override}
	if r.CPU {
		e.DestPorts |= core.CPUPort
	}
	return e
}

// FileStore keeps one YAML snapshot per chip. Writes go through a temp file
// and a rename so a crash leaves either the old or the new snapshot.
type FileStore struct {
	mu   sync.Mutex
	dir  string
	chip string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir, chip string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("static store: create directory %q: %w", dir, err)
	}
	return &FileStore{dir: dir, chip: chip}, nil
}

func (s *FileStore) Path() string {
	return filepath.Join(s.dir, s.chip+"-static.yaml")
}

// Load returns the stored entries. A missing snapshot is empty.
func (s *FileStore) Load() ([]core.FdbEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("static store: read: %w", err)
	}

	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("static store: decode %s: %w", s.Path(), err)
	}
	if snap.Version != persistenceVersion {
		return nil, fmt.Errorf("static store: unsupported version %q", snap.Version)
	}
	if snap.Chip != s.chip {
		return nil, fmt.Errorf("static store: snapshot belongs to %q, not %q", snap.Chip, s.chip)
	}

	entries := make([]core.FdbEntry, 0, len(snap.Entries))
	for _, r := range snap.Entries {
		entries = append(entries, r.entry())
	}
	return entries, nil
}

// Save replaces the snapshot with entries.
func (s *FileStore) Save(entries []core.FdbEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{Version: persistenceVersion, Chip: s.chip, SavedAt: time.Now().UTC()}
	for _, e := range entries {
		snap.Entries = append(snap.Entries, toRecord(e))
	}
	data, err := yaml.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("static store: encode: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+s.chip+"-static.*.tmp")
	if err != nil {
		return fmt.Errorf("static store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("static store: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("static store: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path()); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("static store: rename: %w", err)
	}

	log.GetLogger().WithField("entries", len(entries)).Debug("static fdb persisted")
	return nil
}
