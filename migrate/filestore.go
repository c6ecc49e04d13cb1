package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// DefaultLedgerFile is the conventional FileStore filename, kept in the
// project root and git-ignored.
const DefaultLedgerFile = ".stratum-history.json"

// FileStore keeps the migration ledger in a local JSON file, written
// atomically (temp file, then rename). Suited to projects where the
// database itself is disposable and the ledger should live next to the
// migration sources.
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a ledger stored at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type fileLedger struct {
	Version string   `json:"version"` // ledger format version
	Records []Record `json:"records"`
}

func (s *FileStore) Initialize(context.Context) error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	}
	return s.save(&fileLedger{Version: "1"})
}

// load reads the ledger, returning an empty one when the file does not
// exist yet.
func (s *FileStore) load() (*fileLedger, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &fileLedger{Version: "1"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger file: %w", err)
	}

	var ledger fileLedger
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, fmt.Errorf("failed to parse ledger file %s: %w", s.path, err)
	}
	return &ledger, nil
}

func (s *FileStore) save(ledger *fileLedger) error {
	dir := filepath.Dir(s.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write ledger file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to save ledger file: %w", err)
	}
	return nil
}

// upsert replaces the record for rec.Version, appending when new.
func (l *fileLedger) upsert(rec Record) {
	for i := range l.Records {
		if l.Records[i].Version == rec.Version {
			l.Records[i] = rec
			return
		}
	}
	l.Records = append(l.Records, rec)
}

func (l *fileLedger) find(version string) (Record, bool) {
	for _, rec := range l.Records {
		if rec.Version == version {
			return rec, true
		}
	}
	return Record{}, false
}

func (s *FileStore) AppliedMigrations(context.Context) ([]Record, error) {
	ledger, err := s.load()
	if err != nil {
		return nil, err
	}
	records := make([]Record, len(ledger.Records))
	copy(records, ledger.Records)
	sort.Slice(records, func(i, j int) bool { return records[i].Version < records[j].Version })
	return records, nil
}

func (s *FileStore) RecordMigration(_ context.Context, m *Migration, took time.Duration) error {
	ledger, err := s.load()
	if err != nil {
		return err
	}
	ledger.upsert(Record{
		Version:    m.Version,
		Name:       m.Name,
		Checksum:   m.Checksum,
		Status:     StatusCompleted,
		AppliedAt:  time.Now(),
		DurationMS: took.Milliseconds(),
	})
	return s.save(ledger)
}

func (s *FileStore) RecordRollback(_ context.Context, m *Migration, took time.Duration) error {
	ledger, err := s.load()
	if err != nil {
		return err
	}
	rec, ok := ledger.find(m.Version)
	if !ok {
		rec = Record{Version: m.Version, Name: m.Name, Checksum: m.Checksum}
	}
	rec.Status = StatusRolledBack
	rec.DurationMS = took.Milliseconds()
	rec.Error = ""
	ledger.upsert(rec)
	return s.save(ledger)
}

func (s *FileStore) UpdateStatus(_ context.Context, version string, status Status, errMsg string) error {
	ledger, err := s.load()
	if err != nil {
		return err
	}
	rec, ok := ledger.find(version)
	if !ok {
		rec = Record{Version: version}
	}
	rec.Status = status
	rec.Error = errMsg
	ledger.upsert(rec)
	return s.save(ledger)
}

func (s *FileStore) Cleanup(context.Context) error {
	ledger, err := s.load()
	if err != nil {
		return err
	}
	kept := ledger.Records[:0]
	for _, rec := range ledger.Records {
		if rec.Status == StatusFailed || rec.Status == StatusRunning {
			continue
		}
		kept = append(kept, rec)
	}
	ledger.Records = kept
	return s.save(ledger)
}
