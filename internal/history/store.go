// Package history persists completed-run summaries to a JSON file,
// newest first, capped at a fixed maximum.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/protoseclab/fuzzlab/internal/errors"
	"github.com/protoseclab/fuzzlab/internal/fuzz"
	"github.com/protoseclab/fuzzlab/internal/logging"
)

// DefaultMaxRecords is the history cap: oldest records are evicted past
// this size.
const DefaultMaxRecords = 50

// Record is an immutable snapshot of one completed or stopped run.
type Record struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	Protocol   fuzz.Protocol `json:"protocol"`
	Engine     string        `json:"engine,omitempty"`
	TargetHost string        `json:"target_host,omitempty"`
	TargetPort int           `json:"target_port,omitempty"`

	DurationSeconds float64 `json:"duration_seconds"`

	TotalPackets int     `json:"total_packets"`
	SuccessCount int     `json:"success_count"`
	TimeoutCount int     `json:"timeout_count"`
	FailedCount  int     `json:"failed_count"`
	CrashCount   int     `json:"crash_count"`
	SuccessRate  float64 `json:"success_rate"` // 0-1

	// Exactly one protocol-specific block is set.
	SNMP *fuzz.SNMPStats   `json:"snmp,omitempty"`
	AFL  *fuzz.AFLSnapshot `json:"afl,omitempty"`
	MQTT *fuzz.MQTTStats   `json:"mqtt,omitempty"`

	Crashed     bool             `json:"crashed"`
	CrashDetail *fuzz.CrashEvent `json:"crash_detail,omitempty"`
}

// Store owns the persisted collection of records.
type Store struct {
	mu     sync.Mutex
	path   string
	max    int
	logger *logging.Logger
}

// NewStore creates a store backed by the given file. max <= 0 selects
// DefaultMaxRecords.
func NewStore(path string, max int, logger *logging.Logger) *Store {
	if max <= 0 {
		max = DefaultMaxRecords
	}
	return &Store{path: path, max: max, logger: logger}
}

// List returns all records, newest first. A missing or corrupt file
// degrades to an empty collection.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Get returns the record with the given id, or nil.
func (s *Store) Get(id string) *Record {
	for _, r := range s.List() {
		if r.ID == id {
			rec := r
			return &rec
		}
	}
	return nil
}

// Append adds a record at the head of the collection, evicting the
// oldest entries past the cap. Write failures are logged and dropped:
// the live session is never disturbed by storage trouble.
func (s *Store) Append(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.load()
	records = append([]Record{rec}, records...)
	if len(records) > s.max {
		records = records[:s.max]
	}
	s.save(records)
}

// Delete removes the record with the given id. It reports whether a
// record was removed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.load()
	kept := records[:0]
	removed := false
	for _, r := range records {
		if r.ID == id {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	if removed {
		s.save(kept)
	}
	return removed
}

// DeleteAll clears the whole collection.
func (s *Store) DeleteAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.save(nil)
}

// load reads the whole collection. Caller holds the lock.
func (s *Store) load() []Record {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) && s.logger != nil {
			s.logger.Debug("history read failed: %v", err)
		}
		return nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		// Corrupt storage degrades to an empty history.
		if s.logger != nil {
			s.logger.Debug("history corrupt, treating as empty: %v", err)
		}
		return nil
	}
	return records
}

// save writes the whole collection. Caller holds the lock.
func (s *Store) save(records []Record) {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		if s.logger != nil {
			s.logger.Error("%v", errors.WrapStorageError(err, s.path))
		}
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		if s.logger != nil {
			s.logger.Error("%v", errors.WrapStorageError(err, s.path))
		}
		return
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		if s.logger != nil {
			s.logger.Error("%v", errors.WrapStorageError(err, s.path))
		}
	}
}

// NewRunID builds a history record identifier from a start time.
func NewRunID(protocol fuzz.Protocol, start time.Time) string {
	return fmt.Sprintf("%s-%s", protocol, start.Format("20060102-150405"))
}
