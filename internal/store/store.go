// Package store persists the per-provider usage history as a single JSON
// document with append-only, de-duplicated, date-ordered records.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bond/tokenash/internal/model"
)

// Record is the persisted form of a Sample, unique per (provider, date).
type Record struct {
	Date             string           `json:"date"`
	PromptTokens     int64            `json:"promptTokens"`
	CompletionTokens int64            `json:"completionTokens"`
	CostEstimate     *decimal.Decimal `json:"costEstimate"`
	FetchedAt        time.Time        `json:"fetchedAt"`
}

// TotalTokens returns the combined token count for the record.
func (r Record) TotalTokens() int64 {
	return r.PromptTokens + r.CompletionTokens
}

// History holds one provider's records, ordered by date.
type History struct {
	Records []Record `json:"records"`
}

// State is the in-memory form of the persisted document. It is an explicit
// value passed through load, merge and save; nothing mutates it outside an
// aggregator run.
type State struct {
	SchemaVersion int                         `json:"schemaVersion"`
	LastUpdated   time.Time                   `json:"lastUpdated"`
	Providers     map[model.Provider]*History `json:"providers"`
}

// NewState returns an empty state at the current schema version.
func NewState() *State {
	return &State{
		SchemaVersion: CurrentSchemaVersion,
		Providers:     make(map[model.Provider]*History),
	}
}

// History returns the history for a provider, creating it if needed. A
// fresh history carries an empty records array so it serializes as [].
func (s *State) History(p model.Provider) *History {
	h, ok := s.Providers[p]
	if !ok {
		h = &History{Records: []Record{}}
		s.Providers[p] = h
	}
	return h
}

// Record returns the record at (provider, date), if present.
func (s *State) Record(p model.Provider, date string) (Record, bool) {
	h, ok := s.Providers[p]
	if !ok {
		return Record{}, false
	}
	i := sort.Search(len(h.Records), func(i int) bool {
		return h.Records[i].Date >= date
	})
	if i < len(h.Records) && h.Records[i].Date == date {
		return h.Records[i], true
	}
	return Record{}, false
}

// Merge upserts each sample at its (provider, date) key. A sample whose
// date already has a record overwrites it; that is a same-day revision,
// not an error. Samples that fail validation are rejected and never
// persisted. Merge is correct regardless of input order and is idempotent.
func (s *State) Merge(samples []model.Sample) model.MergeReport {
	var report model.MergeReport
	for _, sample := range samples {
		if err := sample.Validate(); err != nil {
			report.Rejected = append(report.Rejected, model.Rejection{
				Sample: sample,
				Reason: err.Error(),
			})
			continue
		}
		rec := Record{
			Date:             sample.Date,
			PromptTokens:     sample.PromptTokens,
			CompletionTokens: sample.CompletionTokens,
			CostEstimate:     sample.CostEstimate,
			FetchedAt:        sample.FetchedAt,
		}
		if s.upsert(sample.Provider, rec) {
			report.Inserted++
		} else {
			report.Overwritten++
		}
	}
	return report
}

// upsert inserts rec into the provider's history keeping date order.
// Returns true when a new record was inserted, false on overwrite.
func (s *State) upsert(p model.Provider, rec Record) bool {
	h := s.History(p)
	i := sort.Search(len(h.Records), func(i int) bool {
		return h.Records[i].Date >= rec.Date
	})
	if i < len(h.Records) && h.Records[i].Date == rec.Date {
		h.Records[i] = rec
		return false
	}
	h.Records = append(h.Records, Record{})
	copy(h.Records[i+1:], h.Records[i:])
	h.Records[i] = rec
	return true
}

// Store reads and writes the persisted document at a fixed path.
type Store struct {
	path string
}

// New creates a store backed by the given file path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the store file path.
func (st *Store) Path() string {
	return st.path
}

// versionProbe peeks at the document to decide how to decode it. The
// original tool wrote a bare {"records": [...]} document with no version
// field; that layout is schema version 1.
type versionProbe struct {
	SchemaVersion *int            `json:"schemaVersion"`
	Records       json.RawMessage `json:"records"`
}

// Load reads the persisted state. A missing file yields an empty store.
// Persisted data that cannot be parsed into the schema fails with
// CorruptStoreError; data from a newer schema fails with
// UnsupportedSchemaError. Older schemas are migrated before return.
func (st *Store) Load() (*State, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewState(), nil
		}
		return nil, &CorruptStoreError{Path: st.path, Err: err}
	}

	var probe versionProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &CorruptStoreError{Path: st.path, Err: err}
	}

	version := schemaV1
	if probe.SchemaVersion != nil {
		version = *probe.SchemaVersion
	} else if probe.Records == nil {
		return nil, &CorruptStoreError{
			Path: st.path,
			Err:  errors.New("missing schemaVersion"),
		}
	}

	if version > CurrentSchemaVersion {
		return nil, &UnsupportedSchemaError{
			Path:    st.path,
			Found:   version,
			Current: CurrentSchemaVersion,
		}
	}

	state, err := decodeVersion(version, data)
	if err != nil {
		return nil, &CorruptStoreError{Path: st.path, Err: err}
	}
	if err := validate(state); err != nil {
		return nil, &CorruptStoreError{Path: st.path, Err: err}
	}
	return state, nil
}

// validate enforces the reader-side invariants: parseable unique dates in
// order, known providers, non-negative totals.
func validate(s *State) error {
	for p, h := range s.Providers {
		if !p.Valid() {
			return fmt.Errorf("unknown provider %q", p)
		}
		prev := ""
		for _, rec := range h.Records {
			if _, err := model.ParseDate(rec.Date); err != nil {
				return fmt.Errorf("provider %s: %w", p, err)
			}
			if rec.Date == prev {
				return fmt.Errorf("provider %s: duplicate record for %s", p, rec.Date)
			}
			if rec.Date < prev {
				return fmt.Errorf("provider %s: records out of order at %s", p, rec.Date)
			}
			if rec.PromptTokens < 0 || rec.CompletionTokens < 0 {
				return fmt.Errorf("provider %s: negative token count on %s", p, rec.Date)
			}
			prev = rec.Date
		}
	}
	return nil
}

// Save persists the state atomically: the document is written to a temp
// file in the same directory and renamed over the target, so a failure at
// any point leaves the previous valid state intact.
func (st *Store) Save(state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return &StoreWriteError{Path: st.path, Err: err}
	}
	data = append(data, '\n')

	dir := filepath.Dir(st.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &StoreWriteError{Path: st.path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(st.path)+".tmp-*")
	if err != nil {
		return &StoreWriteError{Path: st.path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &StoreWriteError{Path: st.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &StoreWriteError{Path: st.path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return &StoreWriteError{Path: st.path, Err: err}
	}
	if err := os.Rename(tmpName, st.path); err != nil {
		_ = os.Remove(tmpName)
		return &StoreWriteError{Path: st.path, Err: err}
	}
	return nil
}
