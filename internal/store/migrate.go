package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/bond/tokenash/internal/model"
)

// Schema versions. Version 1 is the layout written by the original Python
// tool: a bare {"records": [{"date", "providers": {name: tokens}, "total"}]}
// document with no version field. Version 2 is the current per-provider
// record layout.
const (
	schemaV1 = 1
	schemaV2 = 2

	// CurrentSchemaVersion is the schema this build reads and writes.
	CurrentSchemaVersion = schemaV2
)

// decodeVersion parses data at the given schema version and upgrades it to
// the current version. Migrations are pure and deterministic.
func decodeVersion(version int, data []byte) (*State, error) {
	switch version {
	case schemaV1:
		var legacy legacyDocument
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, err
		}
		return migrateV1(legacy)
	case schemaV2:
		var state State
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, err
		}
		if state.Providers == nil {
			state.Providers = make(map[model.Provider]*History)
		}
		return &state, nil
	default:
		return nil, fmt.Errorf("no migration from schema version %d", version)
	}
}

// legacyDocument is the v1 on-disk layout.
type legacyDocument struct {
	Records []legacyRecord `json:"records"`
}

type legacyRecord struct {
	Date      string           `json:"date"`
	Providers map[string]int64 `json:"providers"`
	Total     int64            `json:"total"`
}

// migrateV1 expands each legacy per-day provider count into a full record.
// V1 stored only daily totals, so the count is carried as prompt tokens
// with zero completion tokens and no cost estimate. FetchedAt is fixed to
// the record's date at midnight UTC to keep the migration deterministic.
func migrateV1(legacy legacyDocument) (*State, error) {
	state := NewState()
	for _, lr := range legacy.Records {
		day, err := model.ParseDate(lr.Date)
		if err != nil {
			return nil, err
		}
		fetchedAt := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
		for name, tokens := range lr.Providers {
			p := model.Provider(name)
			if !p.Valid() {
				return nil, fmt.Errorf("legacy record %s has unknown provider %q", lr.Date, name)
			}
			if tokens < 0 {
				return nil, fmt.Errorf("legacy record %s has negative total for %s", lr.Date, name)
			}
			h := state.History(p)
			h.Records = append(h.Records, Record{
				Date:         lr.Date,
				PromptTokens: tokens,
				FetchedAt:    fetchedAt,
			})
		}
	}
	for _, h := range state.Providers {
		sort.Slice(h.Records, func(i, j int) bool {
			return h.Records[i].Date < h.Records[j].Date
		})
	}
	return state, nil
}
