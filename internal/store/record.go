// Package store persists credential records captured by the OAuth callback listener.
// Records are append-only: every successful authorization produces a new record, even
// for an identity that is already known.
package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/router-for-me/oauth-callback/internal/auth/antigravity"
)

// Record is a persisted credential. The identity fields are flattened into the
// top-level JSON object next to the token.
type Record struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	antigravity.Identity
	Token antigravity.TokenSet `json:"token"`
	// CreatedAt and LastUsed are unix milliseconds.
	CreatedAt int64 `json:"created_at"`
	LastUsed  int64 `json:"last_used"`
}

// NewRecord builds a record for an exchange result with a fresh uuid.
// LastUsed equals CreatedAt at creation.
func NewRecord(result *antigravity.Result, now time.Time) *Record {
	ms := now.UnixMilli()
	return &Record{
		ID:        uuid.NewString(),
		Provider:  antigravity.Provider,
		Identity:  result.Identity,
		Token:     result.Token,
		CreatedAt: ms,
		LastUsed:  ms,
	}
}

// FileName returns the file name used by file-like backends: google-<email>-<id>.json.
func (r *Record) FileName() string {
	provider := r.Provider
	if provider == "" {
		provider = antigravity.Provider
	}
	return fmt.Sprintf("%s-%s-%s.json", provider, sanitizeName(r.Email), sanitizeName(r.ID))
}

func (r *Record) validate() error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("record id is empty")
	}
	if strings.TrimSpace(r.Email) == "" {
		return fmt.Errorf("record %s has no email", r.ID)
	}
	return nil
}

func sanitizeName(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_", "..", "_")
	return replacer.Replace(strings.TrimSpace(s))
}

func decodeRecord(data []byte) (*Record, error) {
	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, err
	}
	if err := rec.validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// sortRecords orders records by creation time, then id.
func sortRecords(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt < records[j].CreatedAt
		}
		return records[i].ID < records[j].ID
	})
}
