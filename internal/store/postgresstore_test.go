package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPostgresStore_RequiresDSN(t *testing.T) {
	_, err := NewPostgresStore(context.Background(), PostgresStoreConfig{DSN: "  "})
	require.Error(t, err)
}

func TestPostgresStore_Queries(t *testing.T) {
	tests := []struct {
		name      string
		cfg       PostgresStoreConfig
		wantTable string
	}{
		{"default table", PostgresStoreConfig{Table: defaultCredentialTable}, `"credential_store"`},
		{"with schema", PostgresStoreConfig{Schema: "agent", Table: "creds"}, `"agent"."creds"`},
		{"quoted", PostgresStoreConfig{Table: `we"ird`}, `"we""ird"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &PostgresStore{cfg: tt.cfg}
			assert.True(t, strings.HasPrefix(s.insertQuery(), "INSERT INTO "+tt.wantTable+" "))
			assert.NotContains(t, s.insertQuery(), "ON CONFLICT")
			assert.Contains(t, s.listQuery(), "FROM "+tt.wantTable+" ORDER BY created_at")

			stmts := s.schemaStatements()
			if tt.cfg.Schema != "" {
				require.Len(t, stmts, 3)
				assert.Contains(t, stmts[0], "CREATE SCHEMA IF NOT EXISTS")
			} else {
				require.Len(t, stmts, 2)
			}
		})
	}
}

func TestPostgresStore_NotInitialized(t *testing.T) {
	s := &PostgresStore{cfg: PostgresStoreConfig{Table: defaultCredentialTable}}
	ctx := context.Background()
	require.ErrorIs(t, s.AddAccount(ctx, NewRecord(sampleResult("a@x.com"), time.Now())), ErrNotInitialized)
	_, err := s.ListAccounts(ctx)
	require.ErrorIs(t, err, ErrNotInitialized)
}
