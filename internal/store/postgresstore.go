package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

const defaultCredentialTable = "credential_store"

// PostgresStoreConfig captures configuration required to initialize a Postgres-backed store.
type PostgresStoreConfig struct {
	DSN    string
	Schema string
	Table  string
}

// PostgresStore persists credential records as JSONB rows. Every AddAccount is a plain
// INSERT; repeated authorizations for one email produce separate rows.
type PostgresStore struct {
	db  *sql.DB
	cfg PostgresStoreConfig

	mu          sync.Mutex
	initialized bool
}

// NewPostgresStore establishes a connection to PostgreSQL.
func NewPostgresStore(ctx context.Context, cfg PostgresStoreConfig) (*PostgresStore, error) {
	trimmedDSN := strings.TrimSpace(cfg.DSN)
	if trimmedDSN == "" {
		return nil, fmt.Errorf("postgres store: DSN is required")
	}
	cfg.DSN = trimmedDSN
	cfg.Schema = strings.TrimSpace(cfg.Schema)
	if strings.TrimSpace(cfg.Table) == "" {
		cfg.Table = defaultCredentialTable
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres store: open database connection: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres store: ping database: %w", err)
	}
	return &PostgresStore{db: db, cfg: cfg}, nil
}

// Close releases the underlying database connection.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Initialize creates the schema (when configured) and the credential table.
func (s *PostgresStore) Initialize(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store: not connected")
	}
	for _, stmt := range s.schemaStatements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres store: ensure schema: %w", err)
		}
	}
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	return nil
}

// AddAccount inserts the record as a new row.
func (s *PostgresStore) AddAccount(ctx context.Context, record *Record) error {
	if !s.ready() {
		return ErrNotInitialized
	}
	if err := record.validate(); err != nil {
		return fmt.Errorf("postgres store: %w", err)
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("postgres store: marshal record: %w", err)
	}
	if _, err = s.db.ExecContext(ctx, s.insertQuery(), record.ID, record.Email, record.Provider, string(payload), record.CreatedAt); err != nil {
		return fmt.Errorf("postgres store: insert record: %w", err)
	}
	return nil
}

// ListAccounts returns all rows ordered by creation time.
func (s *PostgresStore) ListAccounts(ctx context.Context) ([]*Record, error) {
	if !s.ready() {
		return nil, ErrNotInitialized
	}
	rows, err := s.db.QueryContext(ctx, s.listQuery())
	if err != nil {
		return nil, fmt.Errorf("postgres store: list records: %w", err)
	}
	defer func() {
		if errClose := rows.Close(); errClose != nil {
			log.WithError(errClose).Warn("postgres store: close rows")
		}
	}()

	records := make([]*Record, 0, 32)
	for rows.Next() {
		var (
			id      string
			payload string
		)
		if err = rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("postgres store: scan record row: %w", err)
		}
		rec, errDecode := decodeRecord([]byte(payload))
		if errDecode != nil {
			log.WithError(errDecode).Warnf("postgres store: skipping record %s with invalid json", id)
			continue
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: iterate record rows: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *PostgresStore) schemaStatements() []string {
	stmts := make([]string, 0, 3)
	if s.cfg.Schema != "" {
		stmts = append(stmts, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoteIdentifier(s.cfg.Schema)))
	}
	table := s.fullTableName(s.cfg.Table)
	stmts = append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			provider TEXT NOT NULL,
			content JSONB NOT NULL,
			created_at BIGINT NOT NULL
		)`, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (email)", quoteIdentifier(s.cfg.Table+"_email_idx"), table),
	)
	return stmts
}

func (s *PostgresStore) insertQuery() string {
	return fmt.Sprintf("INSERT INTO %s (id, email, provider, content, created_at) VALUES ($1, $2, $3, $4, $5)", s.fullTableName(s.cfg.Table))
}

func (s *PostgresStore) listQuery() string {
	return fmt.Sprintf("SELECT id, content FROM %s ORDER BY created_at, id", s.fullTableName(s.cfg.Table))
}

func (s *PostgresStore) fullTableName(name string) string {
	if strings.TrimSpace(s.cfg.Schema) == "" {
		return quoteIdentifier(name)
	}
	return quoteIdentifier(s.cfg.Schema) + "." + quoteIdentifier(name)
}

func quoteIdentifier(identifier string) string {
	replaced := strings.ReplaceAll(identifier, "\"", "\"\"")
	return "\"" + replaced + "\""
}
