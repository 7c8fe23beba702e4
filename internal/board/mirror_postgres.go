package board

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresMirrorTableName       = "boardfile_documents"
	postgresMirrorKey             = "default"
	postgresMirrorOperationWindow = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresMirror keeps the latest document snapshot in a single-row table,
// upserted on every write. Connection setup is lazy so constructing the
// mirror never touches the network.
type PostgresMirror struct {
	dsn       string
	tableName string
	mirrorKey string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresMirror(dsn string) (MirrorBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidPayload
	}
	return &PostgresMirror{
		dsn:       dsn,
		tableName: postgresMirrorTableName,
		mirrorKey: postgresMirrorKey,
		openDB:    sql.Open,
	}, nil
}

func (m *PostgresMirror) Save(doc Document) error {
	if m == nil {
		return nil
	}
	if err := m.ensureReady(); err != nil {
		return err
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresMirrorOperationWindow)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (mirror_key, revision, snapshot, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (mirror_key)
		DO UPDATE SET revision = EXCLUDED.revision, snapshot = EXCLUDED.snapshot, updated_at = NOW()`,
		postgresQuoteIdentifier(m.tableName))
	_, err = m.db.ExecContext(ctx, query, m.mirrorKey, doc.Revision, string(payload))
	return err
}

func (m *PostgresMirror) Load() (*Document, error) {
	if m == nil {
		return nil, nil
	}
	if err := m.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresMirrorOperationWindow)
	defer cancel()

	query := fmt.Sprintf("SELECT snapshot FROM %s WHERE mirror_key = $1", postgresQuoteIdentifier(m.tableName))
	var payload string
	err := m.db.QueryRowContext(ctx, query, m.mirrorKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (m *PostgresMirror) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

func (m *PostgresMirror) ensureReady() error {
	if m == nil {
		return ErrInvalidPayload
	}
	m.initOnce.Do(func() {
		db, err := m.openDB("postgres", m.dsn)
		if err != nil {
			m.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresMirrorOperationWindow)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				mirror_key TEXT PRIMARY KEY,
				revision INTEGER NOT NULL,
				snapshot TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, postgresQuoteIdentifier(m.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			m.initErr = err
			return
		}
		m.db = db
	})
	return m.initErr
}

func postgresQuoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
