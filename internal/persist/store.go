// Package persist saves the client's cached full-resolution records to a
// sqlite file so a later session can start warm.
package persist

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"voxstream/internal/protocol"
	"voxstream/internal/world"
)

// Store is a world save. Records are kept in their wire form: the payload
// column holds the same zstd-packed grid a CHUNK_DATA message carries.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS cells (
			kind        TEXT    NOT NULL,
			x           INTEGER NOT NULL,
			y           INTEGER NOT NULL,
			z           INTEGER NOT NULL,
			stride      INTEGER NOT NULL,
			homogeneous REAL,
			payload     BLOB,
			saved_at    INTEGER NOT NULL,
			PRIMARY KEY (kind, x, y, z, stride)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveStream replaces everything saved for kind with msgs.
func (s *Store) SaveStream(ctx context.Context, kind world.Kind, msgs []protocol.ChunkDataMsg) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cells WHERE kind = ?`, kind.String()); err != nil {
		return fmt.Errorf("clear %s: %w", kind, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cells (kind, x, y, z, stride, homogeneous, payload, saved_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, m := range msgs {
		if m.Kind != kind.String() {
			return fmt.Errorf("save %s: record of kind %q", kind, m.Kind)
		}
		var hom sql.NullFloat64
		if m.Homogeneous != nil {
			hom = sql.NullFloat64{Float64: *m.Homogeneous, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, m.Kind, m.WorldX, m.WorldY, m.WorldZ, m.Stride, hom, m.Data, now); err != nil {
			return fmt.Errorf("save %s %d,%d,%d: %w", kind, m.WorldX, m.WorldY, m.WorldZ, err)
		}
	}
	return tx.Commit()
}

// LoadStream returns every saved record of kind as CHUNK_DATA messages.
func (s *Store) LoadStream(ctx context.Context, kind world.Kind) ([]protocol.ChunkDataMsg, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT x, y, z, stride, homogeneous, payload FROM cells WHERE kind = ? ORDER BY x, y, z, stride`, kind.String())
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", kind, err)
	}
	defer rows.Close()

	var out []protocol.ChunkDataMsg
	for rows.Next() {
		m := protocol.ChunkDataMsg{
			Type:            protocol.TypeChunkData,
			ProtocolVersion: protocol.Version,
			Kind:            kind.String(),
		}
		var hom sql.NullFloat64
		if err := rows.Scan(&m.WorldX, &m.WorldY, &m.WorldZ, &m.Stride, &hom, &m.Data); err != nil {
			return nil, fmt.Errorf("load %s: %w", kind, err)
		}
		if hom.Valid {
			v := hom.Float64
			m.Homogeneous = &v
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Count returns how many records of kind are saved.
func (s *Store) Count(ctx context.Context, kind world.Kind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cells WHERE kind = ?`, kind.String()).Scan(&n)
	return n, err
}
