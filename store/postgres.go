package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/draftmill/collab/ot"
)

const pgUniqueViolation = "23505"

// PostgresStore is a PostgreSQL-backed implementation of SectionStore,
// holding one row per section and one row per sequenced operation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Init creates the schema if it does not exist.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sections (
			id         TEXT PRIMARY KEY,
			content    TEXT NOT NULL,
			version    INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS section_ops (
			section_id TEXT NOT NULL REFERENCES sections(id),
			version    INTEGER NOT NULL,
			op         JSONB NOT NULL,
			PRIMARY KEY (section_id, version)
		);`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, id, content string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sections (id, content, version) VALUES ($1, $2, 0)`, id, content)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("section %q already exists", id)
	}
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*SectionInfo, error) {
	info := SectionInfo{ID: id}
	err := s.pool.QueryRow(ctx,
		`SELECT content, version, created_at, updated_at FROM sections WHERE id = $1`, id).
		Scan(&info.Content, &info.Version, &info.CreatedAt, &info.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("section %q not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]SectionInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, content, version, created_at, updated_at FROM sections ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SectionInfo
	for rows.Next() {
		var info SectionInfo
		if err := rows.Scan(&info.ID, &info.Content, &info.Version, &info.CreatedAt, &info.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, info)
	}
	return result, rows.Err()
}

func (s *PostgresStore) UpdateContent(ctx context.Context, id, content string, version int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sections SET content = $2, version = $3, updated_at = now() WHERE id = $1`,
		id, content, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("section %q not found", id)
	}
	return nil
}

func (s *PostgresStore) AppendOperation(ctx context.Context, id string, op ot.Operation, version int) error {
	payload, err := json.Marshal(op)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		WITH bump AS (
			UPDATE sections SET version = $2, updated_at = now() WHERE id = $1 RETURNING id
		)
		INSERT INTO section_ops (section_id, version, op)
		SELECT id, $2, $3 FROM bump`, id, version, payload)
	return err
}

func (s *PostgresStore) GetOperations(ctx context.Context, id string, fromVersion int) ([]ot.Operation, error) {
	// Verify the section exists.
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT op FROM section_ops
		WHERE section_id = $1 AND version > $2
		ORDER BY version`, id, fromVersion)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []ot.Operation
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var op ot.Operation
		if err := json.Unmarshal(payload, &op); err != nil {
			return nil, fmt.Errorf("decode op for %q: %w", id, err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
