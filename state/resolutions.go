package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/izavyalov-dev/diffbase/protocol"
)

const DefaultHistoryLimit = 20

// Resolution is one recorded diff base.
type Resolution struct {
	ID          int64
	Operation   string
	InputString string
	Type        protocol.Type
	CommitSHA   *string
	PRNumber    *int
	Base        protocol.DiffBase
	CreatedAt   time.Time
}

// Record implements resolver.Sink.
func (s *Store) Record(ctx context.Context, operation string, base protocol.DiffBase) error {
	_, err := s.RecordResolution(ctx, operation, base)
	return err
}

// RecordResolution stores a validated diff base.
func (s *Store) RecordResolution(ctx context.Context, operation string, base protocol.DiffBase) (Resolution, error) {
	if operation == "" {
		return Resolution{}, errors.New("operation required")
	}
	if err := base.Validate(); err != nil {
		return Resolution{}, err
	}
	payload, err := json.Marshal(base)
	if err != nil {
		return Resolution{}, err
	}

	res := Resolution{
		Operation:   operation,
		InputString: base.InputString,
		Type:        base.Type(),
		Base:        base,
	}
	if rev, ok := base.GitRevision(); ok {
		res.CommitSHA = &rev.Commit
		res.PRNumber = rev.PRNumber
	}

	err = s.db.QueryRowContext(ctx, `
INSERT INTO resolutions (operation, input_string, type, commit_sha, pr_number, payload)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at
`, res.Operation, res.InputString, res.Type, res.CommitSHA, res.PRNumber, payload).Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		return Resolution{}, fmt.Errorf("insert resolution: %w", err)
	}
	return res, nil
}

// GetResolution returns a single resolution by ID.
func (s *Store) GetResolution(ctx context.Context, id int64) (Resolution, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, operation, input_string, type, commit_sha, pr_number, payload, created_at
FROM resolutions
WHERE id = $1
`, id)
	res, err := scanResolution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Resolution{}, fmt.Errorf("%w: resolution %d", ErrNotFound, id)
		}
		return Resolution{}, err
	}
	return res, nil
}

// ListResolutions returns the most recent resolutions first. An empty
// operation matches every operation.
func (s *Store) ListResolutions(ctx context.Context, operation string, limit int) ([]Resolution, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, operation, input_string, type, commit_sha, pr_number, payload, created_at
FROM resolutions
WHERE $1 = '' OR operation = $1
ORDER BY created_at DESC, id DESC
LIMIT $2
`, operation, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Resolution
	for rows.Next() {
		res, err := scanResolution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResolution(row scanner) (Resolution, error) {
	var (
		res       Resolution
		commitSHA sql.NullString
		prNumber  sql.NullInt64
		payload   []byte
	)
	if err := row.Scan(&res.ID, &res.Operation, &res.InputString, &res.Type, &commitSHA, &prNumber, &payload, &res.CreatedAt); err != nil {
		return Resolution{}, err
	}
	if commitSHA.Valid {
		res.CommitSHA = &commitSHA.String
	}
	if prNumber.Valid {
		n := int(prNumber.Int64)
		res.PRNumber = &n
	}
	if err := json.Unmarshal(payload, &res.Base); err != nil {
		return Resolution{}, fmt.Errorf("decode resolution %d: %w", res.ID, err)
	}
	return res, nil
}
