package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"proteinshake/internal/util"
	"proteinshake/pkg/store"
)

func (s *Store) CreateBuild(ctx context.Context, b store.Build) error {
	_, err := s.conn.Exec(ctx,
		`INSERT INTO builds (build_id, dataset, kind, status) VALUES ($1, $2, $3, $4)`,
		b.ID, b.Dataset, b.Kind, string(b.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to create build: %w", err)
	}
	return nil
}

func (s *Store) UpdateBuildProgress(ctx context.Context, id string, progress util.BatchProgress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return err
	}
	tag, err := s.conn.Exec(ctx,
		`UPDATE builds SET status = $2, progress = $3, updated_at = now() WHERE build_id = $1`,
		id, string(store.BuildRunning), data,
	)
	if err != nil {
		return fmt.Errorf("failed to update build: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrBuildNotFound
	}
	return nil
}

func (s *Store) FinishBuild(ctx context.Context, id string, status store.BuildStatus, records, failed int, message string) error {
	tag, err := s.conn.Exec(ctx,
		`UPDATE builds SET status = $2, records = $3, failed = $4, message = $5, updated_at = now()
		 WHERE build_id = $1`,
		id, string(status), records, failed, util.SanitizePostgresText(message),
	)
	if err != nil {
		return fmt.Errorf("failed to finish build: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrBuildNotFound
	}
	return nil
}

func (s *Store) GetBuild(ctx context.Context, id string) (*store.Build, error) {
	var (
		b        store.Build
		status   string
		progress []byte
	)
	err := s.conn.QueryRow(ctx,
		`SELECT build_id, dataset, kind, status, progress, records, failed, message, created_at, updated_at
		 FROM builds WHERE build_id = $1`,
		id,
	).Scan(&b.ID, &b.Dataset, &b.Kind, &status, &progress, &b.Records, &b.Failed, &b.Message, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrBuildNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get build: %w", err)
	}
	b.Status = store.BuildStatus(status)
	if len(progress) > 0 {
		if err := json.Unmarshal(progress, &b.Progress); err != nil {
			return nil, fmt.Errorf("invalid build progress: %w", err)
		}
	}
	return &b, nil
}
