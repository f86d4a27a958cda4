package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"proteinshake/internal/util"
	"proteinshake/pkg/logger"
	"proteinshake/pkg/protein"
	"proteinshake/pkg/store"
)

const recordChunkSize = 500

const upsertRecordSQL = `
INSERT INTO records (dataset, record_id, sequence, length, chains, composition, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (dataset, record_id) DO UPDATE
SET sequence    = EXCLUDED.sequence,
    length      = EXCLUDED.length,
    chains      = EXCLUDED.chains,
    composition = EXCLUDED.composition,
    updated_at  = now();
`

// SaveRecords upserts the summaries of records in chunks; each chunk is one
// implicit transaction.
func (s *Store) SaveRecords(ctx context.Context, dataset string, records []*protein.Record) error {
	err := store.ChunkRange(len(records), recordChunkSize, func(start, end int) error {
		b := &pgx.Batch{}
		for _, rec := range records[start:end] {
			queueRecord(b, store.Summarize(dataset, rec))
		}
		return s.conn.SendBatch(ctx, b).Close()
	})
	if err != nil {
		return fmt.Errorf("failed to save records: %w", err)
	}
	logger.Debug("[Store] Saved records", "dataset", dataset, "records", len(records))
	return nil
}

func queueRecord(b *pgx.Batch, r store.RecordSummary) {
	b.Queue(upsertRecordSQL,
		r.Dataset,
		util.SanitizePostgresText(r.ID),
		r.Sequence,
		r.Length,
		r.Chains,
		pgvector.NewVector(store.CompositionEmbedding(r.Sequence)),
	)
}

const recordColumns = `dataset, record_id, sequence, length, chains`

func scanSummary(row pgx.Row) (store.RecordSummary, error) {
	var r store.RecordSummary
	err := row.Scan(&r.Dataset, &r.ID, &r.Sequence, &r.Length, &r.Chains)
	return r, err
}

func (s *Store) GetRecord(ctx context.Context, dataset, id string) (*store.RecordSummary, error) {
	row := s.conn.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM records WHERE dataset = $1 AND record_id = $2`,
		dataset, id,
	)
	r, err := scanSummary(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &r, nil
}

func (s *Store) ListRecords(ctx context.Context, dataset string, offset, limit int) ([]store.RecordSummary, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+recordColumns+` FROM records WHERE dataset = $1 ORDER BY record_id OFFSET $2 LIMIT $3`,
		dataset, offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	out := []store.RecordSummary{}
	for rows.Next() {
		r, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Nearest(ctx context.Context, dataset, sequence string, k int) ([]store.Hit, error) {
	query := pgvector.NewVector(store.CompositionEmbedding(sequence))
	rows, err := s.conn.Query(ctx,
		`SELECT `+recordColumns+`, composition <=> $2 AS distance
		 FROM records WHERE dataset = $1
		 ORDER BY distance, record_id LIMIT $3`,
		dataset, query, k,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search records: %w", err)
	}
	defer rows.Close()

	hits := []store.Hit{}
	for rows.Next() {
		var h store.Hit
		if err := rows.Scan(&h.Dataset, &h.ID, &h.Sequence, &h.Length, &h.Chains, &h.Distance); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *Store) DeleteDataset(ctx context.Context, dataset string) error {
	if _, err := s.conn.Exec(ctx, `DELETE FROM records WHERE dataset = $1`, dataset); err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	return nil
}
