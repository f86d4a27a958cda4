package store

import (
	"context"
	"errors"
	"time"

	"proteinshake/internal/util"
	"proteinshake/pkg/protein"
)

var ErrBuildNotFound = errors.New("build not found")

// RecordIndex keeps a searchable summary of every record of a dataset.
type RecordIndex interface {
	SaveRecords(ctx context.Context, dataset string, records []*protein.Record) error
	GetRecord(ctx context.Context, dataset, id string) (*RecordSummary, error)
	ListRecords(ctx context.Context, dataset string, offset, limit int) ([]RecordSummary, error)
	// Nearest returns the k records of dataset whose residue composition is
	// closest to the composition of sequence.
	Nearest(ctx context.Context, dataset, sequence string, k int) ([]Hit, error)
	DeleteDataset(ctx context.Context, dataset string) error
}

// BuildStore tracks dataset build jobs submitted through the API.
type BuildStore interface {
	CreateBuild(ctx context.Context, b Build) error
	UpdateBuildProgress(ctx context.Context, id string, progress util.BatchProgress) error
	FinishBuild(ctx context.Context, id string, status BuildStatus, records, failed int, message string) error
	GetBuild(ctx context.Context, id string) (*Build, error)
}

type RecordSummary struct {
	Dataset  string   `json:"dataset"`
	ID       string   `json:"id"`
	Sequence string   `json:"sequence"`
	Length   int      `json:"length"`
	Chains   []string `json:"chains"`
}

type Hit struct {
	RecordSummary
	Distance float64 `json:"distance"`
}

type BuildStatus string

const (
	BuildPending  BuildStatus = "pending"
	BuildRunning  BuildStatus = "running"
	BuildDone     BuildStatus = "done"
	BuildFailed   BuildStatus = "failed"
	BuildRejected BuildStatus = "rejected"
)

type Build struct {
	ID        string             `json:"id"`
	Dataset   string             `json:"dataset"`
	Kind      string             `json:"kind"`
	Status    BuildStatus        `json:"status"`
	Progress  util.BatchProgress `json:"progress"`
	Records   int                `json:"records"`
	Failed    int                `json:"failed"`
	Message   string             `json:"message,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}
