package util

import "fmt"

// BatchCounts is a snapshot of how many items of a batch are in each stage.
type BatchCounts struct {
	Total      int64
	Parsing    int64
	Annotating int64
	Completed  int64
	Failed     int64
}

type BatchStepProgress struct {
	Pending    string `json:"pending,omitempty"`
	Parsing    string `json:"parsing,omitempty"`
	Annotating string `json:"annotating,omitempty"`
	Completed  string `json:"completed,omitempty"`
	Failed     string `json:"failed,omitempty"`
}

type BatchProgress struct {
	Step       *BatchStepProgress `json:"step,omitempty"`
	Percentage int32              `json:"percentage"`
	Done       bool               `json:"done"`
}

const batchProgressStepCount int64 = 2

func BuildBatchProgress(counts BatchCounts) BatchProgress {
	if counts.Total <= 0 {
		return BatchProgress{Done: true, Percentage: 100}
	}

	stepProgress := BatchStepProgress{}
	hasStep := false
	fraction := func(n int64) string {
		return fmt.Sprintf("%d/%d", n, counts.Total)
	}

	pending := counts.Total - counts.Parsing - counts.Annotating - counts.Completed - counts.Failed
	if pending > 0 {
		stepProgress.Pending = fraction(pending)
		hasStep = true
	}
	if counts.Parsing > 0 {
		stepProgress.Parsing = fraction(counts.Parsing)
		hasStep = true
	}
	if counts.Annotating > 0 {
		stepProgress.Annotating = fraction(counts.Annotating)
		hasStep = true
	}
	if counts.Completed > 0 {
		stepProgress.Completed = fraction(counts.Completed)
		hasStep = true
	}
	if counts.Failed > 0 {
		stepProgress.Failed = fraction(counts.Failed)
		hasStep = true
	}

	progress := BatchProgress{
		Percentage: CalculateBatchProgressPercentage(counts),
		Done:       counts.Completed+counts.Failed >= counts.Total,
	}
	if hasStep {
		progress.Step = &stepProgress
	}
	return progress
}

// CalculateBatchProgressPercentage weighs an item half done once it reaches
// annotation; failed items count as finished.
func CalculateBatchProgressPercentage(counts BatchCounts) int32 {
	if counts.Total <= 0 {
		return 100
	}
	totalWork := counts.Total * batchProgressStepCount
	completedWork := min(counts.Annotating+(counts.Completed+counts.Failed)*batchProgressStepCount, totalWork)
	return int32(completedWork * 100 / totalWork)
}
