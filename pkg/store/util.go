package store

import (
	"proteinshake/pkg/embed"
	"proteinshake/pkg/protein"
)

func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

// Summarize reduces a record to what the index stores about it.
func Summarize(dataset string, rec *protein.Record) RecordSummary {
	return RecordSummary{
		Dataset:  dataset,
		ID:       rec.ID,
		Sequence: rec.Sequence,
		Length:   rec.Len(),
		Chains:   rec.Chains(),
	}
}

// CompositionEmbedding is the vector a sequence is indexed and searched by.
// Its dimension is the size of embed.DefaultAlphabet.
func CompositionEmbedding(sequence string) []float32 {
	return embed.Composition(embed.DefaultAlphabet, sequence)
}
