package jarsync

import (
	"context"
	"fmt"
	"sort"
)

// IngestBatch implements the batch ingest contract (spec.md §4.5 "Batch
// Ingest"): sort by sequence, drop exact duplicates, detect two different
// CIDs claiming the same sequence within the batch itself (a corruption
// signal catchable before anything is written, distinct from the
// processed-index SequenceCidMismatch check each Ingest call below also
// performs against sequences committed by an earlier envelope in this same
// batch or a prior call), then ingest one at a time in order, stopping at
// the first error.
func (e *Engine) IngestBatch(ctx context.Context, jarID string, envs []Envelope) error {
	sorted := make([]Envelope, len(envs))
	copy(sorted, envs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	deduped := make([]Envelope, 0, len(sorted))
	seenAtSeq := make(map[uint64]string, len(sorted))
	for _, env := range sorted {
		if prevCID, ok := seenAtSeq[env.Sequence]; ok {
			if prevCID == env.CID {
				continue // exact duplicate delivery, drop silently
			}
			return fmt.Errorf("%w: jar %s sequence %d has two distinct CIDs in one batch", ErrCIDMismatch, jarID, env.Sequence)
		}
		seenAtSeq[env.Sequence] = env.CID
		deduped = append(deduped, env)
	}

	for _, env := range deduped {
		if err := e.Ingest(ctx, env); err != nil {
			return err
		}
	}
	return nil
}
