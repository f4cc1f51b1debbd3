// Package merge combines per-chunk extraction results into one ordered,
// deduplicated aggregate.
package merge

import (
	"sort"
	"time"

	"github.com/jackzampolin/speclog/internal/chunk"
)

// Aggregate is the merged output of a run.
type Aggregate struct {
	Entries            []chunk.Entry
	SuccessfulChunkIDs []int
	FailedChunkIDs     []int
	TotalRetries       int
	ProcessingTime     time.Duration
	Usage              chunk.Usage

	EntriesBeforeDedup int
	EntriesAfterDedup  int
	DuplicatesRemoved  int
}

// Partial reports whether some, but not all, chunks failed.
func (a *Aggregate) Partial() bool {
	return len(a.FailedChunkIDs) > 0 && len(a.SuccessfulChunkIDs) > 0
}

// Merge combines successful results. Entries are ordered by chunk id and then
// by their order within the chunk, so the output does not depend on the order
// of results. The first entry for each dedup key is kept. Failed results are
// ignored; if a chunk id appears more than once, the earliest retry round
// wins. Zero results yield an empty aggregate.
func Merge(results []chunk.Result) *Aggregate {
	ordered := make([]chunk.Result, 0, len(results))
	for _, r := range results {
		if r.Succeeded() {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ChunkID != ordered[j].ChunkID {
			return ordered[i].ChunkID < ordered[j].ChunkID
		}
		return ordered[i].RetryRound < ordered[j].RetryRound
	})

	agg := &Aggregate{
		Entries:            []chunk.Entry{},
		SuccessfulChunkIDs: []int{},
		FailedChunkIDs:     []int{},
	}
	seen := make(map[chunk.DedupKey]struct{})

	for i, r := range ordered {
		if i > 0 && ordered[i-1].ChunkID == r.ChunkID {
			continue
		}
		agg.SuccessfulChunkIDs = append(agg.SuccessfulChunkIDs, r.ChunkID)
		agg.Usage = agg.Usage.Add(r.Usage)
		agg.ProcessingTime += r.ProcessingTime

		for _, e := range r.Entries {
			agg.EntriesBeforeDedup++
			key := e.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			agg.Entries = append(agg.Entries, e)
		}
	}

	agg.EntriesAfterDedup = len(agg.Entries)
	agg.DuplicatesRemoved = agg.EntriesBeforeDedup - agg.EntriesAfterDedup
	return agg
}
