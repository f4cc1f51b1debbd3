package chunk

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidPlan is returned for page counts or sizing parameters that
	// cannot produce a plan.
	ErrInvalidPlan = errors.New("invalid chunk plan input")

	// ErrTotalFailure is returned when every chunk exhausted its retries.
	ErrTotalFailure = errors.New("all chunks failed extraction")
)

// ExtractionError describes a single failed attempt at a chunk.
type ExtractionError struct {
	ChunkID int
	Round   int
	Reason  string
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chunk %d (round %d): %s: %v", e.ChunkID, e.Round, e.Reason, e.Err)
	}
	return fmt.Sprintf("chunk %d (round %d): %s", e.ChunkID, e.Round, e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// TotalFailureError lists the chunks that failed when nothing succeeded.
type TotalFailureError struct {
	FailedChunkIDs []int
	LastErrors     map[int]error
}

func (e *TotalFailureError) Error() string {
	ids := append([]int(nil), e.FailedChunkIDs...)
	sort.Ints(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if err, ok := e.LastErrors[id]; ok && err != nil {
			parts = append(parts, err.Error())
		}
	}
	msg := fmt.Sprintf("%s: %d chunk(s) exhausted retries", ErrTotalFailure.Error(), len(ids))
	if len(parts) > 0 {
		msg += " (" + strings.Join(parts, "; ") + ")"
	}
	return msg
}

func (e *TotalFailureError) Is(target error) bool {
	return target == ErrTotalFailure
}
