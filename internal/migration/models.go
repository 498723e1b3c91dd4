package migration

import (
	"fmt"
	"sort"
	"time"
)

// DefaultBatchSize is the number of source rows grouped into one batch
const DefaultBatchSize = 1000

// BatchFailure records a batch that was rejected as a whole
type BatchFailure struct {
	Index     int    `json:"index"`
	FirstLine int64  `json:"first_line"`
	Size      int    `json:"size"`
	Reason    string `json:"reason"`
	Err       error  `json:"-"`
}

func (f BatchFailure) String() string {
	return fmt.Sprintf("batch %d (lines %d-%d): %s", f.Index, f.FirstLine, f.FirstLine+int64(f.Size)-1, f.Reason)
}

// Result summarizes one table migration. Every batch either committed in
// full or appears in Failures.
type Result struct {
	Table         string         `json:"table"`
	Source        string         `json:"source"`
	Rows          int64          `json:"rows"`
	Batches       int            `json:"batches"`
	TotalInserted int64          `json:"total_inserted"`
	BatchesFailed int            `json:"batches_failed"`
	Failures      []BatchFailure `json:"failures,omitempty"`
	Canceled      bool           `json:"canceled"`
	Duration      time.Duration  `json:"duration"`
}

// Succeeded reports whether every batch committed
func (r *Result) Succeeded() bool {
	return r.BatchesFailed == 0 && !r.Canceled
}

func (r *Result) addFailure(f BatchFailure) {
	r.BatchesFailed++
	r.Failures = append(r.Failures, f)
}

func (r *Result) sortFailures() {
	sort.Slice(r.Failures, func(i, j int) bool { return r.Failures[i].Index < r.Failures[j].Index })
}

// BatchReport is passed to the progress callback after each batch
type BatchReport struct {
	Table    string
	Index    int
	Size     int
	Inserted int64
	Err      error
}
