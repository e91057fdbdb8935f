package processor

import (
	"fmt"
	"time"
)

// Outcome classifies the result of processing one file.
type Outcome string

const (
	// Linked means the primary link exists and metadata was attempted.
	Linked Outcome = "LINKED"
	// Failed means the file was recorded in a failure list.
	Failed Outcome = "FAILED"
	// Skipped means nothing was recorded; a later event or scan retries.
	Skipped Outcome = "SKIPPED"
)

// Result represents the outcome of processing a single file.
type Result struct {
	SourcePath      string
	DestinationPath string
	Outcome         Outcome
	Externals       []string
	Error           error
}

// Summary counts the results of a batch or a scan.
type Summary struct {
	Linked    int
	Externals int
	Failed    int
	Skipped   int
	Duration  time.Duration
	Results   []Result
}

// Add records r.
func (s *Summary) Add(r Result) {
	s.Results = append(s.Results, r)
	s.Externals += len(r.Externals)
	switch r.Outcome {
	case Linked:
		s.Linked++
	case Failed:
		s.Failed++
	default:
		s.Skipped++
	}
}

// Merge folds other into s.
func (s *Summary) Merge(other Summary) {
	s.Linked += other.Linked
	s.Externals += other.Externals
	s.Failed += other.Failed
	s.Skipped += other.Skipped
	s.Duration += other.Duration
	s.Results = append(s.Results, other.Results...)
}

// Total returns the number of files seen.
func (s *Summary) Total() int {
	return s.Linked + s.Failed + s.Skipped
}

// HasErrors reports whether any file failed or was skipped with an error.
func (s *Summary) HasErrors() bool {
	for _, r := range s.Results {
		if r.Error != nil {
			return true
		}
	}
	return false
}

// String returns a one-line summary.
func (s *Summary) String() string {
	return fmt.Sprintf("Processed %d files: %d linked (%d external), %d failed, %d skipped",
		s.Total(), s.Linked, s.Externals, s.Failed, s.Skipped)
}
