package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"
)

// StabilityChecker tells files still being written from finished ones by
// sampling their size twice, threshold apart.
type StabilityChecker struct {
	threshold time.Duration
}

// NewStabilityChecker returns a checker. A zero threshold only checks that
// files exist.
func NewStabilityChecker(threshold time.Duration) *StabilityChecker {
	if threshold < 0 {
		threshold = 0
	}
	return &StabilityChecker{threshold: threshold}
}

// Threshold returns the sampling distance.
func (s *StabilityChecker) Threshold() time.Duration {
	return s.threshold
}

// StabilityReport splits a set of paths by state.
type StabilityReport struct {
	Stable   []string
	Unstable []string
	Vanished []string
}

// Check samples every path, waits for the threshold once, samples again and
// sorts the paths. Order within each group follows paths. Paths that cannot
// be read for other reasons count as unstable.
func (s *StabilityChecker) Check(ctx context.Context, paths []string) (StabilityReport, error) {
	var report StabilityReport
	first := make(map[string]int64, len(paths))
	live := make([]string, 0, len(paths))
	for _, p := range paths {
		size, err := fileSize(p)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			report.Vanished = append(report.Vanished, p)
		case err != nil:
			report.Unstable = append(report.Unstable, p)
		default:
			first[p] = size
			live = append(live, p)
		}
	}
	if s.threshold == 0 || len(live) == 0 {
		report.Stable = append(report.Stable, live...)
		return report, nil
	}

	timer := time.NewTimer(s.threshold)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return report, ctx.Err()
	case <-timer.C:
	}

	for _, p := range live {
		size, err := fileSize(p)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			report.Vanished = append(report.Vanished, p)
		case err != nil || size != first[p]:
			report.Unstable = append(report.Unstable, p)
		default:
			report.Stable = append(report.Stable, p)
		}
	}
	return report, nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, &fs.PathError{Op: "stat", Path: path, Err: errors.New("is a directory")}
	}
	return info.Size(), nil
}
