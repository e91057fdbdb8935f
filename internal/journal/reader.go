package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Reader reads the journal back, oldest segment first.
type Reader struct {
	path string
}

// NewReader returns a Reader for the journal whose active file is path.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// Segments returns the rotated backups in chronological order followed by
// the active file, skipping files that do not exist.
func (r *Reader) Segments() ([]string, error) {
	ext := filepath.Ext(r.path)
	prefix := strings.TrimSuffix(r.path, ext)
	backups, err := filepath.Glob(globEscape(prefix) + "-*" + globEscape(ext))
	if err != nil {
		return nil, err
	}
	// Backup names carry a sortable UTC timestamp.
	sort.Strings(backups)
	segments := backups
	if _, err := os.Stat(r.path); err == nil {
		segments = append(segments, r.path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return segments, nil
}

// Events returns every event in the journal.
func (r *Reader) Events() ([]Event, error) {
	segments, err := r.Segments()
	if err != nil {
		return nil, err
	}
	var events []Event
	for _, segment := range segments {
		part, err := readSegment(segment)
		if err != nil {
			return nil, err
		}
		events = append(events, part...)
	}
	return events, nil
}

// Tail returns the last n events, or all of them when n <= 0.
func (r *Reader) Tail(n int) ([]Event, error) {
	events, err := r.Events()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}

// Run returns the events of one run in journal order.
func (r *Reader) Run(id RunID) ([]Event, error) {
	events, err := r.Events()
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, e := range events {
		if e.RunID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

// Runs reconstructs every run, oldest first.
func (r *Reader) Runs() ([]RunInfo, error) {
	events, err := r.Events()
	if err != nil {
		return nil, err
	}
	index := make(map[RunID]int)
	var runs []RunInfo
	for _, e := range events {
		if e.RunID == "" {
			continue
		}
		i, ok := index[e.RunID]
		if !ok {
			i = len(runs)
			index[e.RunID] = i
			runs = append(runs, RunInfo{RunID: e.RunID, StartTime: e.Timestamp, Status: RunStatusInProgress})
		}
		info := &runs[i]
		switch e.Type {
		case EventRunStart:
			info.StartTime = e.Timestamp
			info.Command = e.Metadata["command"]
			info.Version = e.Metadata["version"]
		case EventRunEnd:
			end := e.Timestamp
			info.EndTime = &end
			if status := e.Metadata["status"]; status != "" {
				info.Status = RunStatus(status)
			}
		default:
			info.Summary.Add(e.Type)
		}
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartTime.Before(runs[j].StartTime)
	})
	return runs, nil
}

// readSegment parses one JSONL file. A torn final line, left by a crash in
// the middle of a write, is dropped; corruption anywhere else is an error.
func readSegment(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal segment: %w", err)
	}
	defer file.Close()

	const maxLine = 1024 * 1024
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	var (
		events  []Event
		pending error
		lineNum int
	)
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if pending != nil {
			return nil, pending
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			pending = fmt.Errorf("%s: line %d: %w", filepath.Base(path), lineNum, err)
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal segment: %w", err)
	}
	return events, nil
}

func globEscape(s string) string {
	replacer := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `\`, `\\`)
	return replacer.Replace(s)
}
