package journal

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func openTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "journal.jsonl")
	w, err := Open(path, Options{MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { w.Close() })

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	w.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return w, path
}

func TestRunLifecycle(t *testing.T) {
	w, path := openTestWriter(t)

	id, err := w.StartRun("run", "dev")
	if err != nil {
		t.Fatalf("StartRun returned error: %v", err)
	}
	if _, err := uuid.Parse(string(id)); err != nil {
		t.Fatalf("run id %q is not a uuid: %v", id, err)
	}
	mustRecord(t, w.RecordLink("/mixed/Movie.mkv", "/movies/Movie (2010)/Movie (2010).mkv"))
	mustRecord(t, w.RecordExternal("/mixed/Movie.rus.mka", "/movies/Movie (2010)/Movie (2010).rus.mka"))
	mustRecord(t, w.RecordUnlink("/series/Show (2008)/Season 1/Show - S01E01.mkv"))
	mustRecord(t, w.RecordOrphan("/series/Show (2008)/Season 1/Show - S01E01.srt"))
	mustRecord(t, w.RecordFailed("/mixed/garbage.mkv", "not found on tmdb"))

	if got := w.Summary(); got != (Summary{Linked: 1, LinkedExternal: 1, Unlinked: 1, Orphans: 1, Failed: 1}) {
		t.Fatalf("summary = %+v", got)
	}
	if err := w.EndRun(RunStatusCompleted); err != nil {
		t.Fatalf("EndRun returned error: %v", err)
	}
	if w.RunID() != "" {
		t.Fatal("run should be closed after EndRun")
	}

	runs, err := NewReader(path).Runs()
	if err != nil {
		t.Fatalf("Runs returned error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected one run, got %d", len(runs))
	}
	run := runs[0]
	if run.RunID != id || run.Command != "run" || run.Version != "dev" {
		t.Fatalf("run info = %+v", run)
	}
	if run.Status != RunStatusCompleted || run.EndTime == nil {
		t.Fatalf("run not completed: %+v", run)
	}
	if run.Summary.Linked != 1 || run.Summary.Failed != 1 {
		t.Fatalf("summary = %+v", run.Summary)
	}
}

func TestRecordOutsideRun(t *testing.T) {
	w, _ := openTestWriter(t)
	if err := w.RecordLink("a", "b"); !errors.Is(err, ErrNoRun) {
		t.Fatalf("expected ErrNoRun, got %v", err)
	}
	if err := w.EndRun(RunStatusCompleted); !errors.Is(err, ErrNoRun) {
		t.Fatalf("expected ErrNoRun, got %v", err)
	}
}

func TestNilWriterIsNoop(t *testing.T) {
	var w *Writer
	if id, err := w.StartRun("scan", "dev"); err != nil || id != "" {
		t.Fatalf("StartRun on nil writer = %q, %v", id, err)
	}
	if err := w.RecordLink("a", "b"); err != nil {
		t.Fatalf("RecordLink on nil writer: %v", err)
	}
	if err := w.EndRun(RunStatusCompleted); err != nil {
		t.Fatalf("EndRun on nil writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close on nil writer: %v", err)
	}
}

func TestEventsSpanRotatedSegments(t *testing.T) {
	w, path := openTestWriter(t)
	if _, err := w.StartRun("run", "dev"); err != nil {
		t.Fatal(err)
	}
	mustRecord(t, w.RecordLink("/mixed/a.mkv", "/movies/A/A.mkv"))
	if err := w.Rotate(); err != nil {
		t.Fatalf("Rotate returned error: %v", err)
	}
	mustRecord(t, w.RecordLink("/mixed/b.mkv", "/movies/B/B.mkv"))
	if err := w.EndRun(RunStatusInterrupted); err != nil {
		t.Fatal(err)
	}

	reader := NewReader(path)
	segments, err := reader.Segments()
	if err != nil {
		t.Fatalf("Segments returned error: %v", err)
	}
	if len(segments) != 2 || segments[1] != path {
		t.Fatalf("segments = %v", segments)
	}

	events, err := reader.Events()
	if err != nil {
		t.Fatalf("Events returned error: %v", err)
	}
	var sources []string
	for _, e := range events {
		if e.Type == EventLink {
			sources = append(sources, e.Source)
		}
	}
	if strings.Join(sources, ",") != "/mixed/a.mkv,/mixed/b.mkv" {
		t.Fatalf("link order = %v", sources)
	}

	tail, err := reader.Tail(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 1 || tail[0].Type != EventRunEnd || tail[0].Metadata["status"] != string(RunStatusInterrupted) {
		t.Fatalf("tail = %+v", tail)
	}
}

func TestTornFinalLineIsDropped(t *testing.T) {
	w, path := openTestWriter(t)
	id, err := w.StartRun("run", "dev")
	if err != nil {
		t.Fatal(err)
	}
	mustRecord(t, w.RecordLink("/mixed/a.mkv", "/movies/A/A.mkv"))
	w.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`{"timestamp":"2026-03-01T12:00:09Z","runId":"` + string(id) + `","eventT`)
	f.Close()

	events, err := NewReader(path).Run(id)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

func TestCorruptMiddleLineIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	content := `{"timestamp":"2026-03-01T12:00:00Z","eventType":"LINK"}` + "\n" +
		"not json\n" +
		`{"timestamp":"2026-03-01T12:00:01Z","eventType":"LINK"}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewReader(path).Events(); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line 2 error, got %v", err)
	}
}

func TestMissingJournalIsEmpty(t *testing.T) {
	events, err := NewReader(filepath.Join(t.TempDir(), "journal.jsonl")).Events()
	if err != nil || len(events) != 0 {
		t.Fatalf("Events = %v, %v", events, err)
	}
}

func TestEventJSONOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Event{
		Timestamp: time.Date(2026, 3, 1, 15, 0, 0, 0, time.FixedZone("MSK", 3*3600)),
		Type:      EventUnlink,
	})
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if got != `{"timestamp":"2026-03-01T12:00:00Z","eventType":"UNLINK"}` {
		t.Fatalf("json = %s", got)
	}
}

func TestEventPathsSurviveJournal(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("recorded paths read back unchanged", prop.ForAll(
		func(name string) bool {
			path := filepath.Join(t.TempDir(), "journal.jsonl")
			w, err := Open(path, Options{})
			if err != nil {
				return false
			}
			defer w.Close()
			source := "/mixed/" + name + ".mkv"
			if _, err := w.StartRun("scan", "dev"); err != nil {
				return false
			}
			if err := w.RecordFailed(source, "reason: "+name); err != nil {
				return false
			}
			events, err := NewReader(path).Events()
			if err != nil || len(events) != 2 {
				return false
			}
			return events[1].Source == source && events[1].Reason == "reason: "+name
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func mustRecord(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("record: %v", err)
	}
}
