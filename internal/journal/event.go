// Package journal keeps an append-only JSON Lines record of what medialink
// did to the libraries: links made, links removed, failures recorded.
package journal

import (
	"encoding/json"
	"time"
)

// TimeFormat is the layout of event timestamps.
const TimeFormat = time.RFC3339Nano

// RunID identifies one process execution. It is a UUID v4 string.
type RunID string

// EventType represents the type of journal event.
type EventType string

const (
	EventRunStart     EventType = "RUN_START"
	EventRunEnd       EventType = "RUN_END"
	EventLink         EventType = "LINK"
	EventLinkExternal EventType = "LINK_EXTERNAL"
	EventUnlink       EventType = "UNLINK"
	EventOrphan       EventType = "ORPHAN"
	EventFailed       EventType = "FAILED"
)

// RunStatus is recorded on RUN_END.
type RunStatus string

const (
	RunStatusInProgress  RunStatus = "IN_PROGRESS"
	RunStatusCompleted   RunStatus = "COMPLETED"
	RunStatusFailed      RunStatus = "FAILED"
	RunStatusInterrupted RunStatus = "INTERRUPTED"
)

// Event is one journal record.
type Event struct {
	Timestamp   time.Time
	RunID       RunID
	Type        EventType
	Source      string
	Destination string
	Reason      string
	Metadata    map[string]string
}

type eventJSON struct {
	Timestamp   string            `json:"timestamp"`
	RunID       RunID             `json:"runId,omitempty"`
	Type        EventType         `json:"eventType"`
	Source      string            `json:"source,omitempty"`
	Destination string            `json:"destination,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// MarshalJSON writes the timestamp in UTC RFC 3339 form.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		Timestamp:   e.Timestamp.UTC().Format(TimeFormat),
		RunID:       e.RunID,
		Type:        e.Type,
		Source:      e.Source,
		Destination: e.Destination,
		Reason:      e.Reason,
		Metadata:    e.Metadata,
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var ej eventJSON
	if err := json.Unmarshal(data, &ej); err != nil {
		return err
	}
	ts, err := time.Parse(TimeFormat, ej.Timestamp)
	if err != nil {
		return err
	}
	*e = Event{
		Timestamp:   ts,
		RunID:       ej.RunID,
		Type:        ej.Type,
		Source:      ej.Source,
		Destination: ej.Destination,
		Reason:      ej.Reason,
		Metadata:    ej.Metadata,
	}
	return nil
}

// Summary counts what a run did.
type Summary struct {
	Linked         int
	LinkedExternal int
	Unlinked       int
	Orphans        int
	Failed         int
}

// Add accumulates the effect of one event.
func (s *Summary) Add(t EventType) {
	switch t {
	case EventLink:
		s.Linked++
	case EventLinkExternal:
		s.LinkedExternal++
	case EventUnlink:
		s.Unlinked++
	case EventOrphan:
		s.Orphans++
	case EventFailed:
		s.Failed++
	}
}

// RunInfo describes one run reconstructed from the journal.
type RunInfo struct {
	RunID     RunID
	Command   string
	Version   string
	StartTime time.Time
	EndTime   *time.Time
	Status    RunStatus
	Summary   Summary
}
