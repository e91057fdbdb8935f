package watcher

// EventKind distinguishes creations from deletions.
type EventKind int

const (
	EventCreate EventKind = iota
	EventDelete
)

func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "create"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is one filesystem notification.
type Event struct {
	Kind  EventKind
	Path  string
	IsDir bool

	// handled is closed by the engine once the event has been applied.
	handled chan struct{}
}

func (e Event) markHandled() {
	if e.handled != nil {
		close(e.handled)
	}
}

// Source subscribes to create and delete notifications below a root.
type Source interface {
	Subscribe(root string) (Subscription, error)
}

// Subscription is a live stream of events. Events for one directory arrive
// in the order they happened.
type Subscription interface {
	Events() <-chan Event
	Errors() <-chan error
	Close() error
}
