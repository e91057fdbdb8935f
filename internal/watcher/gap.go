package watcher

// GapBuffer holds events observed while the initial scan runs. It is drained
// exactly once.
type GapBuffer struct {
	events  []Event
	drained bool
}

// Append records ev. It reports false once the buffer has been drained.
func (g *GapBuffer) Append(ev Event) bool {
	if g.drained {
		return false
	}
	ev.handled = nil
	g.events = append(g.events, ev)
	return true
}

// Drain returns the buffered events in arrival order and retires the buffer.
func (g *GapBuffer) Drain() []Event {
	if g.drained {
		return nil
	}
	g.drained = true
	events := g.events
	g.events = nil
	return events
}

// Active reports whether the buffer still captures events.
func (g *GapBuffer) Active() bool { return !g.drained }
