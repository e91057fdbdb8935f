package watcher

import "time"

// Batch is the set of new paths seen in one directory, in arrival order.
type Batch struct {
	Dir          string
	Paths        []string
	LastActivity time.Time

	seen map[string]struct{}
}

func newBatch(dir string) *Batch {
	return &Batch{Dir: dir, seen: make(map[string]struct{})}
}

// add appends path unless it is already present and refreshes the activity
// time either way.
func (b *Batch) add(path string, now time.Time) {
	b.LastActivity = now
	if _, ok := b.seen[path]; ok {
		return
	}
	b.seen[path] = struct{}{}
	b.Paths = append(b.Paths, path)
}

// snapshot returns a copy safe to hand to callers.
func (b *Batch) snapshot() Batch {
	return Batch{
		Dir:          b.Dir,
		Paths:        append([]string(nil), b.Paths...),
		LastActivity: b.LastActivity,
	}
}
