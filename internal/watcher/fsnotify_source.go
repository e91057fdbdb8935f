package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"medialink/internal/logging"
)

// FSNotifySource watches a directory tree with fsnotify. New directories are
// added to the watch as they appear, and files already inside them are
// reported as created so nothing written before the watch existed is missed.
type FSNotifySource struct {
	Logger *slog.Logger
	// BufferSize is the capacity of the event channel.
	BufferSize int
}

// NewFSNotifySource returns a source logging through logger.
func NewFSNotifySource(logger *slog.Logger) *FSNotifySource {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FSNotifySource{Logger: logging.NewComponentLogger(logger, "watcher"), BufferSize: 1024}
}

func (s *FSNotifySource) Subscribe(root string) (Subscription, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, watchLimitHint(err)
	}
	size := s.BufferSize
	if size <= 0 {
		size = 1024
	}
	logger := s.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	sub := &fsnotifySubscription{
		fw:     fw,
		events: make(chan Event, size),
		errs:   make(chan error, 16),
		done:   make(chan struct{}),
		logger: logger,
	}
	if err := sub.addTree(abs, false); err != nil {
		_ = fw.Close()
		return nil, err
	}
	go sub.loop()
	return sub, nil
}

type fsnotifySubscription struct {
	fw     *fsnotify.Watcher
	events chan Event
	errs   chan error
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func (s *fsnotifySubscription) Events() <-chan Event { return s.events }
func (s *fsnotifySubscription) Errors() <-chan error { return s.errs }

func (s *fsnotifySubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.fw.Close()
	})
	return err
}

func (s *fsnotifySubscription) loop() {
	defer close(s.events)
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.fw.Events:
			if !ok {
				return
			}
			s.translate(ev)
		case err, ok := <-s.fw.Errors:
			if !ok {
				return
			}
			s.reportError(err)
		}
	}
}

func (s *fsnotifySubscription) translate(ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Lstat(ev.Name)
		if err != nil {
			// Gone again before we looked; the delete follows.
			return
		}
		if info.IsDir() {
			if err := s.addTree(ev.Name, true); err != nil {
				s.reportError(err)
			}
			return
		}
		s.emit(Event{Kind: EventCreate, Path: ev.Name})
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// fsnotify drops removed directories itself; renamed ones keep a
		// stale watch.
		if ev.Has(fsnotify.Rename) {
			_ = s.fw.Remove(ev.Name)
		}
		s.emit(Event{Kind: EventDelete, Path: ev.Name})
	}
}

// addTree watches dir and every directory below it. With emit set, files
// found on the way are reported as created.
func (s *fsnotifySubscription) addTree(dir string, emit bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && !emit {
				return err
			}
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			s.logger.Warn("cannot walk directory", logging.Path(path), logging.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if err := s.fw.Add(path); err != nil {
				err = watchLimitHint(err)
				if path == dir && !emit {
					return err
				}
				s.logger.Warn("cannot watch directory", logging.Path(path), logging.Error(err))
				return filepath.SkipDir
			}
			if emit {
				s.emit(Event{Kind: EventCreate, Path: path, IsDir: true})
			}
			return nil
		}
		if emit {
			s.emit(Event{Kind: EventCreate, Path: path})
		}
		return nil
	})
}

func (s *fsnotifySubscription) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *fsnotifySubscription) reportError(err error) {
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		err = fmt.Errorf("%w: events were lost; the next start rescans the tree", err)
	}
	select {
	case s.errs <- err:
	default:
		s.logger.Warn("watch error dropped", logging.Error(err))
	}
}
