// Package dumpwatch follows a pool dump file on disk and surfaces newly
// appended corruption records as they arrive.
package dumpwatch

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/orizon-lang/emballoc/internal/dumpfile"
)

// Watcher tails one dump file using OS-native change notifications.
type Watcher struct {
	path string
	w    *fsnotify.Watcher
	recC chan dumpfile.Record
	errC chan error
	done chan struct{}
	seen int
}

// New starts watching the dump file at path. The file does not need to
// exist yet; the watch is placed on its directory so creation is seen.
func New(path string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	dw := &Watcher{
		path: path,
		w:    w,
		recC: make(chan dumpfile.Record, 64),
		errC: make(chan error, 1),
		done: make(chan struct{}),
	}
	dw.drain() // pick up records already on disk
	go dw.loop()
	return dw, nil
}

// Records delivers each newly appended dump record once.
func (dw *Watcher) Records() <-chan dumpfile.Record { return dw.recC }

// Errors delivers watch and parse failures.
func (dw *Watcher) Errors() <-chan error { return dw.errC }

// Close stops the watcher.
func (dw *Watcher) Close() error {
	close(dw.done)
	return dw.w.Close()
}

func (dw *Watcher) loop() {
	for {
		select {
		case <-dw.done:
			return
		case ev, ok := <-dw.w.Events:
			if !ok {
				return
			}
			if ev.Name != dw.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				dw.drain()
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				dw.seen = 0
			}
		case err, ok := <-dw.w.Errors:
			if !ok {
				return
			}
			select {
			case dw.errC <- err:
			default:
			}
		}
	}
}

// drain re-parses the file and emits every record past the high-water
// mark. Re-reading the whole file keeps the tail logic trivial; dump
// files stay small because each record is one corruption event.
func (dw *Watcher) drain() {
	recs, err := dumpfile.ReadAll(dw.path)
	if err != nil {
		if !os.IsNotExist(err) {
			select {
			case dw.errC <- err:
			default:
			}
		}
		return
	}
	if len(recs) < dw.seen {
		dw.seen = 0 // truncated or replaced
	}
	for _, r := range recs[dw.seen:] {
		select {
		case dw.recC <- r:
		case <-dw.done:
			return
		}
	}
	dw.seen = len(recs)
}
