// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package script

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"code.hybscloud.com/linelock"
	"github.com/fsnotify/fsnotify"
)

// Ext is the file extension of loadable programs.
const Ext = ".lua"

// ProgramName maps a script path to its program name.
func ProgramName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), Ext)
}

// LoadFile compiles path and loads or replaces its program in rt.
func LoadFile(rt *Runtime, path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := Compile(ProgramName(path), f)
	if err != nil {
		return nil, err
	}
	if err := rt.Reload(p); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadDir loads every program file in dir. It returns the loaded names and
// the first error; files after a failure are still tried.
func LoadDir(rt *Runtime, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	var errs []error
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != Ext {
			continue
		}
		p, err := LoadFile(rt, filepath.Join(dir, e.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		names = append(names, p.Name())
	}
	return names, errors.Join(errs...)
}

// Watcher reloads programs when their files change. Reloading unloads the
// old program first, which resumes every thread parked in it.
type Watcher struct {
	rt  *Runtime
	dir string
	log linelock.Logger
	fsw *fsnotify.Watcher
}

// NewWatcher watches dir for program files.
func NewWatcher(rt *Runtime, dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{rt: rt, dir: dir, log: rt.log, fsw: fsw}, nil
}

// Run applies file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("script watcher error", linelock.F("dir", w.dir), linelock.F("error", err))
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if filepath.Ext(ev.Name) != Ext {
		return
	}
	name := ProgramName(ev.Name)
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if _, err := LoadFile(w.rt, ev.Name); err != nil {
			w.log.Warn("script reload failed", linelock.F("program", name), linelock.F("error", err))
			return
		}
		w.log.Info("script reloaded", linelock.F("program", name))
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if err := w.rt.Unload(name); err != nil && !errors.Is(err, linelock.ErrNoSuchProgram) {
			w.log.Warn("script unload failed", linelock.F("program", name), linelock.F("error", err))
			return
		}
		w.log.Info("script removed", linelock.F("program", name))
	}
}
