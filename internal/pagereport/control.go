package pagereport

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// ControlSurface watches a directory of flag files — enabled, hwm,
// max_batch — the in-core half of the sysctl/sysfs-style control plane
// named out of scope in spec §1. It applies validated changes to a running
// Controller's tunables without a restart, the same fsnotify idiom as
// internal/runtime/vfs.FSNotifyWatcher.
type ControlSurface struct {
	dir  string
	ctrl *Controller
	w    *fsnotify.Watcher
	done chan struct{}
}

const (
	controlFileEnabled  = "enabled"
	controlFileHWM      = "hwm"
	controlFileMaxBatch = "max_batch"
)

// WatchControlDir starts watching dir for changes to the enabled, hwm, and
// max_batch flag files, applying each to ctrl as it changes. The initial
// contents of any file present at call time are applied immediately.
func WatchControlDir(dir string, ctrl *Controller) (*ControlSurface, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := w.Add(dir); err != nil {
		w.Close()

		return nil, err
	}

	cs := &ControlSurface{dir: dir, ctrl: ctrl, w: w, done: make(chan struct{})}

	for _, name := range []string{controlFileEnabled, controlFileHWM, controlFileMaxBatch} {
		cs.apply(name)
	}

	go cs.loop()

	return cs, nil
}

// Close stops watching and releases the underlying fsnotify watcher.
func (cs *ControlSurface) Close() error {
	err := cs.w.Close()
	<-cs.done

	return err
}

func (cs *ControlSurface) loop() {
	defer close(cs.done)

	for {
		select {
		case ev, ok := <-cs.w.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				cs.apply(filepath.Base(ev.Name))
			}
		case err, ok := <-cs.w.Errors:
			if !ok {
				return
			}
			// Watch errors are logged to the Controller's logger; the
			// watch itself keeps running.
			cs.ctrl.logger.Printf("pagereport: control surface: watch error: %v", err)
		}
	}
}

func (cs *ControlSurface) apply(name string) {
	raw, err := os.ReadFile(filepath.Join(cs.dir, name))
	if err != nil {
		return
	}

	value := strings.TrimSpace(string(raw))

	switch name {
	case controlFileEnabled:
		switch value {
		case "1", "true":
			cs.ctrl.enabled.Store(true)
		case "0", "false":
			cs.ctrl.enabled.Store(false)
		default:
			cs.ctrl.logger.Printf("pagereport: control surface: ignoring malformed enabled value %q", value)
		}
	case controlFileHWM:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			cs.ctrl.logger.Printf("pagereport: control surface: ignoring malformed hwm value %q", value)

			return
		}

		cs.ctrl.hwm.Store(int32(n))
	case controlFileMaxBatch:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			cs.ctrl.logger.Printf("pagereport: control surface: ignoring malformed max_batch value %q", value)

			return
		}

		cs.ctrl.maxBatch.Store(int32(n))
	}
}
