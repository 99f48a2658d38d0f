// buildkit watch [dir]
package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/qobs-build/buildkit/internal/fingerprint"
	"github.com/qobs-build/buildkit/internal/msg"
	"github.com/spf13/cobra"
)

const defaultDebounce = 300 * time.Millisecond

func newWatchCommand() *cobra.Command {
	flags := newBuildFlags()
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch [project dir]",
		Short: "Build, then rebuild whenever a source or dependency changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := filepath.Abs(targetDir(args))
			if err != nil {
				return err
			}
			opts := flags.options(cmd)
			return watch(cmd.Context(), dir, debounce, func(force bool) (*buildResult, error) {
				o := opts
				o.force = o.force && force
				return runBuild(cmd.Context(), dir, o, cmd.OutOrStdout(), hasher)
			})
		},
	}
	flags.addFlags(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", defaultDebounce, "How long to wait for changes to settle before rebuilding")
	return cmd
}

// hasher is shared by every rebuild of a watch session.
var hasher = fingerprint.NewHasher()

// watcher rebuilds a project when a file in a directory it depends on
// changes. Events are debounced.
type watcher struct {
	fs       *fsnotify.Watcher
	dirs     map[string]bool
	ignore   []string
	debounce time.Duration
	rebuild  func(force bool) (*buildResult, error)
}

func watch(ctx context.Context, dir string, debounce time.Duration, rebuild func(force bool) (*buildResult, error)) error {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fs.Close()

	w := &watcher{
		fs:       fs,
		dirs:     make(map[string]bool),
		debounce: debounce,
		rebuild:  rebuild,
	}

	res, err := rebuild(true)
	if err != nil {
		msg.Error("%v", err)
	}
	w.update(dir, res)
	msg.Info("watching %d directories, press Ctrl+C to stop", len(w.dirs))

	return w.loop(ctx, dir)
}

// update watches the directories of everything the last build read.
func (w *watcher) update(dir string, res *buildResult) {
	want := map[string]bool{dir: true, filepath.Join(dir, "src"): true}
	if res != nil {
		w.ignore = []string{res.intermediateDir, res.productDir}
		for _, f := range res.sources {
			want[filepath.Dir(f)] = true
		}
		if res.state != nil {
			for _, f := range res.state.Watched() {
				want[filepath.Dir(f)] = true
			}
		}
	}

	for d := range w.dirs {
		if !want[d] {
			w.fs.Remove(d)
			delete(w.dirs, d)
		}
	}
	for d := range want {
		if w.dirs[d] {
			continue
		}
		if err := w.fs.Add(d); err != nil {
			msg.Debug("not watching %s: %v", d, err)
			continue
		}
		w.dirs[d] = true
	}
}

// relevant reports whether an event may affect the build. Writes to the
// build's own output are not.
func (w *watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	for _, dir := range w.ignore {
		if dir == "" {
			continue
		}
		if ev.Name == dir || strings.HasPrefix(ev.Name, dir+string(filepath.Separator)) {
			return false
		}
	}
	return true
}

func (w *watcher) loop(ctx context.Context, dir string) error {
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			msg.Debug("%s: %s", ev.Op, ev.Name)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			msg.Warn("watch error: %v", err)
		case <-fire:
			fire = nil
			res, err := w.rebuild(false)
			if err != nil {
				msg.Error("%v", err)
				continue
			}
			w.update(dir, res)
		}
	}
}
