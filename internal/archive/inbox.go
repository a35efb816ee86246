// Inbox adapts the teacher's internal/driver/watcher file-watch loop
// (fsnotify + extension screening + an inactivity timer to avoid
// processing a half-written file) to spec.md's offline-processor
// on-ramp: a directory where the capture core (or the command bridge
// relaying archives off-device) drops ".zip" bundles for later
// processing. Grounded on internal/driver/watcher/fileWatch.go's
// Watch/scan/dispatch structure; trimmed of the teacher's
// multi-destination Server/upload and on-disk history-file concerns,
// which spec.md's offline processor has no equivalent of.
package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/warpcomdev/rawcore/internal/rawlog"
)

var (
	inboxDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rawcore_inbox_archives_detected_total",
		Help: "Number of archive files detected in the inbox folder",
	})
	inboxProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rawcore_inbox_archives_processed_total",
		Help: "Number of archive files successfully handed to the processor",
	})
)

// Handler processes one archive once it stops changing.
type Handler func(ctx context.Context, path string) error

// Inbox watches a folder for ".zip" archives and invokes Handler once
// no create or write event has been seen for a file for quiet (the
// file size itself is not checked; spec.md's archives are
// written atomically by a single process, but the inbox may sit on a
// slower filesystem where writes still straddle multiple fsnotify
// events).
type Inbox struct {
	logger rawlog.Logger
	folder string
	quiet  time.Duration
	handle Handler
}

// NewInbox builds an Inbox rooted at folder.
func NewInbox(logger rawlog.Logger, folder string, quiet time.Duration, handle Handler) *Inbox {
	return &Inbox{logger: logger, folder: folder, quiet: quiet, handle: handle}
}

// Watch blocks until ctx is cancelled or an unrecoverable error occurs,
// mirroring the teacher's FileWatch.Watch contract.
func (in *Inbox) Watch(ctx context.Context) error {
	absPath, err := filepath.Abs(in.folder)
	if err != nil {
		return err
	}
	if stat, err := os.Stat(absPath); err != nil {
		return err
	} else if !stat.IsDir() {
		return errors.New("archive: inbox path must be a directory")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(absPath); err != nil {
		return err
	}

	in.scanExisting(ctx, absPath)

	pending := make(map[string]*time.Timer)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	trigger := make(chan string, 16)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return errors.New("archive: inbox watcher closed")
			}
			if !in.interesting(ev.Name) {
				continue
			}
			if !(ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
				continue
			}
			name := ev.Name
			if t, ok := pending[name]; ok {
				t.Stop()
			}
			pending[name] = time.AfterFunc(in.quiet, func() {
				select {
				case trigger <- name:
				case <-ctx.Done():
				}
			})
			inboxDetected.Inc()
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("archive: inbox watcher error channel closed")
			}
			in.logger.Error("inbox watcher error", rawlog.Error(err))
		case name := <-trigger:
			delete(pending, name)
			if err := in.handle(ctx, name); err != nil {
				in.logger.Error("inbox handler failed", rawlog.String("path", name), rawlog.Error(err))
				continue
			}
			inboxProcessed.Inc()
		}
	}
}

func (in *Inbox) interesting(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".zip")
}

// scanExisting picks up archives already present when Watch starts,
// matching the teacher's periodic directory scan for events fsnotify
// may have missed while the watcher was not yet running.
func (in *Inbox) scanExisting(ctx context.Context, absPath string) {
	entries, err := os.ReadDir(absPath)
	if err != nil {
		in.logger.Error("inbox initial scan failed", rawlog.String("folder", absPath), rawlog.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !in.interesting(entry.Name()) {
			continue
		}
		full := filepath.Join(absPath, entry.Name())
		inboxDetected.Inc()
		if err := in.handle(ctx, full); err != nil {
			in.logger.Error("inbox handler failed", rawlog.String("path", full), rawlog.Error(err))
			continue
		}
		inboxProcessed.Inc()
	}
}
