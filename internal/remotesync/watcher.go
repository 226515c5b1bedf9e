package remotesync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/campkeeper/campkeeper/internal/campaign"
)

const watcherDebounce = 250 * time.Millisecond

// FileWatcher notices out-of-band edits to the document file: a text editor,
// another process, a restored backup. Our own saves are filtered out by
// comparing the file's content hash against the store's last-saved hash, so
// only genuinely external writes reach OnChange.
type FileWatcher struct {
	path   string
	store  *campaign.Store
	logger campaign.Logger
	// OnChange receives the externally edited document. Typically wired to
	// re-render plus Reconciler.PushLocal.
	onChange func(campaign.Document)
}

func NewFileWatcher(path string, store *campaign.Store, logger campaign.Logger, onChange func(campaign.Document)) (*FileWatcher, error) {
	if path == "" || store == nil {
		return nil, campaign.ErrInvalidInput
	}
	return &FileWatcher{path: path, store: store, logger: logger, onChange: onChange}, nil
}

// Run watches until ctx is done. The parent directory is watched rather than
// the file: atomic saves replace the file by rename, which would invalidate a
// watch on the file itself.
func (w *FileWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	var debounce *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Editors and atomic renames produce event bursts; coalesce them.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watcherDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logf("document watch error: %v", err)
		case <-fire:
			w.checkFile()
		}
	}
}

func (w *FileWatcher) checkFile() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logf("error reading edited document: %v", err)
		}
		return
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) == w.store.LastSavedHash() {
		return
	}
	doc, err := campaign.DecodeDocument(data)
	if err != nil {
		w.logf("ignoring malformed external edit: %v", err)
		return
	}
	w.logf("external edit detected on %s", w.path)
	if w.onChange != nil {
		w.onChange(doc)
	}
}

func (w *FileWatcher) logf(format string, args ...any) {
	if w.logger == nil {
		return
	}
	w.logger.Printf(format, args...)
}
