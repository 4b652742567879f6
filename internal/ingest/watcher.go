// Package ingest watches drop folders for permit documents and feeds
// them through the extraction pipeline.
package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/facilityhub/permit-tracker/constants"
)

// Subdirectories the watcher never descends into; processed documents
// are parked there.
var holdingDirs = map[string]struct{}{
	dirProcessed: {},
	dirReview:    {},
	dirFailed:    {},
}

type WatchConfig struct {
	// Root is the drop folder. Its first-level subdirectories are
	// facility UUIDs; documents go directly inside them.
	Root string
	// InitialScan walks the root on start and emits files already
	// present.
	InitialScan bool
	// Debounce coalesces rapid create/write bursts for the same path.
	Debounce time.Duration
}

// StartWatcher emits the path of every permit document dropped under
// the root. It returns once the watch is established; events flow on
// the returned channel until the context is cancelled.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan string, error) {
	if cfg.Root == "" {
		return nil, errors.New("watch root is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	evCh := make(chan string, 256)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	addTree := func(root string) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if _, held := holdingDirs[d.Name()]; held {
					return fs.SkipDir
				}
				return w.Add(path)
			}
			if cfg.InitialScan && allowed(path) {
				select {
				case evCh <- path:
				default:
				}
			}
			return nil
		})
	}
	if err := addTree(cfg.Root); err != nil {
		_ = w.Close()
		return nil, err
	}

	go func() {
		defer close(evCh)
		defer func() { _ = w.Close() }()

		var timer *time.Timer
		pending := map[string]struct{}{}

		sendPending := func() {
			for p := range pending {
				select {
				case evCh <- p:
				default:
				}
				delete(pending, p)
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				// A new facility directory starts getting watched too.
				if e.Op&fsnotify.Create == fsnotify.Create && !inHoldingDir(cfg.Root, e.Name) {
					_ = w.Add(e.Name)
				}

				if allowed(e.Name) && !inHoldingDir(cfg.Root, e.Name) &&
					e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
					pending[e.Name] = struct{}{}
					if cfg.Debounce > 0 {
						if timer != nil {
							timer.Stop()
						}
						timer = time.AfterFunc(cfg.Debounce, sendPending)
					} else {
						sendPending()
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("drop folder watch error", "error", err)
			}
		}
	}()

	return evCh, nil
}

func allowed(path string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(filepath.Ext(path))]
	return ok
}

// inHoldingDir reports whether any path component between root and the
// file is a holding directory.
func inHoldingDir(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	for rel != "." && rel != string(filepath.Separator) {
		if _, held := holdingDirs[filepath.Base(rel)]; held {
			return true
		}
		rel = filepath.Dir(rel)
	}
	return false
}
