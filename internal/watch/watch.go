// Package watch emits PDFs dropped into an inbox directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events produced while a file is
// being copied in.
const DefaultDebounce = 750 * time.Millisecond

// Config configures an inbox watcher.
type Config struct {
	Dir         string
	Debounce    time.Duration
	InitialScan bool // emit PDFs already present when the watcher starts
	Logger      *slog.Logger
}

// Start watches cfg.Dir and emits the path of every PDF created or written
// there, once its events have been quiet for the debounce interval. Both
// channels close when ctx is cancelled.
func Start(ctx context.Context, cfg Config) (<-chan string, <-chan error, error) {
	if cfg.Dir == "" {
		return nil, nil, errors.New("no inbox directory provided")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "watch", "dir", cfg.Dir)

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create inbox: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(cfg.Dir); err != nil {
		_ = w.Close()
		return nil, nil, fmt.Errorf("failed to watch %s: %w", cfg.Dir, err)
	}

	var initial []string
	if cfg.InitialScan {
		initial, err = scan(cfg.Dir)
		if err != nil {
			_ = w.Close()
			return nil, nil, err
		}
	}

	evCh := make(chan string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer w.Close()

		send := func(paths []string) bool {
			for _, p := range paths {
				select {
				case evCh <- p:
				case <-ctx.Done():
					return false
				}
			}
			return true
		}
		if !send(initial) {
			return
		}

		pending := map[string]struct{}{}
		flush := func() bool {
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			sort.Strings(paths)
			return send(paths)
		}

		var timer *time.Timer
		var timerC <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return

			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if !IsPDF(e.Name) || e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				pending[e.Name] = struct{}{}
				if cfg.Debounce <= 0 {
					if !flush() {
						return
					}
					continue
				}
				if timer == nil {
					timer = time.NewTimer(cfg.Debounce)
				} else {
					timer.Reset(cfg.Debounce)
				}
				timerC = timer.C

			case <-timerC:
				timerC = nil
				if !flush() {
					return
				}

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	logger.Info("watching inbox", "debounce", cfg.Debounce, "initial", len(initial))
	return evCh, errCh, nil
}

// IsPDF reports whether path has a .pdf extension.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

func scan(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan inbox: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && IsPDF(e.Name()) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}

// Handler processes one inbox file.
type Handler func(ctx context.Context, path string) error

// Run watches cfg.Dir and calls handle for each new PDF, one at a time. A
// file is handled again only if its size or modification time changes.
// Handler errors are logged and do not stop the watcher. Run returns when
// ctx is cancelled.
func Run(ctx context.Context, cfg Config, handle Handler) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	events, errs, err := Start(ctx, cfg)
	if err != nil {
		return err
	}

	type stamp struct {
		size int64
		mod  time.Time
	}
	seen := make(map[string]stamp)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("inbox watcher reported an error", "error", err)
		case path, ok := <-events:
			if !ok {
				return nil
			}
			info, err := os.Stat(path)
			if err != nil {
				// Moved away or deleted before we got to it.
				continue
			}
			st := stamp{size: info.Size(), mod: info.ModTime()}
			if prev, ok := seen[path]; ok && prev == st {
				continue
			}
			seen[path] = st

			start := time.Now()
			logger.Info("processing inbox file", "file", filepath.Base(path))
			if err := handle(ctx, path); err != nil {
				logger.Error("failed to process inbox file",
					"file", filepath.Base(path),
					"error", err)
				continue
			}
			logger.Info("processed inbox file",
				"file", filepath.Base(path),
				"duration", time.Since(start))
		}
	}
}
