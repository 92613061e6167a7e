// Package filesystem serves projection fetch results from a local JSON file
// and reports changes to it.
package filesystem

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/turtacn/FeatureScope/internal/domain/projection"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FeatureScope/pkg/errors"
)

// DefaultDebounce collapses editor write bursts into one change.
const DefaultDebounce = 200 * time.Millisecond

// ErrFileNotFound is returned when the projection file does not exist.
var ErrFileNotFound = errors.New(errors.ErrCodeSnapshotNotFound, "projection file not found")

// FileStore reads one projection file.
type FileStore struct {
	path     string
	debounce time.Duration
	logger   logging.Logger
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(f *FileStore) { f.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(f *FileStore) { f.logger = l }
}

// NewFileStore returns a store for path.
func NewFileStore(path string, opts ...Option) *FileStore {
	f := &FileStore{path: filepath.Clean(path), debounce: DefaultDebounce, logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.Named("filesource")
	return f
}

// Path is the watched file.
func (f *FileStore) Path() string { return f.path }

// Load decodes the file.
func (f *FileStore) Load(ctx context.Context) (*projection.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fh, err := os.Open(f.path)
	if os.IsNotExist(err) {
		return nil, ErrFileNotFound.WithDetail(f.path)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to open projection file").WithDetail(f.path)
	}
	defer fh.Close()

	var res projection.FetchResult
	if err := json.NewDecoder(fh).Decode(&res); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode projection file").WithDetail(f.path)
	}
	return &res, nil
}

// Save writes result atomically through a temp file and rename.
func (f *FileStore) Save(result *projection.FetchResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode projection").WithDetail(f.path)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".projection-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to write projection file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to write projection file")
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to replace projection file").WithDetail(f.path)
	}
	return nil
}

// Watch calls onChange after the file is written, created or renamed into
// place, once per burst of events. It blocks until ctx is done.
func (f *FileStore) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to create file watcher")
	}
	defer w.Close()

	// the directory is watched so atomic renames are seen
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to watch directory").WithDetail(f.path)
	}
	f.logger.Info("watching projection file", logging.String("path", f.path))

	debounce := time.NewTimer(0)
	<-debounce.C
	defer debounce.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			pending = true
			debounce.Reset(f.debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("file watcher error", logging.Err(err))
		case <-debounce.C:
			if pending {
				pending = false
				f.logger.Info("projection file changed", logging.String("path", f.path))
				onChange()
			}
		}
	}
}
