package prompts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// reloadDelay debounces bursts of file events from editors.
const reloadDelay = 500 * time.Millisecond

// catalog is the on-disk layout of a registry file.
type catalog struct {
	Prompts []Metadata `yaml:"prompts"`
}

// FileRegistry serves metadata loaded from a YAML file and can reload it on change.
//
//	prompts:
//	  - id: scale-deployment
//	    name: Scale a deployment
//	    riskTier: medium
type FileRegistry struct {
	*StaticRegistry

	path   string
	logger zerolog.Logger
}

// NewFileRegistry loads the registry file at path.
func NewFileRegistry(path string, logger zerolog.Logger) (*FileRegistry, error) {
	r := &FileRegistry{
		StaticRegistry: &StaticRegistry{},
		path:           path,
		logger:         logger.With().Str("component", "prompt-registry").Logger(),
	}

	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the backing file path.
func (r *FileRegistry) Path() string {
	return r.path
}

// Reload re-reads the backing file. On error the previous contents are kept.
func (r *FileRegistry) Reload() error {
	entries, err := LoadFile(r.path)
	if err != nil {
		return err
	}
	if err := r.Replace(entries); err != nil {
		return fmt.Errorf("failed to load %s: %w", r.path, err)
	}

	r.logger.Info().
		Str("path", r.path).
		Int("prompts", len(entries)).
		Msg("Prompt registry loaded")
	return nil
}

// LoadFile parses a registry file.
func LoadFile(path string) ([]Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt registry: %w", err)
	}

	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse prompt registry %s: %w", path, err)
	}
	return c.Prompts, nil
}

// Watch reloads the registry whenever the backing file changes, until ctx is
// cancelled. The parent directory is watched so atomic renames are seen.
func (r *FileRegistry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", r.path, err)
	}

	go r.processEvents(ctx, watcher)

	r.logger.Info().Str("path", r.path).Msg("Watching prompt registry")
	return nil
}

func (r *FileRegistry) processEvents(ctx context.Context, watcher *fsnotify.Watcher) {
	defer func() { _ = watcher.Close() }()

	target := filepath.Clean(r.path)
	var reloadTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			r.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Prompt registry changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				if err := r.Reload(); err != nil {
					r.logger.Error().Err(err).Msg("Failed to reload prompt registry")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}
