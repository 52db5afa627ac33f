package config

import (
	"context"
	"path/filepath"

	"codeberg.org/mutker/socpowerd/internal/errors"
	"codeberg.org/mutker/socpowerd/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// Watch reloads the configuration whenever its file is written or replaced.
// The directory is watched rather than the file so editors that rename a
// new file into place are seen.
func (c *Config) Watch(ctx context.Context, callback func(*Config)) error {
	errFactory := errors.New()
	log := logger.New("config")

	if c.File == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "no configuration file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errFactory.Wrap(errors.ErrInitFailed, err)
	}
	defer watcher.Close()

	target := filepath.Clean(c.File)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return errFactory.Wrap(errors.ErrInitFailed, err)
	}

	log.Info().Str("path", target).Msg("Watching configuration file")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event, target) {
				continue
			}

			next, err := read(target, true, c.envPrefix, c.flags)
			if err == nil {
				err = next.Validate()
			}
			if err != nil {
				log.Warn().Err(err).Msg("Ignoring invalid configuration change")
				continue
			}

			log.Info().Str("op", event.Op.String()).Msg("Configuration reloaded")
			callback(next)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Configuration watcher error")
		}
	}
}

func relevant(event fsnotify.Event, target string) bool {
	if filepath.Clean(event.Name) != target {
		return false
	}

	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}
