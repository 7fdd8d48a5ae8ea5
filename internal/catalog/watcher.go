package catalog

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/metal-toolbox/placer/internal/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrWatcher = errors.New("catalog watcher error")

// Watcher invalidates catalogs when their documents change in a catalog directory.
type Watcher struct {
	dir      string
	onChange func(model.ComponentType)
	watcher  *fsnotify.Watcher
	logger   *logrus.Logger
}

// NewWatcher returns a Watcher for the directory, onChange is invoked with the
// component type of each catalog document written, created, removed or renamed.
func NewWatcher(dir string, onChange func(model.ComponentType), logger *logrus.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(ErrWatcher, err.Error())
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, errors.Wrap(ErrWatcher, err.Error())
	}

	return &Watcher{
		dir:      dir,
		onChange: onChange,
		watcher:  watcher,
		logger:   logger,
	}, nil
}

// Run processes file events until the context is cancelled, the watcher is closed on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	w.logger.WithField("dir", w.dir).Info("watching catalog directory")

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}

			w.logger.WithError(err).Warn("catalog watcher")
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	componentType, _, ok := ParseFileName(event.Name)
	if !ok {
		return
	}

	w.logger.WithFields(logrus.Fields{
		"componentType": componentType,
		"file":          event.Name,
		"op":            event.Op.String(),
	}).Info("catalog changed, invalidating")

	w.onChange(componentType)
}
