// Package loader watches a directory for workflow definition files and
// feeds each new or changed one to a submitter callback, so a deployment
// can drop JSON files into a directory instead of calling `workflow-core
// run` once per file. Grounded on the directory-watch/hot-reload shape
// `jordigilh-kubernaut`'s policy hot-reloader exercises with
// `github.com/fsnotify/fsnotify`, generalized from reloading one
// ConfigMap-backed policy file to loading any number of workflow
// definitions from a directory.
package loader

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/flowforge/workflow-core/pkg/workflow"
)

// Loader watches a single directory, non-recursively, for *.json files.
type Loader struct {
	watcher *fsnotify.Watcher
	dir     string
	log     zerolog.Logger
}

// New opens an fsnotify watch on dir. The caller must call Close when done.
func New(dir string, log zerolog.Logger) (*Loader, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &Loader{watcher: w, dir: dir, log: log}, nil
}

func (l *Loader) Close() error {
	return l.watcher.Close()
}

// LoadExisting parses every *.json file already in the directory, in
// filepath.Glob's lexical order, and hands each to onDefinition. Call this
// once before Watch to pick up files present at startup.
func (l *Loader) LoadExisting(onDefinition func(path string, def workflow.Definition)) error {
	matches, err := filepath.Glob(filepath.Join(l.dir, "*.json"))
	if err != nil {
		return err
	}
	for _, path := range matches {
		l.loadOne(path, onDefinition)
	}
	return nil
}

// Watch blocks, feeding onDefinition every time a *.json file in the
// directory is created or written, until the watcher is closed or stop is
// closed. Parse errors are logged, not returned: one malformed definition
// must not take down the watch loop.
func (l *Loader) Watch(stop <-chan struct{}, onDefinition func(path string, def workflow.Definition)) {
	for {
		select {
		case <-stop:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			l.loadOne(event.Name, onDefinition)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.log.Error().Err(err).Msg("definitions watcher error")
		}
	}
}

func (l *Loader) loadOne(path string, onDefinition func(path string, def workflow.Definition)) {
	raw, err := os.ReadFile(path)
	if err != nil {
		l.log.Error().Err(err).Str("path", path).Msg("failed to read definition file")
		return
	}
	var def workflow.Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		l.log.Error().Err(err).Str("path", path).Msg("failed to parse definition file")
		return
	}
	onDefinition(path, def)
}
