package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ContextFileName is the workspace file whose content is folded into the
// system prompt.
const ContextFileName = "aicode.md"

// LoadContextFile reads the workspace context file. A missing file is not
// an error; it returns empty content.
func LoadContextFile(root string) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, ContextFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// WatchContextFile watches the workspace root and delivers the new content
// whenever the context file is written or created. It returns once the
// watcher is installed and stops when ctx is cancelled. Watching the
// directory instead of the file survives editors that replace on save.
func WatchContextFile(ctx context.Context, root string, onChange func(string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != ContextFileName {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				content, err := LoadContextFile(root)
				if err != nil {
					continue
				}
				onChange(content)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}
