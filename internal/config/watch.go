package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"tradewind/internal/logger"
)

// Watch reloads the config whenever the file changes and hands the fresh
// copy to onChange. A reload that fails validation is logged and dropped;
// the previous config stays active. Returns a stop function.
func Watch(path string, onChange func(*Config)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace the file on save, which drops
	// a watch registered on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	target := filepath.Clean(path)
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logger.Warnf("config: reload rejected: %v", err)
					continue
				}
				logger.Infof("config: reloaded %s", path)
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("config: watch error: %v", err)
			}
		}
	}()
	return func() { watcher.Close() }, nil
}
