// Package watchtool implements the "watch" tool: starts a debounced
// fsnotify watch over a directory tree and returns a bounded batch of
// change events observed within a caller-supplied window. Grounded on
// kadirpekel-hector's v2/rag/watcher.go FileWatcher (directory walk +
// recursive Add, debounce-by-coalescing-map, bounded event channel).
package watchtool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codeforge/codeforge/internal/errs"
	"github.com/codeforge/codeforge/internal/tool"
	"github.com/codeforge/codeforge/internal/tool/pathguard"
)

// MaxEvents caps how many distinct paths are reported per call; events
// are naturally coalesced per path since pending is keyed by relative
// path and OR's together every Op observed for it within the window.
const MaxEvents = 200

// ChangeEvent describes one observed filesystem change.
type ChangeEvent struct {
	Path string `json:"path"`
	Op   string `json:"op"`
}

// Tool implements tool.Tool for the "watch" id.
type Tool struct{}

// New constructs the watch tool.
func New() *Tool { return &Tool{} }

func (*Tool) ID() string { return "watch" }

func (*Tool) Description() string {
	return "Watches a directory for file changes for a bounded duration and returns what changed."
}

func (*Tool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"duration_seconds": {"type": "integer", "default": 5},
			"glob": {"type": "string"}
		},
		"required": ["path"]
	}`)
}

func (t *Tool) Execute(ctx context.Context, args map[string]any, ectx tool.ExecutionContext) (tool.Result, error) {
	rawPath, _ := args["path"].(string)
	if rawPath == "" {
		return tool.Result{}, errs.New(errs.KindInvalidParameters, "path is required")
	}
	duration := 5 * time.Second
	if v, ok := args["duration_seconds"].(float64); ok && v > 0 {
		duration = time.Duration(v) * time.Second
	}
	if duration > 60*time.Second {
		duration = 60 * time.Second
	}
	fileGlob, _ := args["glob"].(string)

	root, err := pathguard.Resolve(ectx.WorkingDir, rawPath)
	if err != nil {
		return tool.Result{}, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return tool.Result{}, errs.Wrap(errs.KindInternal, "create watcher", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, root); err != nil {
		return tool.Result{}, errs.Wrap(errs.KindIO, "watch directory tree", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()
	if ectx.Abort != nil {
		go func() {
			select {
			case <-ectx.Abort.Done():
				cancel()
			case <-runCtx.Done():
			}
		}()
	}

	pending := make(map[string]fsnotify.Op)
	var mu sync.Mutex
	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					finish()
					return
				}
				if ev.Op&fsnotify.Chmod == fsnotify.Chmod {
					continue
				}
				rel, relErr := filepath.Rel(root, ev.Name)
				if relErr != nil {
					rel = ev.Name
				}
				if fileGlob != "" {
					if matched, _ := filepath.Match(fileGlob, filepath.Base(ev.Name)); !matched {
						continue
					}
				}
				mu.Lock()
				pending[rel] = pending[rel] | ev.Op
				full := len(pending) >= MaxEvents
				mu.Unlock()
				if full {
					finish()
					return
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					finish()
					return
				}
			case <-runCtx.Done():
				finish()
				return
			}
		}
	}()

	<-done

	mu.Lock()
	events := make([]ChangeEvent, 0, len(pending))
	for path, op := range pending {
		events = append(events, ChangeEvent{Path: path, Op: opString(op)})
	}
	mu.Unlock()

	buf, err := json.Marshal(events)
	if err != nil {
		return tool.Result{}, errs.Wrap(errs.KindInternal, "encode watch events", err)
	}

	return tool.Result{
		Title:  rawPath,
		Output: string(buf),
		Metadata: map[string]any{
			"count": len(events),
		},
	}, nil
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" || d.Name() == "node_modules" {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func opString(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create == fsnotify.Create:
		return "create"
	case op&fsnotify.Write == fsnotify.Write:
		return "write"
	case op&fsnotify.Remove == fsnotify.Remove:
		return "remove"
	case op&fsnotify.Rename == fsnotify.Rename:
		return "rename"
	default:
		return "unknown"
	}
}
