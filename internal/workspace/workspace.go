// Package workspace manages the local data directory: one directory per table
// kind with raw, clean, realtimeRaw and realtimeClean subdirectories, plus an
// in-memory index of the files present in each.
package workspace

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gdelt-ingest/internal/schema"
)

// Mode selects the batch or real-time directory pair.
type Mode int

const (
	Batch Mode = iota
	Realtime
)

func (m Mode) String() string {
	if m == Realtime {
		return "realtime"
	}
	return "batch"
}

// ParseMode converts "batch" or "realtime" into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "batch", "":
		return Batch, nil
	case "realtime":
		return Realtime, nil
	default:
		return 0, eris.Errorf("workspace: unknown mode %q (valid: batch, realtime)", s)
	}
}

// State is one of the per-table file directories.
type State string

const (
	Raw           State = "raw"
	Clean         State = "clean"
	RealtimeRaw   State = "realtimeRaw"
	RealtimeClean State = "realtimeClean"
)

// AllStates lists every per-table directory.
var AllStates = []State{Raw, Clean, RealtimeRaw, RealtimeClean}

// RawState returns the raw directory for a mode.
func RawState(m Mode) State {
	if m == Realtime {
		return RealtimeRaw
	}
	return Raw
}

// CleanState returns the clean directory for a mode.
func CleanState(m Mode) State {
	if m == Realtime {
		return RealtimeClean
	}
	return Clean
}

// ModeStates returns the states belonging to a mode.
func ModeStates(m Mode) []State {
	return []State{RawState(m), CleanState(m)}
}

// Workspace is the local file layout plus its membership index. It is safe
// for concurrent use.
type Workspace struct {
	root string

	mu    sync.RWMutex
	files map[schema.Kind]map[State]map[string]struct{}
}

// Open creates any missing directories under root and indexes the files
// already present.
func Open(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, eris.Wrapf(err, "workspace: resolve %s", root)
	}
	w := &Workspace{root: abs}
	for _, k := range schema.AllKinds {
		for _, s := range AllStates {
			if err := os.MkdirAll(w.Dir(k, s), 0o755); err != nil {
				return nil, eris.Wrapf(err, "workspace: create %s/%s", k, s)
			}
		}
	}
	if err := w.Refresh(); err != nil {
		return nil, err
	}
	return w, nil
}

// Root returns the absolute data directory.
func (w *Workspace) Root() string { return w.root }

// Dir returns the directory of one table state.
func (w *Workspace) Dir(k schema.Kind, s State) string {
	return filepath.Join(w.root, k.String(), string(s))
}

// Path returns the full path of a file in one table state.
func (w *Workspace) Path(k schema.Kind, s State, name string) string {
	return filepath.Join(w.Dir(k, s), name)
}

// Refresh rebuilds the index from the directories on disk.
func (w *Workspace) Refresh() error {
	files := make(map[schema.Kind]map[State]map[string]struct{}, len(schema.AllKinds))
	for _, k := range schema.AllKinds {
		files[k] = make(map[State]map[string]struct{}, len(AllStates))
		for _, s := range AllStates {
			entries, err := os.ReadDir(w.Dir(k, s))
			if err != nil {
				return eris.Wrapf(err, "workspace: list %s/%s", k, s)
			}
			set := make(map[string]struct{}, len(entries))
			for _, e := range entries {
				if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
					continue
				}
				set[e.Name()] = struct{}{}
			}
			files[k][s] = set
		}
	}
	w.mu.Lock()
	w.files = files
	w.mu.Unlock()
	return nil
}

// Add records name as present in a table state.
func (w *Workspace) Add(k schema.Kind, s State, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[k][s][name] = struct{}{}
}

// Remove drops name from a table state's index.
func (w *Workspace) Remove(k schema.Kind, s State, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.files[k][s], name)
}

// Has reports whether name is indexed in a table state.
func (w *Workspace) Has(k schema.Kind, s State, name string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.files[k][s][name]
	return ok
}

// IsDownloaded reports whether a snapshot (archive or extracted name) is
// already present for the mode, either raw or already cleaned.
func (w *Workspace) IsDownloaded(k schema.Kind, m Mode, name string) bool {
	raw := strings.TrimSuffix(name, ".zip")
	return w.Has(k, RawState(m), raw) || w.Has(k, CleanState(m), schema.CleanFileName(raw))
}

// IsClean reports whether the clean output for a raw snapshot name exists.
func (w *Workspace) IsClean(k schema.Kind, m Mode, rawName string) bool {
	return w.Has(k, CleanState(m), schema.CleanFileName(rawName))
}

// List returns the indexed names of a table state, sorted.
func (w *Workspace) List(k schema.Kind, s State) []string {
	w.mu.RLock()
	names := make([]string, 0, len(w.files[k][s]))
	for n := range w.files[k][s] {
		names = append(names, n)
	}
	w.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Count returns the number of indexed files in a table state.
func (w *Workspace) Count(k schema.Kind, s State) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.files[k][s])
}

// ParseWipeTarget maps a wipe selector onto the states it removes:
// raw, clean, both (raw+clean), realtime (both realtime dirs) or all.
func ParseWipeTarget(s string) ([]State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raw":
		return []State{Raw}, nil
	case "clean", "":
		return []State{Clean}, nil
	case "both":
		return []State{Raw, Clean}, nil
	case "realtime":
		return []State{RealtimeRaw, RealtimeClean}, nil
	case "all":
		return append([]State(nil), AllStates...), nil
	default:
		return nil, eris.Errorf("workspace: unknown wipe state %q (valid: raw, clean, both, realtime, all)", s)
	}
}

// Wipe deletes every file in the given states of the given tables and returns
// the number removed. Individual delete failures are logged and skipped.
func (w *Workspace) Wipe(kinds []schema.Kind, states []State) (int, error) {
	log := zap.L().With(zap.String("component", "workspace"))
	removed := 0
	for _, k := range kinds {
		for _, s := range states {
			entries, err := os.ReadDir(w.Dir(k, s))
			if err != nil {
				return removed, eris.Wrapf(err, "workspace: list %s/%s", k, s)
			}
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				if err := os.Remove(w.Path(k, s, e.Name())); err != nil {
					log.Warn("delete failed", zap.String("table", k.String()),
						zap.String("state", string(s)), zap.String("file", e.Name()), zap.Error(err))
					continue
				}
				w.Remove(k, s, e.Name())
				removed++
			}
			log.Debug("wiped", zap.String("table", k.String()), zap.String("state", string(s)))
		}
	}
	return removed, nil
}
