package telemetry

import (
	"path/filepath"
	"strings"
	"sync"
)

// maxBoostMultiplier is the spec's hard ceiling on the advisory CNS
// boost telemetry can contribute; it is never allowed to dominate the
// kinematic signal.
const maxBoostMultiplier = 1.15

// Qualifier tracks the most recently reported focus state across all
// connected editor clients and turns it into a bounded CNS multiplier.
// It holds no kinematic data and never blocks battery charging on its
// own; a silent or disconnected editor simply yields a 1.0 multiplier.
type Qualifier struct {
	mu         sync.Mutex
	extensions map[string]struct{}
	focused    string
	isFocused  bool
}

// NewQualifier builds a Qualifier from the configured productive
// extensions allow-list (e.g. []string{".go", ".rs"}).
func NewQualifier(productiveExtensions []string) *Qualifier {
	q := &Qualifier{extensions: make(map[string]struct{}, len(productiveExtensions))}
	for _, ext := range productiveExtensions {
		q.extensions[normalizeExt(ext)] = struct{}{}
	}
	return q
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Reconfigure replaces the productive-extensions allow-list, used by the
// `reload-config` IPC op to re-apply the daemon's loaded config (the op
// does not re-read the config file).
func (q *Qualifier) Reconfigure(productiveExtensions []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.extensions = make(map[string]struct{}, len(productiveExtensions))
	for _, ext := range productiveExtensions {
		q.extensions[normalizeExt(ext)] = struct{}{}
	}
}

// Apply folds one decoded Event into the qualifier's focus state.
func (q *Qualifier) Apply(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch ev.Type {
	case EventFocusGained:
		q.isFocused = true
		if ev.FilePath != nil {
			q.focused = *ev.FilePath
		} else {
			q.focused = ""
		}
	case EventFocusLost, EventDisconnect:
		q.isFocused = false
		q.focused = ""
	case EventEditBurst:
		if ev.FilePath != nil {
			q.focused = *ev.FilePath
		}
	}
}

// Multiplier returns the current advisory CNS multiplier: 1.0 unless
// the client reports focus on a file whose extension is in the
// productive-extensions allow-list, in which case it returns the
// bounded boost.
func (q *Qualifier) Multiplier() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.isFocused || q.focused == "" {
		return 1.0
	}
	if _, ok := q.extensions[normalizeExt(filepath.Ext(q.focused))]; !ok {
		return 1.0
	}
	return maxBoostMultiplier
}

// Boosted applies the current multiplier to a raw CNS score, clamped
// back into [0,100] since the boost can push a near-maximal score
// slightly over.
func (q *Qualifier) Boosted(cns float64) float64 {
	boosted := cns * q.Multiplier()
	if boosted > 100 {
		return 100
	}
	return boosted
}
