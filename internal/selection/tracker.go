// Package selection tracks which rows of the rendered page are selected.
package selection

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/xaviermatuz/formdesk/model"
)

// ErrMissingID is returned in strict mode for rows without an id or key.
var ErrMissingID = errors.New("selection: row has neither id nor key")

// IDKey derives the identity of a row: its "id" field, else its "key"
// field, else its JSON serialization. The last fallback makes two
// structurally identical rows indistinguishable. The boolean reports whether
// a real identity field was used.
func IDKey(row map[string]any) (string, bool) {
	for _, field := range []string{"id", "key"} {
		if v, ok := row[field]; ok && v != nil {
			if s := model.FormatValue(v); s != "" {
				return s, true
			}
		}
	}
	data, err := json.Marshal(row)
	if err != nil {
		return "", false
	}
	return string(data), false
}

// Option configures a Tracker.
type Option func(*options)

type options struct {
	strict bool
}

// RequireID rejects rows that have no id or key instead of falling back to
// their serialized form.
func RequireID() Option {
	return func(o *options) { o.strict = true }
}

// Tracker is the set of selected row identities. It is safe for concurrent
// use.
type Tracker[R model.Resource] struct {
	opts options

	mu       sync.RWMutex
	selected map[string]struct{}
}

// New creates an empty Tracker.
func New[R model.Resource](opts ...Option) *Tracker[R] {
	t := &Tracker[R]{selected: make(map[string]struct{})}
	for _, opt := range opts {
		opt(&t.opts)
	}
	return t
}

// Key returns the identity used for row.
func (t *Tracker[R]) Key(row model.Row[R]) (string, error) {
	key, fromField := IDKey(row)
	if key == "" || (t.opts.strict && !fromField) {
		return "", ErrMissingID
	}
	return key, nil
}

// Toggle flips the membership of row.
func (t *Tracker[R]) Toggle(row model.Row[R]) error {
	key, err := t.Key(row)
	if err != nil {
		return err
	}
	t.ToggleKey(key)
	return nil
}

// ToggleKey flips the membership of an identity.
func (t *Tracker[R]) ToggleKey(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.selected[key]; ok {
		delete(t.selected, key)
		return
	}
	t.selected[key] = struct{}{}
}

// SelectAll replaces the selection with every row of the given page. Rows on
// other pages are not selected.
func (t *Tracker[R]) SelectAll(rows []model.Row[R]) error {
	next := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		key, err := t.Key(row)
		if err != nil {
			return err
		}
		next[key] = struct{}{}
	}
	t.mu.Lock()
	t.selected = next
	t.mu.Unlock()
	return nil
}

// ClearAll empties the selection.
func (t *Tracker[R]) ClearAll() {
	t.mu.Lock()
	t.selected = make(map[string]struct{})
	t.mu.Unlock()
}

// IsSelected reports whether row is selected.
func (t *Tracker[R]) IsSelected(row model.Row[R]) bool {
	key, err := t.Key(row)
	if err != nil {
		return false
	}
	return t.IsSelectedKey(key)
}

// IsSelectedKey reports whether the identity is selected.
func (t *Tracker[R]) IsSelectedKey(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.selected[key]
	return ok
}

// Len returns the number of selected identities.
func (t *Tracker[R]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.selected)
}

// Keys returns the selected identities in sorted order.
func (t *Tracker[R]) Keys() []string {
	t.mu.RLock()
	keys := make([]string, 0, len(t.selected))
	for k := range t.selected {
		keys = append(keys, k)
	}
	t.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// AllSelected reports whether rows is non-empty and every row is selected.
func (t *Tracker[R]) AllSelected(rows []model.Row[R]) bool {
	if len(rows) == 0 {
		return false
	}
	for _, row := range rows {
		if !t.IsSelected(row) {
			return false
		}
	}
	return true
}

// Pick returns the selected rows among rows, in their original order.
func (t *Tracker[R]) Pick(rows []model.Row[R]) []model.Row[R] {
	var out []model.Row[R]
	for _, row := range rows {
		if t.IsSelected(row) {
			out = append(out, row)
		}
	}
	return out
}

// Retain drops identities that are not present in rows. It is called when
// the loaded page is replaced.
func (t *Tracker[R]) Retain(rows []model.Row[R]) {
	present := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if key, err := t.Key(row); err == nil {
			present[key] = struct{}{}
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.selected {
		if _, ok := present[key]; !ok {
			delete(t.selected, key)
		}
	}
}
