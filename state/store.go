package state

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Change describes a single applied write.
type Change struct {
	Path      string    `json:"path"`
	OldValue  any       `json:"oldValue"`
	NewValue  any       `json:"newValue"`
	Origin    string    `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// SubscribeFunc receives change notifications. It is invoked synchronously
// after every successful write, in write order. It must not write back into
// the store.
type SubscribeFunc func(Change)

// Store owns the state tree. All mutation goes through Write; the tree is
// never handed out by reference. Construct one per server (or per test case).
type Store struct {
	mu   sync.RWMutex
	tree map[string]any

	// notifyMu serializes subscriber callbacks so they observe changes in
	// the same order the writes were applied.
	notifyMu sync.Mutex

	subsMu  sync.RWMutex
	subs    map[int]SubscribeFunc
	nextSub int

	updates atomic.Uint64
	started time.Time
}

// NewStore creates a store owning the given tree. A nil tree starts empty.
func NewStore(tree map[string]any) *Store {
	if tree == nil {
		tree = make(map[string]any)
	}
	return &Store{
		tree:    tree,
		subs:    make(map[int]SubscribeFunc),
		started: time.Now(),
	}
}

// StartedAt returns the store creation time, used as the process uptime base.
func (s *Store) StartedAt() time.Time {
	return s.started
}

// UpdateCount returns the number of successful writes since creation.
func (s *Store) UpdateCount() uint64 {
	return s.updates.Load()
}

// Read returns the node at the given dot-separated path. The second return
// value is false when the path does not exist; an absent path is not an error.
func (s *Store) Read(path string) (any, bool) {
	segments, err := SplitPath(path)
	if err != nil {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var node any = s.tree
	for _, seg := range segments {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return deepCopy(node), true
}

// Snapshot returns a deep copy of the whole tree.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepCopy(s.tree).(map[string]any)
}

// Write sets the value at the given path, creating intermediate nodes as
// needed. An intermediate that exists but is not a tree node is replaced,
// matching the deliberately loose patch contract. origin identifies the
// issuing connection and is carried on the change event so broadcast can
// exclude the originator.
func (s *Store) Write(path string, value any, origin string) (Change, error) {
	segments, err := SplitPath(path)
	if err != nil {
		return Change{}, err
	}

	s.mu.Lock()

	node := s.tree
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}

	leaf := segments[len(segments)-1]
	change := Change{
		Path:      path,
		OldValue:  deepCopy(node[leaf]),
		NewValue:  deepCopy(value),
		Origin:    origin,
		Timestamp: time.Now(),
	}
	node[leaf] = deepCopy(value)
	s.updates.Add(1)

	// Hand off to the notification lock before releasing the tree lock so
	// notifications are delivered in write order. Subscribers may Read but
	// must not Write.
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.subsMu.RLock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]SubscribeFunc, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, s.subs[id])
	}
	s.subsMu.RUnlock()

	for _, fn := range subs {
		fn(change)
	}

	return change, nil
}

// Subscribe registers a change callback and returns a function that removes it.
func (s *Store) Subscribe(fn SubscribeFunc) func() {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

// deepCopy copies the JSON-shaped subset of values (maps, slices, scalars).
// Anything else is returned as-is.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
