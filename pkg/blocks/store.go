package blocks

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Store owns the document forest and the selection. Every mutation builds a
// new forest that shares untouched subtrees with the previous one, so a
// forest handed out by Snapshot is never changed underneath its reader.
type Store struct {
	mu       sync.RWMutex
	forest   []Block
	selected string
	version  uint64
	// ids of removed blocks; Add never hands them out again.
	retired map[string]struct{}

	hookMu   sync.Mutex
	notified uint64
	onChange func(forest []Block)
}

// NewStore creates an empty store. onChange, when non-nil, is called with a
// copy of the forest after every successful mutation, outside the lock.
// Calls are serialized, and a snapshot older than one already delivered is
// dropped, so the last call always carries the current forest.
func NewStore(onChange func(forest []Block)) *Store {
	return &Store{onChange: onChange, retired: make(map[string]struct{})}
}

// Snapshot returns a deep copy of the forest.
func (s *Store) Snapshot() []Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneForest(s.forest)
}

// Selected returns the selected block id, or "" when nothing is selected.
func (s *Store) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Find returns a copy of the block with id.
func (s *Store) Find(id string) (Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := find(s.forest, id)
	if !ok {
		return Block{}, false
	}
	return b.Clone(), true
}

// Select sets the selection. An empty id clears it.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		if _, ok := find(s.forest, id); !ok {
			return fmt.Errorf("%w: %s", ErrBlockNotFound, id)
		}
	}
	s.selected = id
	return nil
}

// Add appends block to the root sequence, or to the children of parentID
// when it is non-empty. Missing ids in block and its descendants are
// generated. The id of the added block is returned.
func (s *Store) Add(block Block, parentID string) (string, error) {
	s.mu.Lock()

	seen := ids(s.forest)
	for id := range s.retired {
		seen[id] = struct{}{}
	}
	b, err := prepare(block, seen)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}

	if parentID == "" {
		next := make([]Block, 0, len(s.forest)+1)
		next = append(next, s.forest...)
		s.forest = append(next, b)
	} else {
		var parentErr error
		next, ok := transform(s.forest, parentID, func(p Block) []Block {
			if !p.Type.Container() {
				parentErr = fmt.Errorf("%w: %s", ErrNotContainer, p.Type)
				return []Block{p}
			}
			p.Children = append(slices.Clip(p.Children), b)
			return []Block{p}
		})
		if !ok {
			s.mu.Unlock()
			return "", fmt.Errorf("%w: parent %s", ErrBlockNotFound, parentID)
		}
		if parentErr != nil {
			s.mu.Unlock()
			return "", parentErr
		}
		s.forest = next
	}

	s.commit()
	return b.ID, nil
}

// Update shallow-merges props into the props of block id. Children are left
// untouched.
func (s *Store) Update(id string, props map[string]any) error {
	s.mu.Lock()

	next, ok := transform(s.forest, id, func(b Block) []Block {
		merged := make(map[string]any, len(b.Props)+len(props))
		maps.Copy(merged, b.Props)
		maps.Copy(merged, props)
		b.Props = merged
		return []Block{b}
	})
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	s.forest = next

	s.commit()
	return nil
}

// Remove deletes block id and all of its descendants. If the selection
// pointed into the removed subtree it is cleared.
func (s *Store) Remove(id string) error {
	s.mu.Lock()

	var removed Block
	next, ok := transform(s.forest, id, func(b Block) []Block {
		removed = b
		return nil
	})
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	s.forest = next
	Walk([]Block{removed}, func(b Block) bool {
		s.retired[b.ID] = struct{}{}
		return true
	})

	if s.selected != "" {
		if _, inSubtree := find([]Block{removed}, s.selected); inSubtree {
			s.selected = ""
		}
	}

	s.commit()
	return nil
}

// ReplaceAll swaps in a whole new forest, for example a loaded snapshot.
// The selection is kept only if the selected block still exists. Ids that
// drop out of the document are retired; ids the new forest brings back are
// live again.
func (s *Store) ReplaceAll(forest []Block) error {
	seen := make(map[string]struct{})
	next := make([]Block, 0, len(forest))
	for _, b := range forest {
		prepared, err := prepare(b, seen)
		if err != nil {
			return err
		}
		next = append(next, prepared)
	}

	s.mu.Lock()
	Walk(s.forest, func(b Block) bool {
		if _, kept := seen[b.ID]; !kept {
			s.retired[b.ID] = struct{}{}
		}
		return true
	})
	for id := range seen {
		delete(s.retired, id)
	}
	s.forest = next
	if s.selected != "" {
		if _, ok := find(next, s.selected); !ok {
			s.selected = ""
		}
	}
	s.commit()
	return nil
}

// commit stamps the new forest with a version, releases the write lock and
// then notifies the change hook unless a newer version was delivered first.
func (s *Store) commit() {
	s.version++
	version := s.version
	var snapshot []Block
	if s.onChange != nil {
		snapshot = cloneForest(s.forest)
		if snapshot == nil {
			snapshot = []Block{}
		}
	}
	s.mu.Unlock()

	if s.onChange == nil {
		return
	}
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	if version <= s.notified {
		return
	}
	s.notified = version
	s.onChange(snapshot)
}

// prepare validates an incoming block tree and returns a private copy with
// every missing id filled in. seen collects the ids already in use.
func prepare(b Block, seen map[string]struct{}) (Block, error) {
	if !b.Type.Valid() {
		return Block{}, fmt.Errorf("%w: %q", ErrUnknownBlockType, b.Type)
	}
	if len(b.Children) > 0 && !b.Type.Container() {
		return Block{}, fmt.Errorf("%w: %s", ErrNotContainer, b.Type)
	}

	out := Block{ID: b.ID, Type: b.Type, Props: maps.Clone(b.Props)}
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if _, dup := seen[out.ID]; dup {
		return Block{}, fmt.Errorf("%w: %s", ErrDuplicateID, out.ID)
	}
	seen[out.ID] = struct{}{}

	if len(b.Children) > 0 {
		out.Children = make([]Block, 0, len(b.Children))
		for _, c := range b.Children {
			child, err := prepare(c, seen)
			if err != nil {
				return Block{}, err
			}
			out.Children = append(out.Children, child)
		}
	}
	return out, nil
}

// transform replaces the block with id by the result of fn and returns the
// new forest. Only the slices on the path to the block are copied.
func transform(list []Block, id string, fn func(b Block) []Block) ([]Block, bool) {
	for i, b := range list {
		if b.ID == id {
			repl := fn(b)
			out := make([]Block, 0, len(list)-1+len(repl))
			out = append(out, list[:i]...)
			out = append(out, repl...)
			out = append(out, list[i+1:]...)
			return out, true
		}
		if len(b.Children) == 0 {
			continue
		}
		if children, ok := transform(b.Children, id, fn); ok {
			out := slices.Clone(list)
			b.Children = children
			out[i] = b
			return out, true
		}
	}
	return list, false
}

func find(list []Block, id string) (Block, bool) {
	var found Block
	ok := false
	Walk(list, func(b Block) bool {
		if b.ID == id {
			found, ok = b, true
			return false
		}
		return true
	})
	return found, ok
}

func ids(list []Block) map[string]struct{} {
	seen := make(map[string]struct{})
	Walk(list, func(b Block) bool {
		seen[b.ID] = struct{}{}
		return true
	})
	return seen
}
