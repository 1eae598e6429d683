package marker

import (
	"context"
	"sync"
)

// MemoryStore keeps markers in process memory
type MemoryStore struct {
	markers sync.Map // parent ID -> Marker
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Attach(_ context.Context, m Marker) (Outcome, error) {
	if m.ParentID == "" {
		return AlreadyPresent, ErrEmptyParentID
	}
	if _, loaded := s.markers.LoadOrStore(m.ParentID, m); loaded {
		return AlreadyPresent, nil
	}
	return Attached, nil
}

func (s *MemoryStore) Get(_ context.Context, parentID string) (Marker, bool, error) {
	v, ok := s.markers.Load(parentID)
	if !ok {
		return Marker{}, false, nil
	}
	return v.(Marker), true, nil
}

func (s *MemoryStore) Detach(_ context.Context, parentID string) error {
	s.markers.Delete(parentID)
	return nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	n := 0
	s.markers.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n, nil
}
