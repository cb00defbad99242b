package matching

import (
	"context"
	"sync"
	"time"

	"github.com/pharmdata/remisia_backend/models"
)

// MemStore is an in-memory Store, used in tests and for one-shot
// reconciliations that never need durability. Transact snapshots the
// state and restores it on error, mirroring the rollback semantics of
// the GORM store.
type MemStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	byCode map[string]*models.EquivalenceMember
	nextId int
}

func NewMemStore() *MemStore {
	return &MemStore{state: &memState{byCode: make(map[string]*models.EquivalenceMember), nextId: 1}}
}

func (m *MemStore) Transact(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&lockedMemStore{state: m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *MemStore) Member(ctx context.Context, code string) (*models.EquivalenceMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.member(code), nil
}

func (m *MemStore) Members(ctx context.Context, groupId int) ([]models.EquivalenceMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.members(groupId), nil
}

func (m *MemStore) NextGroupId(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.nextGroupId(), nil
}

func (m *MemStore) Add(ctx context.Context, member *models.EquivalenceMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.add(member)
}

func (m *MemStore) MergeGroups(ctx context.Context, keepId, mergeId int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.mergeGroups(keepId, mergeId), nil
}

func (m *MemStore) SetValidated(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.setValidated(code), nil
}

func (m *MemStore) SetGroupValidated(ctx context.Context, groupId int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.setGroupValidated(groupId), nil
}

func (m *MemStore) Stats(ctx context.Context) (MemoryStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.stats(), nil
}

// lockedMemStore runs inside Transact with the mutex already held.
type lockedMemStore struct {
	state *memState
}

func (l *lockedMemStore) Transact(ctx context.Context, fn func(Store) error) error {
	return fn(l)
}

func (l *lockedMemStore) Member(ctx context.Context, code string) (*models.EquivalenceMember, error) {
	return l.state.member(code), nil
}

func (l *lockedMemStore) Members(ctx context.Context, groupId int) ([]models.EquivalenceMember, error) {
	return l.state.members(groupId), nil
}

func (l *lockedMemStore) NextGroupId(ctx context.Context) (int, error) {
	return l.state.nextGroupId(), nil
}

func (l *lockedMemStore) Add(ctx context.Context, member *models.EquivalenceMember) error {
	return l.state.add(member)
}

func (l *lockedMemStore) MergeGroups(ctx context.Context, keepId, mergeId int) (int, error) {
	return l.state.mergeGroups(keepId, mergeId), nil
}

func (l *lockedMemStore) SetValidated(ctx context.Context, code string) (bool, error) {
	return l.state.setValidated(code), nil
}

func (l *lockedMemStore) SetGroupValidated(ctx context.Context, groupId int) (int, error) {
	return l.state.setGroupValidated(groupId), nil
}

func (l *lockedMemStore) Stats(ctx context.Context) (MemoryStats, error) {
	return l.state.stats(), nil
}

func (s *memState) clone() *memState {
	cloned := &memState{byCode: make(map[string]*models.EquivalenceMember, len(s.byCode)), nextId: s.nextId}
	for code, member := range s.byCode {
		copied := *member
		cloned.byCode[code] = &copied
	}
	return cloned
}

func (s *memState) member(code string) *models.EquivalenceMember {
	member, ok := s.byCode[code]
	if !ok {
		return nil
	}
	copied := *member
	return &copied
}

func (s *memState) members(groupId int) []models.EquivalenceMember {
	var out []models.EquivalenceMember
	for _, member := range s.byCode {
		if member.GroupId == groupId {
			out = append(out, *member)
		}
	}
	return out
}

func (s *memState) nextGroupId() int {
	id := s.nextId
	s.nextId++
	return id
}

func (s *memState) add(member *models.EquivalenceMember) error {
	copied := *member
	if copied.GroupId >= s.nextId {
		s.nextId = copied.GroupId + 1
	}
	s.byCode[copied.ProductCode] = &copied
	return nil
}

func (s *memState) mergeGroups(keepId, mergeId int) int {
	var updated int
	for _, member := range s.byCode {
		if member.GroupId == mergeId {
			member.GroupId = keepId
			updated++
		}
	}
	return updated
}

func (s *memState) setValidated(code string) bool {
	member, ok := s.byCode[code]
	if !ok {
		return false
	}
	t := true
	now := time.Now().UTC()
	member.Validated = &t
	member.ValidatedAt = &now
	return true
}

func (s *memState) setGroupValidated(groupId int) int {
	var updated int
	now := time.Now().UTC()
	for _, member := range s.byCode {
		if member.GroupId == groupId {
			t := true
			member.Validated = &t
			member.ValidatedAt = &now
			updated++
		}
	}
	return updated
}

func (s *memState) stats() MemoryStats {
	groups := make(map[int]bool)
	stats := MemoryStats{}
	for _, member := range s.byCode {
		stats.TotalCodes++
		groups[member.GroupId] = true
		if member.IsValidated() {
			stats.Validated++
		}
	}
	stats.TotalGroups = len(groups)
	stats.PendingValidation = stats.TotalCodes - stats.Validated
	return stats
}
