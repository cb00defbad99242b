package matching

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/pharmdata/remisia_backend/config"
	"github.com/pharmdata/remisia_backend/models"
)

// Store is the persistence surface of the equivalence memory. Every
// method must be atomic on its own; Transact groups several into one
// atomic unit (fully applied or fully rolled back).
type Store interface {
	Transact(ctx context.Context, fn func(Store) error) error
	Member(ctx context.Context, productCode string) (*models.EquivalenceMember, error)
	Members(ctx context.Context, groupId int) ([]models.EquivalenceMember, error)
	NextGroupId(ctx context.Context) (int, error)
	Add(ctx context.Context, member *models.EquivalenceMember) error
	// MergeGroups rewrites every member of mergeId into keepId and
	// returns the number of rewritten members.
	MergeGroups(ctx context.Context, keepId, mergeId int) (int, error)
	SetValidated(ctx context.Context, productCode string) (bool, error)
	SetGroupValidated(ctx context.Context, groupId int) (int, error)
	Stats(ctx context.Context) (MemoryStats, error)
}

type MemoryStats struct {
	TotalCodes        int `json:"total_codes"`
	TotalGroups       int `json:"total_groups"`
	Validated         int `json:"validated"`
	PendingValidation int `json:"pending_validation"`
}

type PopulateStats struct {
	GroupsProcessed int `json:"groups_processed"`
	CodesAdded      int `json:"codes_added"`
	GroupsCreated   int `json:"groups_created"`
}

// UnionMeta describes how an equivalence was established.
type UnionMeta struct {
	MatchType      string
	Score          float64
	DesignationA   string
	DesignationB   string
	SourceA        string
	SourceB        string
	GenericGroupId int
}

// UnionResult reports what Union did. KeptValidated is set when a merge
// between a validated and an unvalidated group preserved the validated
// one regardless of size.
type UnionResult struct {
	GroupId       int
	CreatedGroup  bool
	MergedGroups  bool
	KeptValidated bool
}

// Memory is the durable, transitively-closed equivalence grouping of
// product codes. Conceptually a union-find with persisted root
// pointers: every member row carries its group id, so no in-memory
// state has to survive restarts.
type Memory struct {
	store  Store
	logger *logrus.Logger
}

func NewMemory(store Store) *Memory {
	return &Memory{store: store, logger: config.GetLogger()}
}

// Find returns the equivalence group of a product code.
func (m *Memory) Find(ctx context.Context, productCode string) (int, bool, error) {
	member, err := m.store.Member(ctx, productCode)
	if err != nil {
		return 0, false, err
	}
	if member == nil {
		return 0, false, nil
	}
	return member.GroupId, true, nil
}

// Member returns the stored record for a product code, nil when absent.
func (m *Memory) Member(ctx context.Context, productCode string) (*models.EquivalenceMember, error) {
	return m.store.Member(ctx, productCode)
}

// Equivalents returns every member of the group containing productCode.
func (m *Memory) Equivalents(ctx context.Context, productCode string) ([]models.EquivalenceMember, error) {
	groupId, ok, err := m.Find(ctx, productCode)
	if err != nil || !ok {
		return nil, err
	}
	return m.store.Members(ctx, groupId)
}

// Union records that codeA and codeB are equivalent, merging their
// groups when both already exist. Idempotent and commutative. The
// whole operation runs inside one store transaction.
//
// When exactly one of the two groups holds validated members, that
// group survives the merge regardless of size; otherwise the smaller
// group is rewritten into the larger.
func (m *Memory) Union(ctx context.Context, codeA, codeB string, meta UnionMeta) (UnionResult, error) {
	var result UnionResult
	err := m.store.Transact(ctx, func(s Store) error {
		if codeA == codeB {
			member, err := s.Member(ctx, codeA)
			if err != nil {
				return err
			}
			if member != nil {
				result = UnionResult{GroupId: member.GroupId}
				return nil
			}
			groupId, err := s.NextGroupId(ctx)
			if err != nil {
				return err
			}
			if err := s.Add(ctx, newMember(codeA, groupId, meta.DesignationA, meta.SourceA, meta)); err != nil {
				return err
			}
			result = UnionResult{GroupId: groupId, CreatedGroup: true}
			return nil
		}

		memberA, err := s.Member(ctx, codeA)
		if err != nil {
			return err
		}
		memberB, err := s.Member(ctx, codeB)
		if err != nil {
			return err
		}

		switch {
		case memberA == nil && memberB == nil:
			groupId, err := s.NextGroupId(ctx)
			if err != nil {
				return err
			}
			if err := s.Add(ctx, newMember(codeA, groupId, meta.DesignationA, meta.SourceA, meta)); err != nil {
				return err
			}
			if err := s.Add(ctx, newMember(codeB, groupId, meta.DesignationB, meta.SourceB, meta)); err != nil {
				return err
			}
			result = UnionResult{GroupId: groupId, CreatedGroup: true}

		case memberA != nil && memberB == nil:
			if err := s.Add(ctx, newMember(codeB, memberA.GroupId, meta.DesignationB, meta.SourceB, meta)); err != nil {
				return err
			}
			result = UnionResult{GroupId: memberA.GroupId}

		case memberA == nil && memberB != nil:
			if err := s.Add(ctx, newMember(codeA, memberB.GroupId, meta.DesignationA, meta.SourceA, meta)); err != nil {
				return err
			}
			result = UnionResult{GroupId: memberB.GroupId}

		default:
			if memberA.GroupId == memberB.GroupId {
				// already equivalent, nothing to do
				result = UnionResult{GroupId: memberA.GroupId}
				return nil
			}
			keep, merge, keptValidated, err := chooseSurvivor(ctx, s, memberA.GroupId, memberB.GroupId)
			if err != nil {
				return err
			}
			if _, err := s.MergeGroups(ctx, keep, merge); err != nil {
				return err
			}
			result = UnionResult{GroupId: keep, MergedGroups: true, KeptValidated: keptValidated}
		}
		return nil
	})
	if err != nil {
		return UnionResult{}, err
	}

	m.logger.WithFields(logrus.Fields{
		"codeA":   codeA,
		"codeB":   codeB,
		"groupId": result.GroupId,
		"type":    meta.MatchType,
		"score":   meta.Score,
	}).Info("equivalence recorded")
	return result, nil
}

// chooseSurvivor decides which of two groups survives a merge: the
// validated one when exactly one side is validated, the larger one
// otherwise.
func chooseSurvivor(ctx context.Context, s Store, groupA, groupB int) (keep, merge int, keptValidated bool, err error) {
	membersA, err := s.Members(ctx, groupA)
	if err != nil {
		return 0, 0, false, err
	}
	membersB, err := s.Members(ctx, groupB)
	if err != nil {
		return 0, 0, false, err
	}

	validatedA := anyValidated(membersA)
	validatedB := anyValidated(membersB)

	switch {
	case validatedA && !validatedB:
		return groupA, groupB, true, nil
	case validatedB && !validatedA:
		return groupB, groupA, true, nil
	}
	if len(membersA) >= len(membersB) {
		return groupA, groupB, false, nil
	}
	return groupB, groupA, false, nil
}

func anyValidated(members []models.EquivalenceMember) bool {
	for _, m := range members {
		if m.IsValidated() {
			return true
		}
	}
	return false
}

func newMember(code string, groupId int, designation, source string, meta UnionMeta) *models.EquivalenceMember {
	return &models.EquivalenceMember{
		GroupId:        groupId,
		ProductCode:    code,
		Designation:    designation,
		Source:         source,
		GenericGroupId: meta.GenericGroupId,
		MatchOrigin:    meta.MatchType,
		MatchScore:     decimal.NewFromFloat(meta.Score),
	}
}

// Validate marks one product code as human-confirmed.
func (m *Memory) Validate(ctx context.Context, productCode string) (bool, error) {
	return m.store.SetValidated(ctx, productCode)
}

// ValidateGroup marks every member of a group as human-confirmed and
// returns how many members were updated.
func (m *Memory) ValidateGroup(ctx context.Context, groupId int) (int, error) {
	return m.store.SetGroupValidated(ctx, groupId)
}

// Stats returns the validated/pending split of the memory.
func (m *Memory) Stats(ctx context.Context) (MemoryStats, error) {
	return m.store.Stats(ctx)
}

// PopulateFromReference bulk-loads the registry's own generic groups:
// all codes sharing a generic group id become one equivalence group.
// Codes already known keep their group; new codes join it.
func (m *Memory) PopulateFromReference(ctx context.Context, records []models.ReferenceRecord) (PopulateStats, error) {
	byGroup := make(map[int][]models.ReferenceRecord)
	for _, r := range records {
		if r.GenericGroupId != 0 {
			byGroup[r.GenericGroupId] = append(byGroup[r.GenericGroupId], r)
		}
	}

	var stats PopulateStats
	for genericGroupId, group := range byGroup {
		err := m.store.Transact(ctx, func(s Store) error {
			existingGroupId := 0
			for _, r := range group {
				member, err := s.Member(ctx, r.ProductCode)
				if err != nil {
					return err
				}
				if member != nil {
					existingGroupId = member.GroupId
					break
				}
			}
			if existingGroupId == 0 {
				next, err := s.NextGroupId(ctx)
				if err != nil {
					return err
				}
				existingGroupId = next
				stats.GroupsCreated++
			}
			for _, r := range group {
				member, err := s.Member(ctx, r.ProductCode)
				if err != nil {
					return err
				}
				if member != nil {
					continue
				}
				add := &models.EquivalenceMember{
					GroupId:        existingGroupId,
					ProductCode:    r.ProductCode,
					Designation:    r.GroupLabel,
					Source:         "reference",
					GenericGroupId: genericGroupId,
					MatchOrigin:    "generic_group",
					MatchScore:     decimal.NewFromInt(100),
				}
				if err := s.Add(ctx, add); err != nil {
					return err
				}
				stats.CodesAdded++
			}
			return nil
		})
		if err != nil {
			return stats, err
		}
		stats.GroupsProcessed++
	}

	m.logger.WithFields(logrus.Fields{
		"groups": stats.GroupsProcessed,
		"codes":  stats.CodesAdded,
	}).Info("equivalence memory populated from reference registry")
	return stats, nil
}
