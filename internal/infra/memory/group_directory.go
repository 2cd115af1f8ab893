package memory

import (
	"context"

	"quiz-session-service/internal/domain"
)

// StaticGroupDirectory resolves scopes from an in-memory map (tests/demos).
type StaticGroupDirectory struct {
	groups map[string]domain.Group
}

func NewStaticGroupDirectory(groups map[string]domain.Group) *StaticGroupDirectory {
	return &StaticGroupDirectory{groups: groups}
}

func (d *StaticGroupDirectory) Group(_ context.Context, groupID string) (domain.Group, error) {
	if group, ok := d.groups[groupID]; ok {
		return group, nil
	}
	return domain.Group{}, domain.ErrGroupNotFound
}

func (d *StaticGroupDirectory) IsMember(_ context.Context, groupID, memberID string) (bool, error) {
	group, ok := d.groups[groupID]
	if !ok {
		return false, nil
	}
	for _, member := range group.Members {
		if member == memberID {
			return true, nil
		}
	}
	return false, nil
}
