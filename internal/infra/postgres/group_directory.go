package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-session-service/internal/domain"
)

// GroupDirectory resolves session scopes against the groups schema.
type GroupDirectory struct {
	pool *pgxpool.Pool
}

func NewGroupDirectory(pool *pgxpool.Pool) *GroupDirectory {
	return &GroupDirectory{pool: pool}
}

func (d *GroupDirectory) Group(ctx context.Context, groupID string) (domain.Group, error) {
	var name string
	err := d.pool.QueryRow(ctx, `SELECT name FROM groups WHERE id=$1`, groupID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Group{}, domain.ErrGroupNotFound
	}
	if err != nil {
		return domain.Group{}, fmt.Errorf("load group: %w", err)
	}
	return domain.Group{ID: groupID, Name: name}, nil
}

func (d *GroupDirectory) IsMember(ctx context.Context, groupID, memberID string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND member_id=$2)`,
		groupID, memberID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}
