// Package shadow maintains shadow groups: the live sets of raw listings the
// matcher has resolved to one physical property.
package shadow

import (
	"context"
	"errors"
	"log/slog"

	"platbook/internal/shadow/models"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
	"platbook/pkg/platform/sentinel"
	"platbook/pkg/requestcontext"
)

// GroupStore is what the manager needs from persistence.
type GroupStore interface {
	Create(ctx context.Context, g *models.ShadowGroup) error
	FindByID(ctx context.Context, groupID id.GroupID) (*models.ShadowGroup, error)
	FindByListing(ctx context.Context, listingID id.ListingID) (*models.ShadowGroup, error)
	Update(ctx context.Context, g *models.ShadowGroup) error
	Merge(ctx context.Context, winner, loser *models.ShadowGroup) error
	List(ctx context.Context) ([]*models.ShadowGroup, error)
}

// Manager owns group lifecycle: creation, membership, merges. It follows
// merge tombstones so callers can hold a stale group id across a merge.
type Manager struct {
	groups GroupStore
	logger *slog.Logger
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func NewManager(groups GroupStore, opts ...Option) *Manager {
	m := &Manager{groups: groups}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// CreateGroup starts a new group around a listing.
func (m *Manager) CreateGroup(ctx context.Context, listingID id.ListingID) (*models.ShadowGroup, error) {
	g, err := models.NewGroup(listingID, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := m.groups.Create(ctx, g); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyAssigned) {
			return nil, dErrors.New(dErrors.CodeConflict, "listing already belongs to a group")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create group")
	}
	return g, nil
}

// AddMember attaches a listing to a group, following tombstones to the live
// group first. Re-adding an existing member succeeds without a write.
func (m *Manager) AddMember(ctx context.Context, groupID id.GroupID, listingID id.ListingID) (*models.ShadowGroup, error) {
	if listingID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "listing id is required")
	}

	g, err := m.Resolve(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.HasMember(listingID) {
		return g, nil
	}

	g.ApplyMember(listingID, requestcontext.Now(ctx))
	if err := m.groups.Update(ctx, g); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyAssigned) {
			return nil, dErrors.New(dErrors.CodeConflict, "listing already belongs to a group")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to add group member")
	}
	return g, nil
}

// GroupForListing returns the live group holding a listing.
func (m *Manager) GroupForListing(ctx context.Context, listingID id.ListingID) (*models.ShadowGroup, error) {
	g, err := m.groups.FindByListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "listing is not grouped")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up group")
	}
	return g, nil
}

// Merge folds loser into winner, reassigning every member and tombstoning
// the loser. Merging an already-merged loser into the same winner is
// idempotent; into a different winner it is a conflict.
func (m *Manager) Merge(ctx context.Context, winnerID, loserID id.GroupID, reason string) (*models.ShadowGroup, error) {
	winner, err := m.Resolve(ctx, winnerID)
	if err != nil {
		return nil, err
	}

	loser, err := m.findGroup(ctx, loserID)
	if err != nil {
		return nil, err
	}
	if loser.IsMerged() {
		if loser.MergedInto == winner.ID {
			return winner, nil
		}
		return nil, dErrors.New(dErrors.CodeConflict, "group was already merged elsewhere")
	}
	if winner.ID == loser.ID {
		return winner, nil
	}

	now := requestcontext.Now(ctx)
	winner.AbsorbMembers(loser, now)
	loser.ApplyMerge(winner.ID, reason, now)

	if err := m.groups.Merge(ctx, winner, loser); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to merge groups")
	}

	m.logger.InfoContext(ctx, "merged shadow groups",
		"winner", winner.ID.String(),
		"loser", loser.ID.String(),
		"members", len(winner.Members),
		"reason", reason,
	)
	return winner, nil
}

// Resolve follows merge tombstones to the live group.
func (m *Manager) Resolve(ctx context.Context, groupID id.GroupID) (*models.ShadowGroup, error) {
	seen := map[id.GroupID]bool{}
	for {
		if seen[groupID] {
			return nil, dErrors.New(dErrors.CodeInternal, "merge pointer cycle detected")
		}
		seen[groupID] = true

		g, err := m.findGroup(ctx, groupID)
		if err != nil {
			return nil, err
		}
		if !g.IsMerged() {
			return g, nil
		}
		groupID = g.MergedInto
	}
}

// ListAll returns every group, merged tombstones included.
func (m *Manager) ListAll(ctx context.Context) ([]*models.ShadowGroup, error) {
	groups, err := m.groups.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list groups")
	}
	return groups, nil
}

func (m *Manager) findGroup(ctx context.Context, groupID id.GroupID) (*models.ShadowGroup, error) {
	if groupID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "group id is required")
	}
	g, err := m.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "group not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up group")
	}
	return g, nil
}
