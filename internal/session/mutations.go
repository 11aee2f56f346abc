package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mabesi/mysplit/internal/models"
	"github.com/mabesi/mysplit/internal/storage"
)

// Every mutation below follows the same write path: transform the current
// snapshot purely, persist it locally, mark the group dirty, update
// in-memory state synchronously, and return without waiting on the network.
// Additive changes reach the remote store through the background
// union-merge; subtractive or derived changes (removals, status flips,
// merges) are journaled alongside the snapshot, because absence of an item
// must never be inferred as a deletion by the sync pass. A journaled
// operation is attempted immediately in the background and replayed by
// every sync pass until the backend confirms it.

// CreateGroup creates a new group owned by this user and records it in the
// joined-group list. The remote copy is created by the next sync pass.
func (s *Session) CreateGroup(ctx context.Context, name, userName string) (*models.Group, error) {
	creator := models.Member{ID: s.userID, Name: userName, Status: models.StatusActive}
	g := models.NewGroup(models.NewGroupID(name), name, creator)

	if err := s.applyLocal(ctx, g); err != nil {
		return nil, err
	}
	if err := s.addToMyGroups(ctx, g.ID); err != nil {
		return nil, err
	}
	slog.Info("Group created locally", "group_id", g.ID, "name", name)
	return g.Clone(), nil
}

// JoinStatus discriminates the outcome of JoinGroup.
type JoinStatus string

const (
	// StatusJoined means the caller was added as a pending member.
	StatusJoined JoinStatus = "joined"
	// StatusAlreadyMember means the caller's id is already in the group;
	// MemberName carries the existing display name so the caller can
	// offer a "this is a different person" affordance instead of
	// silently merging identities.
	StatusAlreadyMember JoinStatus = "already_member"
	// StatusGroupNotFound means neither store knows the group.
	StatusGroupNotFound JoinStatus = "group_not_found"
	// StatusNameTaken means the requested display name collides with an
	// existing non-pending member. Nothing was mutated.
	StatusNameTaken JoinStatus = "name_taken"
)

// JoinResult is the caller-visible outcome of a join attempt.
type JoinResult struct {
	Status     JoinStatus
	MemberName string
	Group      *models.Group
}

// JoinGroup adds this user to an existing group by id, as a pending member
// awaiting the owner's approval.
func (s *Session) JoinGroup(ctx context.Context, groupID, userName string) (JoinResult, error) {
	g, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return JoinResult{}, err
	}
	if g == nil {
		return JoinResult{Status: StatusGroupNotFound}, nil
	}

	if existing, ok := g.FindMember(s.userID); ok {
		return JoinResult{Status: StatusAlreadyMember, MemberName: existing.Name, Group: g}, nil
	}
	if _, taken := g.MemberNamed(userName); taken {
		return JoinResult{Status: StatusNameTaken}, nil
	}

	next := g.Clone()
	if err := next.AddMember(models.Member{ID: s.userID, Name: userName, Status: models.StatusPending}); err != nil {
		return JoinResult{}, err
	}
	if err := s.applyLocal(ctx, next); err != nil {
		return JoinResult{}, err
	}
	if err := s.addToMyGroups(ctx, groupID); err != nil {
		return JoinResult{}, err
	}
	slog.Info("Joined group, awaiting approval", "group_id", groupID, "name", userName)
	return JoinResult{Status: StatusJoined, Group: next.Clone()}, nil
}

// AddExpense records an expense created by this user.
func (s *Session) AddExpense(ctx context.Context, groupID, title string, amount float64, paidBy string, splitAmong []string, date int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %v", amount)
	}
	if len(splitAmong) == 0 {
		return fmt.Errorf("expense must be split among at least one member")
	}

	g, err := s.snapshotFor(ctx, groupID)
	if err != nil {
		return err
	}
	if _, ok := g.FindMember(paidBy); !ok {
		return fmt.Errorf("payer %s: %w", paidBy, models.ErrMemberNotFound)
	}
	for _, id := range splitAmong {
		if _, ok := g.FindMember(id); !ok {
			return fmt.Errorf("split participant %s: %w", id, models.ErrMemberNotFound)
		}
	}

	next := g.Clone()
	next.AddExpense(models.Expense{
		Title:      title,
		Amount:     amount,
		PaidBy:     paidBy,
		SplitAmong: splitAmong,
		Date:       date,
		CreatedBy:  s.userID,
	})
	return s.applyLocal(ctx, next)
}

// DeleteExpense removes an expense.
func (s *Session) DeleteExpense(ctx context.Context, groupID, expenseID string) error {
	g, err := s.snapshotFor(ctx, groupID)
	if err != nil {
		return err
	}
	next := g.Clone()
	next.RemoveExpense(expenseID)
	return s.applyLocal(ctx, next, &storage.PendingOp{
		GroupID:   groupID,
		Kind:      storage.OpDeleteExpense,
		ExpenseID: expenseID,
	})
}

// AddMember adds a known person under a locally generated id. Members
// added this way by an existing member are active immediately.
func (s *Session) AddMember(ctx context.Context, groupID, name string) (models.Member, error) {
	g, err := s.snapshotFor(ctx, groupID)
	if err != nil {
		return models.Member{}, err
	}
	m := models.Member{ID: models.NewMemberID(), Name: name, Status: models.StatusActive}
	next := g.Clone()
	if err := next.AddMember(m); err != nil {
		return models.Member{}, err
	}
	if err := s.applyLocal(ctx, next); err != nil {
		return models.Member{}, err
	}
	return m, nil
}

// RemoveMember drops a member, the expenses they paid, and their
// participation in surviving splits. The owner cannot be removed; that is
// rejected before any mutation.
func (s *Session) RemoveMember(ctx context.Context, groupID, memberID string) error {
	g, err := s.snapshotFor(ctx, groupID)
	if err != nil {
		return err
	}
	next := g.Clone()
	if err := next.RemoveMember(memberID); err != nil {
		return err
	}
	return s.applyLocal(ctx, next, &storage.PendingOp{
		GroupID:  groupID,
		Kind:     storage.OpRemoveMember,
		MemberID: memberID,
	})
}

// ApproveMember activates a pending member. When an existing non-pending
// member carries the same display name (case-insensitively), the two
// records are treated as the same person: the old member's expense
// references are rewritten to the approved id and the old record removed
// before the approved member goes active.
func (s *Session) ApproveMember(ctx context.Context, groupID, memberID string) error {
	g, err := s.snapshotFor(ctx, groupID)
	if err != nil {
		return err
	}
	pending, ok := g.FindMember(memberID)
	if !ok {
		return fmt.Errorf("member %s: %w", memberID, models.ErrMemberNotFound)
	}

	next := g.Clone()
	if existing, found := next.MemberNamed(pending.Name); found && existing.ID != memberID {
		if err := next.MergeMember(existing.ID, memberID); err != nil {
			return err
		}
		if err := next.SetMemberStatus(memberID, models.StatusActive); err != nil {
			return err
		}
		oldID := existing.ID
		err := s.applyLocal(ctx, next,
			&storage.PendingOp{GroupID: groupID, Kind: storage.OpMergeMember, OldID: oldID, NewID: memberID},
			&storage.PendingOp{GroupID: groupID, Kind: storage.OpSetMemberStatus, MemberID: memberID, Status: models.StatusActive},
		)
		if err != nil {
			return err
		}
		slog.Info("Approved member via merge", "group_id", groupID, "member_id", memberID, "merged_from", oldID)
		return nil
	}

	if err := next.SetMemberStatus(memberID, models.StatusActive); err != nil {
		return err
	}
	return s.applyLocal(ctx, next, &storage.PendingOp{
		GroupID:  groupID,
		Kind:     storage.OpSetMemberStatus,
		MemberID: memberID,
		Status:   models.StatusActive,
	})
}

// RejectMember removes a pending member.
func (s *Session) RejectMember(ctx context.Context, groupID, memberID string) error {
	return s.RemoveMember(ctx, groupID, memberID)
}

// UpdateGroupImage uploads the image and applies the resulting URL. When
// the upload cannot reach the backend the given URI is applied as-is, so
// the change is never lost offline; the scalar push happens on sync.
func (s *Session) UpdateGroupImage(ctx context.Context, groupID, imageURI string) error {
	g, err := s.snapshotFor(ctx, groupID)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("groups/%s/image_%d", groupID, models.Now())
	url, err := s.remote.UploadImage(ctx, imageURI, path)
	if err != nil {
		slog.Warn("Image upload failed, keeping local URI", "group_id", groupID, "error", err)
		url = imageURI
	}

	next := g.Clone()
	next.ApplyUpdate(models.GroupUpdate{ImageURL: &url})
	return s.applyLocal(ctx, next)
}

// RenameGroup changes the group name through the ordinary write path.
func (s *Session) RenameGroup(ctx context.Context, groupID, name string) error {
	g, err := s.snapshotFor(ctx, groupID)
	if err != nil {
		return err
	}
	next := g.Clone()
	next.ApplyUpdate(models.GroupUpdate{Name: &name})
	return s.applyLocal(ctx, next)
}

// DeleteGroup destroys the group. Local teardown — subscription, cached
// snapshot, dirty flag, joined-group entry — is unconditional and
// synchronous; the remote delete is best-effort and only logged on
// failure. Destruction is not recoverable.
func (s *Session) DeleteGroup(ctx context.Context, groupID string) error {
	s.mu.Lock()
	if st, ok := s.states[groupID]; ok {
		if st.unsubscribe != nil {
			unsub := st.unsubscribe
			st.unsubscribe = nil
			defer unsub()
		}
		if st.dirty {
			dirtyGroups.Dec()
		}
		delete(s.states, groupID)
	}
	s.mu.Unlock()

	if err := s.local.DeleteGroup(ctx, groupID); err != nil {
		return fmt.Errorf("failed to delete group %s locally: %w", groupID, err)
	}
	if err := s.removeFromMyGroups(ctx, groupID); err != nil {
		return err
	}

	s.remoteAsync("delete group", groupID, func(ctx context.Context) error {
		return s.remote.DeleteGroup(ctx, groupID)
	})
	slog.Info("Group deleted", "group_id", groupID)
	return nil
}

// applyLocal is the shared tail of the write path: persist, mark dirty,
// journal any subtractive operations, surface to the watcher, schedule
// sync. The whole commit runs under the commit lock, so the syncer's
// dirty→clean transition can never interleave with a half-applied edit. A
// failed local write propagates — the user's edit would otherwise be
// silently unpersisted.
func (s *Session) applyLocal(ctx context.Context, g *models.Group, ops ...*storage.PendingOp) error {
	s.commitMu.Lock()
	if err := s.local.SaveGroup(ctx, g); err != nil {
		s.commitMu.Unlock()
		return fmt.Errorf("failed to save group %s: %w", g.ID, err)
	}
	if err := s.local.MarkDirty(ctx, g.ID); err != nil {
		s.commitMu.Unlock()
		return fmt.Errorf("failed to mark group %s dirty: %w", g.ID, err)
	}
	for _, op := range ops {
		if err := s.local.EnqueueOp(ctx, op); err != nil {
			s.commitMu.Unlock()
			return fmt.Errorf("failed to journal %s for group %s: %w", op.Kind, g.ID, err)
		}
	}

	s.mu.Lock()
	st := s.stateFor(g.ID)
	st.snapshot = g
	st.rev++
	if !st.dirty {
		st.dirty = true
		dirtyGroups.Inc()
	}
	watcher := st.watcher
	s.scheduleSyncLocked()
	s.mu.Unlock()
	s.commitMu.Unlock()

	if watcher != nil {
		watcher(g.Clone())
	}
	for _, op := range ops {
		s.attemptOp(*op)
	}
	return nil
}

// snapshotFor returns the group a mutation will transform: the in-memory
// snapshot if loaded, else the local cache.
func (s *Session) snapshotFor(ctx context.Context, groupID string) (*models.Group, error) {
	s.mu.Lock()
	if st, ok := s.states[groupID]; ok && st.snapshot != nil {
		g := st.snapshot
		s.mu.Unlock()
		return g, nil
	}
	s.mu.Unlock()

	g, err := s.local.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group %s: %w", groupID, err)
	}
	if g == nil {
		return nil, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	return g, nil
}

// attemptOp tries a journaled operation immediately, off the caller's
// path. On success (or when the target is already gone) the journal entry
// is confirmed; on failure it stays journaled and the next sync pass
// replays it.
func (s *Session) attemptOp(op storage.PendingOp) {
	go func() {
		ctx := context.Background()
		if err := s.performOp(ctx, op); err != nil && !opSettled(err) {
			remoteOpErrors.Inc()
			slog.Warn("Remote operation failed, kept for replay", "op", op.Kind, "group_id", op.GroupID, "error", err)
			return
		}
		if err := s.local.DeleteOp(ctx, op.ID); err != nil {
			slog.Warn("Failed to confirm journaled op", "op", op.Kind, "group_id", op.GroupID, "error", err)
		}
	}()
}

// performOp issues one journaled operation against the remote store.
func (s *Session) performOp(ctx context.Context, op storage.PendingOp) error {
	switch op.Kind {
	case storage.OpRemoveMember:
		return s.remote.RemoveMember(ctx, op.GroupID, op.MemberID)
	case storage.OpDeleteExpense:
		return s.remote.DeleteExpense(ctx, op.GroupID, op.ExpenseID)
	case storage.OpSetMemberStatus:
		return s.remote.UpdateMemberStatus(ctx, op.GroupID, op.MemberID, op.Status)
	case storage.OpMergeMember:
		return s.remote.MergeMember(ctx, op.GroupID, op.OldID, op.NewID)
	}
	return fmt.Errorf("unknown journaled op kind %q", op.Kind)
}

// opSettled reports whether an operation's error means it no longer needs
// replaying: the group or member is already gone remotely, so the removal
// it encodes has effectively happened.
func opSettled(err error) bool {
	return errors.Is(err, storage.ErrNotFound) || errors.Is(err, models.ErrMemberNotFound)
}

// remoteAsync runs an explicit remote operation off the caller's path.
// Failures are logged and otherwise swallowed; the only remaining caller
// is the best-effort remote group delete.
func (s *Session) remoteAsync(op, groupID string, fn func(context.Context) error) {
	go func() {
		if err := fn(context.Background()); err != nil {
			remoteOpErrors.Inc()
			slog.Warn("Remote operation failed", "op", op, "group_id", groupID, "error", err)
		}
	}()
}
