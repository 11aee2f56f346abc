package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mabesi/mysplit/internal/models"
)

// Background reconciliation. The push is additive by design: it creates
// missing remote groups and union-merges members and expenses that exist
// locally but not remotely. Deletions are never inferred from absence;
// they reach the remote store only through the journaled operations the
// pass replays after the push. A dirty flag clears only once the journal
// is empty and the backend reports no pending writes for the group.

// scheduleSyncLocked (re)arms the debounce timer. Must be called with
// s.mu held.
func (s *Session) scheduleSyncLocked() {
	if s.closed {
		return
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, s.runSyncPass)
		return
	}
	s.timer.Reset(s.debounce)
}

func (s *Session) runSyncPass() {
	remaining := s.SyncNow(context.Background())
	if remaining > 0 {
		// Failed or unconfirmed groups retry on the same fixed
		// interval, with or without new local edits.
		s.mu.Lock()
		s.scheduleSyncLocked()
		s.mu.Unlock()
	}
}

// SyncNow runs one synchronous sync pass over every dirty group and
// returns how many groups are still dirty afterwards. Errors never
// propagate: a failed group is logged and stays dirty for the next pass.
func (s *Session) SyncNow(ctx context.Context) int {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	syncPasses.Inc()

	ids, err := s.local.DirtyGroupIDs(ctx)
	if err != nil {
		syncErrors.Inc()
		slog.Error("Sync pass aborted, cannot list dirty groups", "error", err)
		return -1
	}
	if len(ids) == 0 {
		return 0
	}
	slog.Debug("Sync pass starting", "dirty_count", len(ids))

	remaining := 0
	for _, id := range ids {
		if err := s.syncGroup(ctx, id); err != nil {
			syncErrors.Inc()
			slog.Warn("Sync failed, group stays dirty", "group_id", id, "error", err)
			remaining++
		}
	}
	return remaining
}

// syncGroup reconciles one dirty group with the remote store. A nil return
// means the dirty flag was cleared.
func (s *Session) syncGroup(ctx context.Context, groupID string) error {
	s.mu.Lock()
	var startRev uint64
	if st, ok := s.states[groupID]; ok {
		startRev = st.rev
	}
	s.mu.Unlock()

	local, err := s.local.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if local == nil {
		// Snapshot gone (deleted between mark and pass); nothing to push.
		return s.clearDirty(ctx, groupID, nil, startRev)
	}

	remote, err := s.remote.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}

	if remote == nil {
		if err := s.pushCreate(ctx, local); err != nil {
			return err
		}
	} else {
		if err := s.pushMerge(ctx, local, remote); err != nil {
			return err
		}
	}

	if err := s.replayPendingOps(ctx, groupID); err != nil {
		return err
	}

	md, err := s.remote.GroupMetadata(ctx, groupID)
	if err != nil {
		return err
	}
	if md == nil {
		return errors.New("group vanished remotely after push")
	}
	if md.HasPendingWrites {
		slog.Debug("Backend still has pending writes, staying dirty", "group_id", groupID)
		return errors.New("pending writes outstanding")
	}

	// Push confirmed: adopt the reconciled remote snapshot as the clean
	// local state.
	fresh, err := s.remote.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if fresh == nil {
		return errors.New("group vanished remotely after push")
	}
	return s.clearDirty(ctx, groupID, fresh, startRev)
}

// replayPendingOps re-issues journaled subtractive operations in commit
// order. The union-merge push never deletes anything remote, so until one
// of these lands the remote copy still carries the removed item; the group
// must stay dirty, or another device's snapshot would resurrect it
// locally. An operation whose target is already gone counts as applied.
func (s *Session) replayPendingOps(ctx context.Context, groupID string) error {
	ops, err := s.local.PendingOps(ctx, groupID)
	if err != nil {
		return err
	}
	for _, op := range ops {
		if err := s.performOp(ctx, op); err != nil && !opSettled(err) {
			return fmt.Errorf("failed to replay %s: %w", op.Kind, err)
		}
		if err := s.local.DeleteOp(ctx, op.ID); err != nil {
			return err
		}
	}
	return nil
}

// pushCreate creates the remote copy of a locally born group: the owner
// first, then the remaining members and every expense.
func (s *Session) pushCreate(ctx context.Context, local *models.Group) error {
	owner, ok := local.FindMember(local.OwnerID)
	if !ok {
		return errors.New("group snapshot has no owner member")
	}
	if _, err := s.remote.CreateGroup(ctx, local.Name, owner, local.ID); err != nil {
		return err
	}
	for _, m := range local.Members {
		if m.ID == owner.ID {
			continue
		}
		if err := s.remote.AddMember(ctx, local.ID, m); err != nil {
			if errors.Is(err, models.ErrNameTaken) {
				slog.Warn("Member name taken remotely, skipping", "group_id", local.ID, "name", m.Name)
				continue
			}
			return err
		}
	}
	for _, e := range local.Expenses {
		if err := s.remote.AddExpense(ctx, local.ID, e); err != nil {
			return err
		}
	}
	if local.ImageURL != "" {
		img := local.ImageURL
		if err := s.remote.UpdateGroup(ctx, local.ID, models.GroupUpdate{ImageURL: &img}); err != nil {
			return err
		}
	}
	slog.Info("Created remote copy of group", "group_id", local.ID)
	return nil
}

// pushMerge union-merges local-only members and expenses into the existing
// remote copy and pushes differing scalar fields. Items present remotely
// but missing locally are left alone.
func (s *Session) pushMerge(ctx context.Context, local, remote *models.Group) error {
	for _, m := range local.Members {
		if _, ok := remote.FindMember(m.ID); ok {
			continue
		}
		if err := s.remote.AddMember(ctx, local.ID, m); err != nil {
			if errors.Is(err, models.ErrNameTaken) {
				slog.Warn("Member name taken remotely, skipping", "group_id", local.ID, "name", m.Name)
				continue
			}
			return err
		}
	}
	for _, e := range local.Expenses {
		if _, ok := remote.FindExpense(e.ID); ok {
			continue
		}
		if err := s.remote.AddExpense(ctx, local.ID, e); err != nil {
			return err
		}
	}

	var update models.GroupUpdate
	if local.Name != remote.Name {
		name := local.Name
		update.Name = &name
	}
	if local.ImageURL != remote.ImageURL && local.ImageURL != "" {
		img := local.ImageURL
		update.ImageURL = &img
	}
	if update.Name != nil || update.ImageURL != nil {
		if err := s.remote.UpdateGroup(ctx, local.ID, update); err != nil {
			return err
		}
	}
	return nil
}

// clearDirty transitions a group dirty→clean, optionally adopting the
// confirmed remote snapshot. It holds the commit lock across the revision
// re-check, the adopting save, and the flag clear, so an edit committed
// mid-pass either moved the revision (the transition aborts and the group
// stays dirty) or has not started (it will observe the clean state). The
// transition also aborts while journaled operations remain unconfirmed.
func (s *Session) clearDirty(ctx context.Context, groupID string, adopted *models.Group, startRev uint64) error {
	s.commitMu.Lock()

	s.mu.Lock()
	var rev uint64
	if st := s.states[groupID]; st != nil {
		rev = st.rev
	}
	s.mu.Unlock()
	if rev != startRev {
		s.commitMu.Unlock()
		return errors.New("local snapshot advanced during sync")
	}

	ops, err := s.local.PendingOps(ctx, groupID)
	if err != nil {
		s.commitMu.Unlock()
		return err
	}
	if len(ops) > 0 {
		s.commitMu.Unlock()
		return fmt.Errorf("%d unconfirmed operations outstanding", len(ops))
	}

	if adopted != nil {
		if err := s.local.SaveGroup(ctx, adopted); err != nil {
			s.commitMu.Unlock()
			return err
		}
	}
	if err := s.local.ClearDirty(ctx, groupID); err != nil {
		s.commitMu.Unlock()
		return err
	}

	s.mu.Lock()
	st := s.states[groupID]
	if st == nil && adopted != nil {
		st = s.stateFor(groupID)
	}
	var watcher func(*models.Group)
	if st != nil {
		if adopted != nil {
			st.snapshot = adopted
		}
		watcher = st.watcher
		if st.dirty {
			st.dirty = false
			dirtyGroups.Dec()
		}
	}
	s.mu.Unlock()
	s.commitMu.Unlock()

	if adopted != nil && watcher != nil {
		watcher(adopted.Clone())
	}
	slog.Info("Group synced", "group_id", groupID)
	return nil
}
