// Package session implements the sync coordinator: every read prefers the
// durable local cache, every mutation succeeds immediately from local state,
// and a debounced background pass reconciles dirty groups with the remote
// store. A Session replaces the original app's ambient "current group"
// context: it is constructed once per process and owns, per group id, the
// in-memory snapshot, the dirty flag, and the live subscription handle.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mabesi/mysplit/internal/models"
	"github.com/mabesi/mysplit/internal/storage"
)

const defaultDebounce = 2 * time.Second

// Options tune a Session.
type Options struct {
	// Debounce is how long the background syncer waits after the last
	// local edit before pushing; bursts of edits coalesce into one pass.
	// It doubles as the retry interval while dirty groups remain.
	Debounce time.Duration
}

// groupState is the per-group in-memory state owned by the session.
type groupState struct {
	snapshot    *models.Group
	rev         uint64 // bumped on every local edit; guards dirty→clean
	dirty       bool
	unsubscribe func()               // remote listener teardown, nil when not subscribed
	watcher     func(*models.Group) // caller callback for surfaced snapshots
	handle      func()              // the one unsubscribe handle ever handed out
}

// Session coordinates the local store, the remote adapter, and the
// in-memory state visible to callers.
type Session struct {
	local  storage.Local
	remote storage.Remote

	mu       sync.Mutex
	userID   string
	myGroups []string
	states   map[string]*groupState
	timer    *time.Timer
	closed   bool

	debounce time.Duration
	syncMu   sync.Mutex // serializes sync passes

	// commitMu serializes the multi-step local commits: a mutation's
	// save+mark+journal, a delivery's dirty-check+save, and the syncer's
	// dirty→clean transition. s.mu stays a leaf lock under it.
	commitMu sync.Mutex
}

// New builds a Session. It restores the persisted opaque user id, minting
// and persisting one if the device has none yet (the locally stored id is
// trusted without backend confirmation, so a device that has never been
// online still gets a stable identity), then loads and validates the
// joined-group list.
func New(ctx context.Context, local storage.Local, remote storage.Remote, opts Options) (*Session, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	s := &Session{
		local:    local,
		remote:   remote,
		states:   make(map[string]*groupState),
		debounce: opts.Debounce,
	}

	uid, err := local.UserID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load user id: %w", err)
	}
	if uid == "" {
		uid = uuid.New().String()
		if err := local.SetUserID(ctx, uid); err != nil {
			return nil, fmt.Errorf("failed to persist user id: %w", err)
		}
		slog.Info("Generated device identity", "user_id", uid)
	}
	s.userID = uid

	if err := s.loadMyGroups(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// UserID returns the opaque identity of this device's user.
func (s *Session) UserID() string {
	return s.userID
}

// MyGroups returns the ordered ids of groups joined or created here.
func (s *Session) MyGroups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.myGroups))
	copy(out, s.myGroups)
	return out
}

// loadMyGroups restores the joined-group list, dropping ids whose group is
// positively gone or no longer contains this user. Ids that cannot be
// checked (remote unreachable, nothing cached) are kept, so an offline
// start never discards memberships.
func (s *Session) loadMyGroups(ctx context.Context) error {
	ids, err := s.local.GroupIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load group list: %w", err)
	}

	var valid []string
	changed := false
	for _, id := range ids {
		g, err := s.local.GetGroup(ctx, id)
		if err != nil {
			slog.Warn("Local read failed, treating as cache miss", "group_id", id, "error", err)
		}
		if g == nil {
			remoteG, err := s.remote.GetGroup(ctx, id)
			if err != nil {
				slog.Warn("Cannot validate group membership, keeping it", "group_id", id, "error", err)
				valid = append(valid, id)
				continue
			}
			if remoteG == nil {
				changed = true
				continue
			}
			if err := s.local.SaveGroup(ctx, remoteG); err != nil {
				return fmt.Errorf("failed to cache group %s: %w", id, err)
			}
			g = remoteG
		}
		if _, member := g.FindMember(s.userID); !member {
			changed = true
			continue
		}
		valid = append(valid, id)
	}

	s.mu.Lock()
	s.myGroups = valid
	s.mu.Unlock()

	if changed {
		if err := s.local.SetGroupIDs(ctx, valid); err != nil {
			return fmt.Errorf("failed to persist group list: %w", err)
		}
	}
	return nil
}

// GetGroup returns the group, preferring the local snapshot. On a local
// miss it fetches from the remote store and caches the result before
// returning. (nil, nil) means neither source has the group.
func (s *Session) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	s.mu.Lock()
	if st, ok := s.states[groupID]; ok && st.snapshot != nil {
		g := st.snapshot.Clone()
		s.mu.Unlock()
		return g, nil
	}
	s.mu.Unlock()

	g, err := s.local.GetGroup(ctx, groupID)
	if err != nil {
		// Local read failures degrade to a cache miss.
		slog.Warn("Local read failed, falling through to remote", "group_id", groupID, "error", err)
		g = nil
	}
	if g == nil {
		g, err = s.remote.GetGroup(ctx, groupID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch group %s: %w", groupID, err)
		}
		if g == nil {
			return nil, nil
		}
		if err := s.local.SaveGroup(ctx, g); err != nil {
			return nil, fmt.Errorf("failed to cache group %s: %w", groupID, err)
		}
	}

	s.mu.Lock()
	st := s.stateFor(groupID)
	if st.snapshot == nil {
		st.snapshot = g
	}
	s.mu.Unlock()
	return g.Clone(), nil
}

// Subscribe starts the live remote subscription for a group and surfaces
// snapshots through onUpdate. Whether a delivered snapshot is surfaced is
// decided at delivery time: while the group is dirty, remote updates are
// suppressed so a slow-arriving snapshot can never clobber a newer unsynced
// local edit; the listener keeps running so the coordinator notices when
// remote state is safe to adopt again.
//
// A subscription is unique per (session, group): subscribing again swaps in
// the new callback and returns the existing unsubscribe handle, which is
// idempotent and safe to call multiple times.
func (s *Session) Subscribe(groupID string, onUpdate func(*models.Group)) (func(), error) {
	s.mu.Lock()
	st := s.stateFor(groupID)
	st.watcher = onUpdate
	if st.handle == nil {
		st.handle = func() {
			s.mu.Lock()
			st, ok := s.states[groupID]
			if !ok || st.unsubscribe == nil {
				s.mu.Unlock()
				return
			}
			unsub := st.unsubscribe
			st.unsubscribe = nil
			st.watcher = nil
			s.mu.Unlock()
			unsub()
		}
	}
	if st.unsubscribe != nil {
		handle := st.handle
		s.mu.Unlock()
		return handle, nil
	}
	handle := st.handle
	s.mu.Unlock()

	unsub, err := s.remote.SubscribeToGroup(groupID, func(g *models.Group) {
		s.handleRemoteSnapshot(g)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to group %s: %w", groupID, err)
	}

	s.mu.Lock()
	st = s.stateFor(groupID)
	st.unsubscribe = unsub
	s.mu.Unlock()
	return handle, nil
}

// handleRemoteSnapshot is the delivery path for live updates. The commit
// lock makes the dirty check and the adopting save one step, so a local
// edit committing concurrently cannot be overwritten by a remote snapshot
// that was checked against the pre-edit flag.
func (s *Session) handleRemoteSnapshot(g *models.Group) {
	ctx := context.Background()

	s.commitMu.Lock()
	dirty, err := s.local.IsDirty(ctx, g.ID)
	if err != nil {
		// If the flag cannot be read, assume dirty: suppressing a
		// remote update is recoverable, losing a local edit is not.
		slog.Warn("Dirty check failed on delivery, suppressing update", "group_id", g.ID, "error", err)
		dirty = true
	}
	if dirty {
		s.commitMu.Unlock()
		suppressedUpdates.Inc()
		slog.Debug("Remote update suppressed, local dirty copy wins", "group_id", g.ID)
		return
	}

	if err := s.local.SaveGroup(ctx, g); err != nil {
		s.commitMu.Unlock()
		slog.Error("Failed to cache remote snapshot", "group_id", g.ID, "error", err)
		return
	}
	s.commitMu.Unlock()

	s.mu.Lock()
	st := s.stateFor(g.ID)
	st.snapshot = g
	watcher := st.watcher
	s.mu.Unlock()

	if watcher != nil {
		watcher(g.Clone())
	}
}

// Close stops the background syncer and tears down every subscription.
// The local store stays open; its lifetime belongs to the caller.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	var unsubs []func()
	for _, st := range s.states {
		if st.unsubscribe != nil {
			unsubs = append(unsubs, st.unsubscribe)
			st.unsubscribe = nil
		}
	}
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// stateFor must be called with s.mu held.
func (s *Session) stateFor(groupID string) *groupState {
	st, ok := s.states[groupID]
	if !ok {
		st = &groupState{}
		s.states[groupID] = st
	}
	return st
}

// addToMyGroups must not be called with s.mu held.
func (s *Session) addToMyGroups(ctx context.Context, groupID string) error {
	s.mu.Lock()
	for _, id := range s.myGroups {
		if id == groupID {
			s.mu.Unlock()
			return nil
		}
	}
	s.myGroups = append(s.myGroups, groupID)
	ids := make([]string, len(s.myGroups))
	copy(ids, s.myGroups)
	s.mu.Unlock()

	if err := s.local.SetGroupIDs(ctx, ids); err != nil {
		return fmt.Errorf("failed to persist group list: %w", err)
	}
	return nil
}

func (s *Session) removeFromMyGroups(ctx context.Context, groupID string) error {
	s.mu.Lock()
	ids := s.myGroups[:0]
	for _, id := range s.myGroups {
		if id != groupID {
			ids = append(ids, id)
		}
	}
	s.myGroups = ids
	out := make([]string, len(ids))
	copy(out, ids)
	s.mu.Unlock()

	if err := s.local.SetGroupIDs(ctx, out); err != nil {
		return fmt.Errorf("failed to persist group list: %w", err)
	}
	return nil
}
