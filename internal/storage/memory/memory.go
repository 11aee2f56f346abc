// Package memory provides the in-process reference implementation of the
// storage.Remote interface. It is the runtime-swappable "mock" backend:
// fully functional group storage with live subscriptions, plus an offline
// mode that mimics a backend SDK's pending-write cache so sync behavior can
// be exercised without a network.
package memory

import (
	"context"
	"sync"

	"github.com/mabesi/mysplit/internal/models"
	"github.com/mabesi/mysplit/internal/storage"
)

// Ensure Backend implements storage.Remote
var _ storage.Remote = (*Backend)(nil)

type subscriber struct {
	id int
	fn func(*models.Group)
}

// Backend is an in-memory remote store.
//
// While offline (SetOffline(true)), writes still apply and still notify
// subscribers — snapshots are served from the pending-write cache — but the
// touched groups report HasPendingWrites until the backend goes online
// again. That matches the contract the coordinator's dirty→clean
// transition is built on.
type Backend struct {
	mu          sync.Mutex
	groups      map[string]*models.Group
	subscribers map[string][]subscriber
	nextSubID   int

	offline bool
	pending map[string]bool
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{
		groups:      make(map[string]*models.Group),
		subscribers: make(map[string][]subscriber),
		pending:     make(map[string]bool),
	}
}

// SetOffline toggles the simulated connection. Going online flushes every
// pending write mark and re-notifies the affected groups' subscribers.
func (b *Backend) SetOffline(offline bool) {
	b.mu.Lock()
	b.offline = offline
	var flushed []string
	if !offline {
		for id := range b.pending {
			flushed = append(flushed, id)
		}
		b.pending = make(map[string]bool)
	}
	b.mu.Unlock()

	for _, id := range flushed {
		b.notify(id)
	}
}

// CreateGroup creates a group with the creator as sole active member.
func (b *Backend) CreateGroup(_ context.Context, name string, creator models.Member, customID string) (*models.Group, error) {
	id := customID
	if id == "" {
		id = models.NewGroupID(name)
	}

	b.mu.Lock()
	if existing, ok := b.groups[id]; ok {
		// Re-creating an id during sync returns the current state
		// instead of clobbering it.
		g := existing.Clone()
		b.mu.Unlock()
		return g, nil
	}
	g := models.NewGroup(id, name, creator)
	b.groups[id] = g
	b.markWrite(id)
	out := g.Clone()
	b.mu.Unlock()

	b.notify(id)
	return out, nil
}

// GetGroup returns the group, or (nil, nil) when it does not exist.
func (b *Backend) GetGroup(_ context.Context, groupID string) (*models.Group, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[groupID]
	if !ok {
		return nil, nil
	}
	return g.Clone(), nil
}

// SubscribeToGroup registers a callback for every committed write to the
// group. The callback fires immediately with the current snapshot if the
// group exists. The returned unsubscribe is idempotent.
func (b *Backend) SubscribeToGroup(groupID string, onUpdate func(*models.Group)) (func(), error) {
	b.mu.Lock()
	b.nextSubID++
	id := b.nextSubID
	b.subscribers[groupID] = append(b.subscribers[groupID], subscriber{id: id, fn: onUpdate})
	var initial *models.Group
	if g, ok := b.groups[groupID]; ok {
		initial = g.Clone()
	}
	b.mu.Unlock()

	if initial != nil {
		onUpdate(initial)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subscribers[groupID]
			for i, s := range subs {
				if s.id == id {
					b.subscribers[groupID] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
		})
	}, nil
}

// AddExpense appends an expense.
func (b *Backend) AddExpense(_ context.Context, groupID string, e models.Expense) error {
	return b.mutate(groupID, func(g *models.Group) error {
		g.AddExpense(e)
		return nil
	})
}

// AddMember appends a member, enforcing display-name uniqueness among
// non-pending members.
func (b *Backend) AddMember(_ context.Context, groupID string, m models.Member) error {
	return b.mutate(groupID, func(g *models.Group) error {
		return g.AddMember(m)
	})
}

// RemoveMember drops the member and scrubs their expense references.
func (b *Backend) RemoveMember(_ context.Context, groupID, memberID string) error {
	return b.mutate(groupID, func(g *models.Group) error {
		return g.RemoveMember(memberID)
	})
}

// UpdateMemberStatus flips a member between pending and active.
func (b *Backend) UpdateMemberStatus(_ context.Context, groupID, memberID string, status models.MemberStatus) error {
	return b.mutate(groupID, func(g *models.Group) error {
		return g.SetMemberStatus(memberID, status)
	})
}

// MergeMember rewrites oldID's expense references to newID and removes the
// old member record.
func (b *Backend) MergeMember(_ context.Context, groupID, oldID, newID string) error {
	return b.mutate(groupID, func(g *models.Group) error {
		return g.MergeMember(oldID, newID)
	})
}

// DeleteExpense removes one expense.
func (b *Backend) DeleteExpense(_ context.Context, groupID, expenseID string) error {
	return b.mutate(groupID, func(g *models.Group) error {
		g.RemoveExpense(expenseID)
		return nil
	})
}

// DeleteGroup destroys the group and drops its subscribers.
func (b *Backend) DeleteGroup(_ context.Context, groupID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.groups, groupID)
	delete(b.subscribers, groupID)
	delete(b.pending, groupID)
	return nil
}

// UpdateGroup applies a partial scalar update.
func (b *Backend) UpdateGroup(_ context.Context, groupID string, update models.GroupUpdate) error {
	return b.mutate(groupID, func(g *models.Group) error {
		g.ApplyUpdate(update)
		return nil
	})
}

// UploadImage echoes the data URI back, like a backend that stores images
// inline.
func (b *Backend) UploadImage(_ context.Context, dataURI, _ string) (string, error) {
	return dataURI, nil
}

// GroupMetadata reports pending-write state, or (nil, nil) for an unknown
// group.
func (b *Backend) GroupMetadata(_ context.Context, groupID string) (*storage.Metadata, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.groups[groupID]; !ok {
		return nil, nil
	}
	return &storage.Metadata{
		HasPendingWrites: b.pending[groupID],
		FromCache:        b.offline,
	}, nil
}

// mutate applies fn to the group under lock and notifies subscribers after
// a successful write.
func (b *Backend) mutate(groupID string, fn func(*models.Group) error) error {
	b.mu.Lock()
	g, ok := b.groups[groupID]
	if !ok {
		b.mu.Unlock()
		return storage.ErrNotFound
	}
	if err := fn(g); err != nil {
		b.mu.Unlock()
		return err
	}
	b.markWrite(groupID)
	b.mu.Unlock()

	b.notify(groupID)
	return nil
}

// markWrite must be called with the lock held.
func (b *Backend) markWrite(groupID string) {
	if b.offline {
		b.pending[groupID] = true
	}
}

func (b *Backend) notify(groupID string) {
	b.mu.Lock()
	g, ok := b.groups[groupID]
	if !ok {
		b.mu.Unlock()
		return
	}
	snapshot := g.Clone()
	subs := make([]subscriber, len(b.subscribers[groupID]))
	copy(subs, b.subscribers[groupID])
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(snapshot.Clone())
	}
}
