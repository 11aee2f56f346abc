package models

import (
	"errors"
	"fmt"
	"time"
)

// Domain invariant violations shared by every group transform and by the
// storage backends that enforce the same rules remotely.
var (
	// ErrNameTaken means a display name collides with an existing
	// non-pending member of the group.
	ErrNameTaken = errors.New("name taken")

	// ErrMemberNotFound means the referenced member is not in the group.
	ErrMemberNotFound = errors.New("member not found")

	// ErrOwnerRemoval means the group owner was about to be removed.
	ErrOwnerRemoval = errors.New("cannot remove the group owner")
)

// Group is a complete shared-expense ledger snapshot.
type Group struct {
	// ID is a short random alphanumeric identifier.
	ID string `json:"id"`

	// Name is the display name of the group.
	Name string `json:"name"`

	// ImageURL is an optional group picture.
	ImageURL string `json:"imageUrl,omitempty"`

	// OwnerID references the creating member, who is always present in
	// Members and can never be removed.
	OwnerID string `json:"ownerId"`

	// CreatedAt is the creation time, unix milliseconds.
	CreatedAt int64 `json:"createdAt"`

	// UpdatedAt is refreshed on every mutation, unix milliseconds.
	UpdatedAt int64 `json:"updatedAt"`

	// Version is reserved for future migration or optimistic-concurrency
	// use. It is never compared on write today.
	Version int `json:"version"`

	// Members is the ordered member list.
	Members []Member `json:"members"`

	// Expenses is the ordered expense list.
	Expenses []Expense `json:"expenses"`
}

// GroupUpdate is a partial update of the group's scalar fields. Nil fields
// are left untouched.
type GroupUpdate struct {
	Name     *string `json:"name,omitempty"`
	ImageURL *string `json:"imageUrl,omitempty"`
}

// Now returns the current time in unix milliseconds, the timestamp unit
// used throughout the model.
func Now() int64 {
	return time.Now().UnixMilli()
}

// NewGroup builds a fresh group with the creator as its sole active member.
func NewGroup(id, name string, creator Member) *Group {
	creator.Status = StatusActive
	ts := Now()
	return &Group{
		ID:        id,
		Name:      name,
		OwnerID:   creator.ID,
		CreatedAt: ts,
		UpdatedAt: ts,
		Version:   1,
		Members:   []Member{creator},
		Expenses:  []Expense{},
	}
}

// Clone returns a deep copy of the group.
func (g *Group) Clone() *Group {
	cp := *g
	cp.Members = make([]Member, len(g.Members))
	copy(cp.Members, g.Members)
	cp.Expenses = make([]Expense, len(g.Expenses))
	for i, e := range g.Expenses {
		split := make([]string, len(e.SplitAmong))
		copy(split, e.SplitAmong)
		e.SplitAmong = split
		cp.Expenses[i] = e
	}
	return &cp
}

// FindMember returns the member with the given ID.
func (g *Group) FindMember(id string) (Member, bool) {
	for _, m := range g.Members {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}

// MemberNamed returns the first non-pending member whose display name
// matches case-insensitively.
func (g *Group) MemberNamed(name string) (Member, bool) {
	for _, m := range g.Members {
		if !m.Pending() && m.SameName(name) {
			return m, true
		}
	}
	return Member{}, false
}

// AddMember appends a member to the group. Adding an ID that is already
// present is a no-op, so retried joins stay idempotent. A display name held
// by a different non-pending member fails with ErrNameTaken.
func (g *Group) AddMember(m Member) error {
	for _, existing := range g.Members {
		if existing.ID == m.ID {
			return nil
		}
		if !existing.Pending() && existing.SameName(m.Name) {
			return ErrNameTaken
		}
	}
	if m.Status == "" {
		m.Status = StatusPending
	}
	g.Members = append(g.Members, m)
	g.touch()
	return nil
}

// RemoveMember drops a member and scrubs every reference to them: each
// expense that member paid is deleted with them (it cannot be reattributed
// automatically), surviving expenses stop splitting with them, and an
// expense whose split empties out is dropped too. Removing the owner is
// rejected before any mutation.
func (g *Group) RemoveMember(id string) error {
	if id == g.OwnerID {
		return ErrOwnerRemoval
	}
	if _, ok := g.FindMember(id); !ok {
		return ErrMemberNotFound
	}

	members := g.Members[:0]
	for _, m := range g.Members {
		if m.ID != id {
			members = append(members, m)
		}
	}
	g.Members = members

	expenses := g.Expenses[:0]
	for _, e := range g.Expenses {
		if e.PaidBy == id {
			continue
		}
		if e.Splits(id) {
			split := make([]string, 0, len(e.SplitAmong)-1)
			for _, sid := range e.SplitAmong {
				if sid != id {
					split = append(split, sid)
				}
			}
			if len(split) == 0 {
				continue
			}
			e.SplitAmong = split
		}
		expenses = append(expenses, e)
	}
	g.Expenses = expenses
	g.touch()
	return nil
}

// SetMemberStatus flips a member between pending and active.
func (g *Group) SetMemberStatus(id string, status MemberStatus) error {
	for i := range g.Members {
		if g.Members[i].ID == id {
			g.Members[i].Status = status
			g.touch()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrMemberNotFound, id)
}

// MergeMember folds the member oldID into newID: every expense paid by
// oldID is rewritten to newID, every split containing oldID has it replaced
// by newID (de-duplicated, both may already be present), and the old member
// record is removed. This reconciles two records believed to be the same
// person, typically after a rejoin from a new device.
func (g *Group) MergeMember(oldID, newID string) error {
	if _, ok := g.FindMember(oldID); !ok {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, oldID)
	}
	if _, ok := g.FindMember(newID); !ok {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, newID)
	}

	for i := range g.Expenses {
		e := &g.Expenses[i]
		if e.PaidBy == oldID {
			e.PaidBy = newID
		}
		if e.Splits(oldID) {
			split := make([]string, 0, len(e.SplitAmong))
			for _, id := range e.SplitAmong {
				if id != oldID {
					split = append(split, id)
				}
			}
			if !containsID(split, newID) {
				split = append(split, newID)
			}
			e.SplitAmong = split
		}
	}

	members := g.Members[:0]
	for _, m := range g.Members {
		if m.ID != oldID {
			members = append(members, m)
		}
	}
	g.Members = members
	g.touch()
	return nil
}

// AddExpense appends an expense, filling ID and CreatedAt if unset.
func (g *Group) AddExpense(e Expense) {
	if e.ID == "" {
		e.ID = NewExpenseID()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = Now()
	}
	if e.Date == 0 {
		e.Date = e.CreatedAt
	}
	g.Expenses = append(g.Expenses, e)
	g.touch()
}

// RemoveExpense drops the expense with the given ID, if present.
func (g *Group) RemoveExpense(id string) {
	expenses := g.Expenses[:0]
	for _, e := range g.Expenses {
		if e.ID != id {
			expenses = append(expenses, e)
		}
	}
	g.Expenses = expenses
	g.touch()
}

// FindExpense returns the expense with the given ID.
func (g *Group) FindExpense(id string) (Expense, bool) {
	for _, e := range g.Expenses {
		if e.ID == id {
			return e, true
		}
	}
	return Expense{}, false
}

// ApplyUpdate sets the scalar fields present in the update.
func (g *Group) ApplyUpdate(u GroupUpdate) {
	if u.Name != nil {
		g.Name = *u.Name
	}
	if u.ImageURL != nil {
		g.ImageURL = *u.ImageURL
	}
	g.touch()
}

func (g *Group) touch() {
	g.UpdatedAt = Now()
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
