// Package storage defines the persistence contracts of the sync engine:
// the durable on-device cache (Local) and the shared remote backend
// (Remote). The session layer only ever talks to these interfaces, so
// backends are swappable at startup (in-memory reference backend, the
// JSON/HTTP backend, or a test double).
package storage

import (
	"context"
	"errors"

	"github.com/mabesi/mysplit/internal/models"
)

// ErrNotFound means the referenced group does not exist in the store.
// Read paths generally report absence as a nil group instead; ErrNotFound
// is for mutating calls aimed at a missing group.
var ErrNotFound = errors.New("group not found")

// Metadata describes the sync state of a group as seen by the remote
// backend. HasPendingWrites means the backend has accepted writes it has
// not durably committed to the shared copy yet; FromCache means the last
// snapshot was served without reaching the server.
type Metadata struct {
	HasPendingWrites bool `json:"hasPendingWrites"`
	FromCache        bool `json:"fromCache"`
}

// OpKind names a subtractive remote operation recorded in the local
// journal. The background union-merge is purely additive, so these are the
// only operations whose effect would silently vanish if a single remote
// attempt failed; journaling them makes the removal durable until the
// backend confirms it.
type OpKind string

const (
	OpRemoveMember    OpKind = "remove_member"
	OpDeleteExpense   OpKind = "delete_expense"
	OpSetMemberStatus OpKind = "set_member_status"
	OpMergeMember     OpKind = "merge_member"
)

// PendingOp is one journaled subtractive operation. Which argument fields
// are meaningful depends on Kind. ID is assigned by the store on enqueue
// and orders replay.
type PendingOp struct {
	ID        int64               `json:"-"`
	GroupID   string              `json:"groupId"`
	Kind      OpKind              `json:"kind"`
	MemberID  string              `json:"memberId,omitempty"`
	ExpenseID string              `json:"expenseId,omitempty"`
	OldID     string              `json:"oldId,omitempty"`
	NewID     string              `json:"newId,omitempty"`
	Status    models.MemberStatus `json:"status,omitempty"`
}

// Local is the durable on-device store: full group snapshots plus the set
// of group ids with unsynced local edits, the journal of subtractive
// operations awaiting remote confirmation, plus the small pieces of device
// state (opaque user id, ordered list of joined groups).
//
// Every call is an atomic read-modify-write; no partial state is ever
// observable to another call on the same device. SaveGroup replaces the
// whole stored snapshot (last-writer-wins), it does not merge fields.
type Local interface {
	// SaveGroup stores the snapshot, replacing any previous value.
	SaveGroup(ctx context.Context, g *models.Group) error

	// GetGroup returns the cached snapshot, or (nil, nil) on a miss.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// AllGroups returns every cached snapshot keyed by group id.
	AllGroups(ctx context.Context) (map[string]*models.Group, error)

	// MarkDirty records that the group has local edits awaiting sync.
	MarkDirty(ctx context.Context, groupID string) error

	// ClearDirty removes the group from the dirty set.
	ClearDirty(ctx context.Context, groupID string) error

	// IsDirty reports whether the group has unsynced local edits.
	IsDirty(ctx context.Context, groupID string) (bool, error)

	// DirtyGroupIDs lists every group awaiting sync.
	DirtyGroupIDs(ctx context.Context) ([]string, error)

	// EnqueueOp journals a subtractive operation and assigns op.ID.
	EnqueueOp(ctx context.Context, op *PendingOp) error

	// PendingOps lists the group's journaled operations in enqueue order.
	PendingOps(ctx context.Context, groupID string) ([]PendingOp, error)

	// DeleteOp removes one journaled operation. Unknown ids are a no-op,
	// so confirming an operation twice is harmless.
	DeleteOp(ctx context.Context, id int64) error

	// DeleteGroup removes the snapshot, its dirty flag, and its journaled
	// operations. Deleting an unknown group is a no-op.
	DeleteGroup(ctx context.Context, groupID string) error

	// UserID returns the persisted opaque user id, or "" if none yet.
	UserID(ctx context.Context) (string, error)

	// SetUserID persists the opaque user id.
	SetUserID(ctx context.Context, id string) error

	// GroupIDs returns the ordered list of groups this device has
	// joined or created.
	GroupIDs(ctx context.Context) ([]string, error)

	// SetGroupIDs replaces the joined-group list.
	SetGroupIDs(ctx context.Context, ids []string) error

	// Close releases any resources held by the store.
	Close() error
}

// Remote is the narrow adapter over the shared backend. Implementations
// may queue writes while offline (reflected through GroupMetadata) but must
// never invent deletions: removing members or expenses only ever happens
// through the explicit calls below.
//
// Cross-device races on RemoveMember/MergeMember are an accepted
// limitation: these are read-modify-write operations and no lock or
// version check serializes two online devices mutating the same group.
type Remote interface {
	// CreateGroup creates a group with the creator as sole active
	// member. A non-empty customID pins the group id, which lets a
	// device re-create its locally-born groups remotely under the same
	// id during sync.
	CreateGroup(ctx context.Context, name string, creator models.Member, customID string) (*models.Group, error)

	// GetGroup returns the group, or (nil, nil) when it does not exist.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// SubscribeToGroup registers a callback invoked with every observed
	// snapshot of the group, including ones served from a backend-side
	// pending-write cache. The returned unsubscribe is idempotent and
	// safe to call multiple times.
	SubscribeToGroup(groupID string, onUpdate func(*models.Group)) (unsubscribe func(), err error)

	// AddExpense appends an expense (additive, array-union semantics).
	AddExpense(ctx context.Context, groupID string, e models.Expense) error

	// AddMember appends a member. Fails with models.ErrNameTaken when
	// the display name collides with a non-pending member.
	AddMember(ctx context.Context, groupID string, m models.Member) error

	// RemoveMember drops a member, the expenses they paid, and their
	// participation in surviving splits.
	RemoveMember(ctx context.Context, groupID, memberID string) error

	// UpdateMemberStatus flips a member between pending and active.
	UpdateMemberStatus(ctx context.Context, groupID, memberID string, status models.MemberStatus) error

	// MergeMember rewrites oldID's expense references to newID and
	// removes the old member record (read-then-write, not array-union:
	// the rewritten expense list is derived state).
	MergeMember(ctx context.Context, groupID, oldID, newID string) error

	// DeleteExpense removes one expense.
	DeleteExpense(ctx context.Context, groupID, expenseID string) error

	// DeleteGroup destroys the group. Not recoverable.
	DeleteGroup(ctx context.Context, groupID string) error

	// UpdateGroup applies a partial scalar update (name, image).
	UpdateGroup(ctx context.Context, groupID string, update models.GroupUpdate) error

	// UploadImage stores an image blob and returns a URL for it.
	// Backends without blob storage may echo the data URI back.
	UploadImage(ctx context.Context, dataURI, path string) (string, error)

	// GroupMetadata reports the group's sync metadata, or (nil, nil)
	// when the group does not exist.
	GroupMetadata(ctx context.Context, groupID string) (*Metadata, error)
}
