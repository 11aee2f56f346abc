package models

import "strings"

// MemberStatus tells whether a member counts as part of the group or is
// still waiting for the owner's approval.
type MemberStatus string

const (
	// StatusActive marks a full member of the group.
	StatusActive MemberStatus = "active"

	// StatusPending marks a self-joined member awaiting approval.
	StatusPending MemberStatus = "pending"
)

// Member represents one participant in a group.
type Member struct {
	// ID is an opaque identifier, unique within the group and stable for
	// the lifetime of the member.
	ID string `json:"id"`

	// Name is the display name. Unique among non-pending members of a
	// group, compared case-insensitively at write time.
	Name string `json:"name"`

	// Email is optional contact information.
	Email string `json:"email,omitempty"`

	// AvatarURL is an optional profile image.
	AvatarURL string `json:"avatarUrl,omitempty"`

	// Status is active or pending. An empty status is treated as active
	// for snapshots written before approval existed.
	Status MemberStatus `json:"status,omitempty"`
}

// Pending reports whether the member is still awaiting approval.
func (m Member) Pending() bool {
	return m.Status == StatusPending
}

// SameName compares display names case-insensitively.
func (m Member) SameName(name string) bool {
	return strings.EqualFold(m.Name, name)
}
