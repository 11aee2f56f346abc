package models

import (
	"math/rand"
	"strings"

	"github.com/google/uuid"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewGroupID derives a short shareable identifier from the group name: a
// lowercased slug plus a random alphanumeric suffix ("road-trip-x7k2").
// Collisions are accepted as negligible and not actively checked.
func NewGroupID(name string) string {
	slug := slugify(name)
	if slug == "" {
		slug = "group"
	}
	return slug + "-" + randomSuffix(4)
}

// NewMemberID returns a fresh member identifier.
func NewMemberID() string {
	return "user-" + uuid.New().String()
}

// NewExpenseID returns a fresh expense identifier.
func NewExpenseID() string {
	return "exp-" + uuid.New().String()
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true // suppress a leading dash
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

func randomSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	return string(b)
}
