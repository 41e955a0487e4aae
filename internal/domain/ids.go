package domain

import (
	"strings"

	"github.com/google/uuid"
)

// tempPrefix marks ids minted locally before the remote store has assigned
// one. The push phase remaps them to remote ids on create.
const tempPrefix = "tmp-"

// NewTempID mints an optimistic local id for a record created offline.
func NewTempID() string {
	return tempPrefix + uuid.NewString()
}

// IsTempID reports whether an id is a local temporary id.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempPrefix)
}
