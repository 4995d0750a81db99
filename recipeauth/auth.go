// Package recipeauth verifies caller identity and ownership before any
// mutating operation on a shared document.
package recipeauth

import (
	"errors"

	"recipeserver/collections"
)

var (
	// ErrNotSignedIn is given when no caller identity is available. The
	// operation fails and the UI should prompt for login; never retried.
	ErrNotSignedIn = errors.New("no signed-in caller")
	// ErrNotFound is given when the target document is absent on the read
	// required before a mutation.
	ErrNotFound = errors.New("document does not exist")
	// ErrNotAuthorized is given when the caller is not the owner of the
	// document. Never retried and never downgraded to a partial success.
	ErrNotAuthorized = errors.New("caller does not own the document")
)

// Guard verifies that a caller may mutate a collection. Recipes need no
// runtime guard: their only write path is scoped to the caller's own
// document space, so non-owners cannot reach them structurally.
type Guard interface {
	OwnedCollection(callerID, collectionID string) (*collections.Collection, error)
}

type datastore interface {
	Collection(collectionID string) (*collections.Collection, error)
}

type ownerGuard struct {
	db datastore
}

// NewGuard gives a Guard backed by the given datastore.
func NewGuard(db datastore) Guard {
	return &ownerGuard{db: db}
}

// OwnedCollection re-fetches the collection and checks ownership. The fetch
// is mandatory even when the caller holds a local copy: UI state cannot be
// trusted for authorization against the current store state.
func (g *ownerGuard) OwnedCollection(callerID, collectionID string) (*collections.Collection, error) {
	if callerID == "" {
		return nil, ErrNotSignedIn
	}
	col, err := g.db.Collection(collectionID)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, ErrNotFound
	}
	if col.OwnerID != callerID {
		return nil, ErrNotAuthorized
	}
	return col, nil
}
