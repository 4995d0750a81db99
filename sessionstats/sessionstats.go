// Package sessionstats maintains the best-effort view and copy counters,
// deduplicated per client session so that revisiting a recipe within one
// session does not count twice.
package sessionstats

import (
	"sync"

	log "recipeserver/cloudlog"
	"recipeserver/collections"

	"github.com/google/uuid"
)

// Counter kinds for the dedup sets. Each kind tracks its own set of already
// counted IDs.
const (
	kindRecipeView     = "recipeView"
	kindRecipeCopy     = "recipeCopy"
	kindCollectionView = "collectionView"
	kindCollectionCopy = "collectionCopy"
)

type datastore interface {
	IncrementRecipeCounter(ownerID, recipeID, fieldPath string) error
	IncrementPublicEntryViews(recipeID string) error
	IncrementCollectionCounter(collectionID, fieldPath string) error
}

// Tracker deduplicates counter increments for the lifetime of one client
// session. Construct one per session and discard it on session end; the
// sets are never persisted or shared, so a fresh session may count an ID
// again. Increment failures are swallowed: the counters are a metric, not a
// correctness-critical value.
type Tracker struct {
	sessionID string
	db        datastore

	mu      sync.Mutex
	counted map[string]map[string]struct{}
}

// NewTracker gives a Tracker for a new session.
func NewTracker(db datastore) *Tracker {
	return &Tracker{
		sessionID: uuid.New().String(),
		db:        db,
		counted:   make(map[string]map[string]struct{}),
	}
}

// SessionID identifies the session, for logging.
func (t *Tracker) SessionID() string {
	return t.sessionID
}

// mark records the ID in the kind's dedup set and reports whether it was new.
// The set is populated before any increment is issued, which narrows (but
// does not close) the window in which two near-simultaneous calls for the
// same ID both count.
func (t *Tracker) mark(kind, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids, ok := t.counted[kind]
	if !ok {
		ids = make(map[string]struct{})
		t.counted[kind] = ids
	}
	if _, ok := ids[id]; ok {
		return false
	}
	ids[id] = struct{}{}
	return true
}

// RecipeViewed counts one view of a recipe, once per session. The public
// index entry's popularity key is bumped alongside the recipe's own counter,
// also best-effort.
func (t *Tracker) RecipeViewed(ownerID, recipeID string) {
	if !t.mark(kindRecipeView, recipeID) {
		return
	}
	if err := t.db.IncrementRecipeCounter(ownerID, recipeID, collections.RecipeViewsKey); err != nil {
		log.Printf("view increment for recipe %s failed: %s", recipeID, err.Error())
		return
	}
	if err := t.db.IncrementPublicEntryViews(recipeID); err != nil {
		log.Printf("index view increment for recipe %s failed: %s", recipeID, err.Error())
	}
}

// RecipeCopied counts one copy of a recipe, once per session.
func (t *Tracker) RecipeCopied(ownerID, recipeID string) {
	if !t.mark(kindRecipeCopy, recipeID) {
		return
	}
	if err := t.db.IncrementRecipeCounter(ownerID, recipeID, collections.RecipeCopiesKey); err != nil {
		log.Printf("copy increment for recipe %s failed: %s", recipeID, err.Error())
	}
}

// CollectionViewed counts one view of a collection, once per session.
func (t *Tracker) CollectionViewed(collectionID string) {
	if !t.mark(kindCollectionView, collectionID) {
		return
	}
	if err := t.db.IncrementCollectionCounter(collectionID, collections.CollectionViewsKey); err != nil {
		log.Printf("view increment for collection %s failed: %s", collectionID, err.Error())
	}
}

// CollectionRecipeCopied counts one recipe copy out of a collection, once
// per session per collection.
func (t *Tracker) CollectionRecipeCopied(collectionID string) {
	if !t.mark(kindCollectionCopy, collectionID) {
		return
	}
	if err := t.db.IncrementCollectionCounter(collectionID, collections.CollectionCopiesKey); err != nil {
		log.Printf("copy increment for collection %s failed: %s", collectionID, err.Error())
	}
}
