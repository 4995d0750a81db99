// Package sharesync keeps a recipe's access tier consistent with the two
// denormalized lookup indexes, and owns every mutation path for recipes and
// collections. Index and document writes are separate Firestore operations
// with independent failure domains; each multi-step mutation runs as an
// explicit ordered step list so the failure direction is fixed and partial
// failures can feed the repair hook.
package sharesync

import (
	"errors"
	"fmt"
	"time"

	log "recipeserver/cloudlog"
	"recipeserver/collections"
	"recipeserver/recipeauth"
	"recipeserver/storage"
	"recipeserver/visibility"
)

var (
	// ErrInvalidVisibility is given when a mutation names a tier outside the
	// closed enum.
	ErrInvalidVisibility = errors.New("visibility must be private, unlisted or public")
	// ErrInvalidOrder is given when a reorder request is not a permutation
	// of the collection's current members.
	ErrInvalidOrder = errors.New("order must be a permutation of the current members")
)

// datastore defines the storage methods the syncer needs. Mirrors a subset
// of storage.Store; faked in tests.
type datastore interface {
	Recipe(ownerID, recipeID string) (*collections.Recipe, error)
	SetRecipe(ownerID string, recipe *collections.Recipe) error
	NewRecipeID(ownerID string) string
	DeleteRecipe(ownerID, recipeID string) error

	Collection(collectionID string) (*collections.Collection, error)
	CreateCollection(col *collections.Collection) (string, error)
	SetCollection(col *collections.Collection) error
	DeleteCollection(collectionID string) error
	CollectionsWhere(conds []storage.Condition, limit int) ([]collections.Collection, error)

	UpsertAccessibleEntry(entry *collections.AccessibleRecipeEntry) error
	DeleteAccessibleEntry(recipeID string) error
	UpsertPublicEntry(entry *collections.PublicRecipeEntry) error
	DeletePublicEntry(recipeID string) error
}

// repairer receives an event for every partial sync failure. See
// RepairPublisher for the Pub/Sub implementation.
type repairer interface {
	Publish(event RepairEvent)
}

// Syncer applies visibility mutations and keeps the indexes in lock-step.
type Syncer struct {
	db     datastore
	guard  recipeauth.Guard
	repair repairer

	// Overridable for deterministic timestamps in tests.
	now func() time.Time
}

// NewSyncer gives a Syncer over the datastore. repair may be nil, in which
// case partial failures are only logged.
func NewSyncer(db datastore, guard recipeauth.Guard, repair repairer) *Syncer {
	return &Syncer{
		db:     db,
		guard:  guard,
		repair: repair,
		now:    time.Now,
	}
}

// syncStep is one write of a multi-document mutation. Steps run in order;
// the first failure stops the run.
type syncStep struct {
	name string
	run  func() error
}

// runSteps executes the steps in order. On failure it reports the partial
// sync to the repair hook and returns the failing step's error.
func (s *Syncer) runSteps(recipeID string, steps []syncStep) error {
	for i, step := range steps {
		if err := step.run(); err != nil {
			log.Printf("sync for recipe %s failed at step %s: %s", recipeID, step.name, err.Error())
			if i > 0 && s.repair != nil {
				// Earlier steps committed; leave a trail for an
				// out-of-band reconciler.
				s.repair.Publish(RepairEvent{
					RecipeID: recipeID,
					Step:     step.name,
					Reason:   err.Error(),
				})
			}
			return fmt.Errorf("sync step %s: %w", step.name, err)
		}
	}
	return nil
}

// CreateRecipe creates a recipe in the caller's document space. Recipes are
// born private; no index entries exist until the first visibility change.
func (s *Syncer) CreateRecipe(callerID string, recipe *collections.Recipe) (*collections.Recipe, error) {
	if callerID == "" {
		return nil, recipeauth.ErrNotSignedIn
	}
	now := s.now()
	recipe.ID = s.db.NewRecipeID(callerID)
	recipe.OwnerID = callerID
	recipe.Visibility = visibility.Private
	recipe.IsPublic = false
	recipe.SharedAt = time.Time{}
	recipe.ShareStats = collections.ShareStats{}
	recipe.CreatedAt = now
	recipe.UpdatedAt = now
	if err := s.db.SetRecipe(callerID, recipe); err != nil {
		return nil, err
	}
	return recipe, nil
}

// SetRecipeVisibility moves the caller's recipe to the new tier and
// reconciles both indexes. Index writes run before the owning document
// write: a crash in between leaves an index entry whose target's visibility
// field has not caught up yet, which self-corrects because readers resolve
// through the owning document. The opposite order could leave an accessible
// document with no index entry, which nothing corrects.
func (s *Syncer) SetRecipeVisibility(callerID, recipeID string, newVis visibility.Visibility) (*collections.Recipe, error) {
	if callerID == "" {
		return nil, recipeauth.ErrNotSignedIn
	}
	if newVis != visibility.Private && newVis != visibility.Unlisted && newVis != visibility.Public {
		return nil, ErrInvalidVisibility
	}
	recipe, err := s.db.Recipe(callerID, recipeID)
	if err != nil {
		return nil, err
	}
	if recipe == nil {
		return nil, recipeauth.ErrNotFound
	}
	if err := s.applyVisibility(recipe, newVis); err != nil {
		return nil, err
	}
	return recipe, nil
}

// applyVisibility runs the index-then-document step sequence on an already
// fetched recipe, mutating it in place. Shared by SetRecipeVisibility and
// the collection cascade.
func (s *Syncer) applyVisibility(recipe *collections.Recipe, newVis visibility.Visibility) error {
	oldVis := recipe.Resolved()
	now := s.now()

	wasAccessible := visibility.IsAccessible(oldVis)
	willBeAccessible := visibility.IsAccessible(newVis)
	wasDiscoverable := visibility.IsDiscoverable(oldVis)
	willBeDiscoverable := visibility.IsDiscoverable(newVis)

	sharedAt := recipe.SharedAt
	if willBeAccessible && !wasAccessible {
		sharedAt = now
	} else if !willBeAccessible {
		sharedAt = time.Time{}
	}

	steps := []syncStep{}
	if willBeAccessible && (!wasAccessible || oldVis != newVis) {
		entry := &collections.AccessibleRecipeEntry{
			RecipeID:   recipe.ID,
			OwnerID:    recipe.OwnerID,
			Visibility: newVis,
			UpdatedAt:  now,
		}
		steps = append(steps, syncStep{
			name: "upsert accessible entry",
			run:  func() error { return s.db.UpsertAccessibleEntry(entry) },
		})
	} else if wasAccessible && !willBeAccessible {
		steps = append(steps, syncStep{
			name: "delete accessible entry",
			run:  func() error { return s.db.DeleteAccessibleEntry(recipe.ID) },
		})
	}
	if willBeDiscoverable && (!wasDiscoverable || oldVis != newVis) {
		entry := &collections.PublicRecipeEntry{
			RecipeID:  recipe.ID,
			OwnerID:   recipe.OwnerID,
			SharedAt:  sharedAt,
			Views:     recipe.ShareStats.Views,
			UpdatedAt: now,
		}
		steps = append(steps, syncStep{
			name: "upsert public entry",
			run:  func() error { return s.db.UpsertPublicEntry(entry) },
		})
	} else if wasDiscoverable && !willBeDiscoverable {
		steps = append(steps, syncStep{
			name: "delete public entry",
			run:  func() error { return s.db.DeletePublicEntry(recipe.ID) },
		})
	}

	recipe.Visibility = newVis
	recipe.IsPublic = visibility.IsAccessible(newVis)
	recipe.SharedAt = sharedAt
	recipe.UpdatedAt = now
	steps = append(steps, syncStep{
		name: "write recipe document",
		run:  func() error { return s.db.SetRecipe(recipe.OwnerID, recipe) },
	})

	return s.runSteps(recipe.ID, steps)
}

// DeleteRecipe removes the caller's recipe and treats the deletion as an
// implicit demotion to private for index purposes. The document goes first:
// if an index removal then fails, the entry dangles at a missing target,
// which index readers already tolerate and skip.
func (s *Syncer) DeleteRecipe(callerID, recipeID string) error {
	if callerID == "" {
		return recipeauth.ErrNotSignedIn
	}
	recipe, err := s.db.Recipe(callerID, recipeID)
	if err != nil {
		return err
	}
	if recipe == nil {
		return recipeauth.ErrNotFound
	}
	steps := []syncStep{
		{
			name: "delete recipe document",
			run:  func() error { return s.db.DeleteRecipe(callerID, recipeID) },
		},
		{
			name: "delete accessible entry",
			run:  func() error { return s.db.DeleteAccessibleEntry(recipeID) },
		},
		{
			name: "delete public entry",
			run:  func() error { return s.db.DeletePublicEntry(recipeID) },
		},
	}
	return s.runSteps(recipeID, steps)
}
