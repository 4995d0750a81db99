// Package collections contains the Firestore document schemas and field
// name constants shared across the server, as well as small helpers for
// working with result sets of those documents.
package collections

import (
	"time"

	"recipeserver/visibility"
)

const (
	// UsersID is the top level collection of per-user document spaces.
	UsersID = "users"
	// RecipesID is the per-user subcollection of recipe documents.
	RecipesID = "recipes"
	// SettingsID is the per-user subcollection holding the preferences blob.
	SettingsID = "settings"
	// CollectionsID is the top level, globally addressable collection of
	// recipe collections.
	CollectionsID = "collections"
	// AccessibleIndexID holds one entry per recipe whose resolved visibility
	// is unlisted or public. Entries are keyed by recipe ID so that a single
	// document get resolves them without a listing query.
	AccessibleIndexID = "accessibleRecipeIndex"
	// PublicIndexID holds one entry per recipe whose resolved visibility is
	// public, also keyed by recipe ID.
	PublicIndexID = "publicRecipeIndex"

	// PreferencesDocID is the fixed document ID of the settings blob.
	PreferencesDocID = "preferences"

	// VisibilityKey is the visibility field on recipes, collections and
	// index entries.
	VisibilityKey = "visibility"
	// IsPublicKey is the legacy boolean still read and written for
	// backward compatibility.
	IsPublicKey = "isPublic"
	// OwnerIDKey identifies the owning caller on shared documents.
	OwnerIDKey = "ownerId"
	// RecipeIDsKey is the ordered member list on collection documents.
	RecipeIDsKey = "recipeIds"
	// SharedAtKey records when a recipe last became accessible.
	SharedAtKey = "sharedAt"
	// UpdatedAtKey is the last-update time on most documents.
	UpdatedAtKey = "updatedAt"

	// RecipeViewsKey and RecipeCopiesKey are the counter field paths on
	// recipe documents.
	RecipeViewsKey  = "shareStats.views"
	RecipeCopiesKey = "shareStats.copies"
	// IndexViewsKey is the counter field on public index entries, kept as a
	// best-effort copy of the recipe's view count for popularity sorting.
	IndexViewsKey = "views"
	// CollectionViewsKey and CollectionCopiesKey are the counter field paths
	// on collection documents.
	CollectionViewsKey  = "stats.views"
	CollectionCopiesKey = "stats.recipesCopied"
)

// RecipeIngredient is an ingredient line in a recipe.
type RecipeIngredient struct {
	// Name is the name of the ingredient.
	Name string `firestore:"name"`
	// Quantity is the quantity as free-form text.
	Quantity string `firestore:"quantity"`
}

// RecipeStep is a preparation step in a recipe.
type RecipeStep struct {
	// Description is the description of the step.
	Description string `firestore:"description"`
}

// ShareStats holds the monotonic counters on a shared recipe.
type ShareStats struct {
	// Views counts distinct sessions that viewed the recipe.
	Views int64 `firestore:"views"`
	// Copies counts distinct sessions that copied the recipe.
	Copies int64 `firestore:"copies"`
}

// Recipe is a recipe document, stored under its owner's document space.
type Recipe struct {
	// ID is the document ID of the recipe.
	ID string `firestore:"id"`
	// OwnerID is the caller that owns the recipe.
	OwnerID string `firestore:"ownerId"`
	// Title is the display title of the recipe.
	Title string `firestore:"title"`
	// Ingredients are the ingredient lines of the recipe.
	Ingredients []RecipeIngredient `firestore:"ingredients"`
	// Steps are the preparation steps of the recipe.
	Steps []RecipeStep `firestore:"steps"`
	// ServingSize is the serving size as free-form text.
	ServingSize string `firestore:"servingSize"`

	// Visibility is the access tier. May be absent on documents written
	// before the field existed; always read through Resolved.
	Visibility visibility.Visibility `firestore:"visibility"`
	// IsPublic is the legacy sharing boolean, kept in sync on every
	// visibility write for consumers that still read it.
	IsPublic bool `firestore:"isPublic"`
	// SharedAt is set when the recipe becomes accessible and cleared when it
	// returns to private.
	SharedAt time.Time `firestore:"sharedAt"`
	// ShareStats are the best-effort view/copy counters.
	ShareStats ShareStats `firestore:"shareStats"`

	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// Resolved gives the effective visibility tier of the recipe.
func (r *Recipe) Resolved() visibility.Visibility {
	return visibility.Resolve(r.Visibility, r.IsPublic)
}

// CollectionStats holds the monotonic counters on a collection.
type CollectionStats struct {
	// Views counts distinct sessions that viewed the collection.
	Views int64 `firestore:"views"`
	// RecipesCopied counts distinct sessions that copied a recipe out of
	// the collection.
	RecipesCopied int64 `firestore:"recipesCopied"`
}

// Collection is an ordered, user-curated list of recipe IDs. Collections are
// globally addressable by ID; the member recipes may belong to the owner or
// to other users.
type Collection struct {
	// ID is the document ID of the collection.
	ID string `firestore:"id"`
	// OwnerID is the caller that owns the collection.
	OwnerID string `firestore:"ownerId"`
	// Name is the display name of the collection.
	Name string `firestore:"name"`
	// RecipeIDs is the ordered member list. Order is user-controlled and
	// meaningful; duplicates are forbidden.
	RecipeIDs []string `firestore:"recipeIds"`

	// Visibility is the access tier; read through Resolved.
	Visibility visibility.Visibility `firestore:"visibility"`
	// IsPublic is the legacy sharing boolean.
	IsPublic bool `firestore:"isPublic"`
	// Stats are the best-effort view/copy counters.
	Stats CollectionStats `firestore:"stats"`

	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// Resolved gives the effective visibility tier of the collection.
func (c *Collection) Resolved() visibility.Visibility {
	return visibility.Resolve(c.Visibility, c.IsPublic)
}

// Contains reports whether recipeID is already a member of the collection.
func (c *Collection) Contains(recipeID string) bool {
	for _, id := range c.RecipeIDs {
		if id == recipeID {
			return true
		}
	}
	return false
}

// AccessibleRecipeEntry is a denormalized index entry recording that a recipe
// is viewable by non-owners. One exists per recipe whose resolved visibility
// is unlisted or public, keyed by the recipe ID.
type AccessibleRecipeEntry struct {
	// RecipeID is the indexed recipe.
	RecipeID string `firestore:"recipeId"`
	// OwnerID locates the owning document space for the full fetch.
	OwnerID string `firestore:"ownerId"`
	// Visibility is the recipe's tier at the time of the last sync. The
	// owning document's own field remains ground truth on read.
	Visibility visibility.Visibility `firestore:"visibility"`
	// UpdatedAt is when the entry was last synchronized.
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// PublicRecipeEntry is a denormalized index entry for the strictly
// discoverable subset of recipes. One exists per recipe whose resolved
// visibility is public, keyed by the recipe ID. It carries the two fields
// discovery feeds sort on.
type PublicRecipeEntry struct {
	// RecipeID is the indexed recipe.
	RecipeID string `firestore:"recipeId"`
	// OwnerID locates the owning document space for the full fetch.
	OwnerID string `firestore:"ownerId"`
	// SharedAt is the recipe's share time, the recency sort key.
	SharedAt time.Time `firestore:"sharedAt"`
	// Views is a best-effort copy of the recipe's view counter, the
	// popularity sort key.
	Views int64 `firestore:"views"`
	// UpdatedAt is when the entry was last synchronized.
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// UserSettings is the single-document preferences blob in a user's space.
type UserSettings struct {
	// MeasurementSystem is "metric" or "imperial".
	MeasurementSystem string `firestore:"measurementSystem"`
	// DefaultServings scales new recipes.
	DefaultServings int `firestore:"defaultServings"`
	// MealPlanStartDay is the weekday the plan view starts on (0 = Sunday).
	MealPlanStartDay int `firestore:"mealPlanStartDay"`

	UpdatedAt time.Time `firestore:"updatedAt"`
}
