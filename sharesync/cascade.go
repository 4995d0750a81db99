package sharesync

import (
	"recipeserver/collections"
	"recipeserver/recipeauth"
	"recipeserver/storage"
	"recipeserver/visibility"
)

// ElevationResult reports whether adding a recipe to a collection raised the
// recipe's tier, so the UI can tell the user.
type ElevationResult struct {
	// RecipeVisibilityChanged is true when the add elevated the recipe.
	RecipeVisibilityChanged bool `json:"recipeVisibilityChanged"`
	// NewVisibility is the tier the recipe was raised to, when it was.
	NewVisibility visibility.Visibility `json:"newVisibility,omitempty"`
}

// CreateCollection creates a private collection owned by the caller.
func (s *Syncer) CreateCollection(callerID, name string) (*collections.Collection, error) {
	if callerID == "" {
		return nil, recipeauth.ErrNotSignedIn
	}
	now := s.now()
	col := &collections.Collection{
		OwnerID:    callerID,
		Name:       name,
		RecipeIDs:  []string{},
		Visibility: visibility.Private,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.db.CreateCollection(col); err != nil {
		return nil, err
	}
	return col, nil
}

// AddRecipeToCollection appends the recipe to the collection's member list.
// Adding an existing member is a no-op, with no elevation check. When the
// collection is accessible and the recipe is the caller's own and not yet
// accessible, the recipe is first elevated to the collection's tier; the
// cascade only ever raises, never demotes. Recipes owned by other users are
// referenced as-is: the caller has no write path to them, and they are only
// resolvable for viewers while their owner keeps them accessible.
func (s *Syncer) AddRecipeToCollection(callerID, collectionID, recipeID string) (*ElevationResult, error) {
	col, err := s.guard.OwnedCollection(callerID, collectionID)
	if err != nil {
		return nil, err
	}
	result := &ElevationResult{}
	if col.Contains(recipeID) {
		return result, nil
	}

	colVis := col.Resolved()
	if visibility.IsAccessible(colVis) {
		recipe, err := s.db.Recipe(callerID, recipeID)
		if err != nil {
			return nil, err
		}
		if recipe != nil && !visibility.IsAccessible(recipe.Resolved()) {
			if err := s.applyVisibility(recipe, colVis); err != nil {
				return nil, err
			}
			result.RecipeVisibilityChanged = true
			result.NewVisibility = colVis
		}
	}

	col.RecipeIDs = append(col.RecipeIDs, recipeID)
	col.UpdatedAt = s.now()
	if err := s.db.SetCollection(col); err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveRecipeFromCollection drops the recipe from the member list. Removing
// a non-member is a no-op. The recipe's own visibility is untouched.
func (s *Syncer) RemoveRecipeFromCollection(callerID, collectionID, recipeID string) (*collections.Collection, error) {
	col, err := s.guard.OwnedCollection(callerID, collectionID)
	if err != nil {
		return nil, err
	}
	if !col.Contains(recipeID) {
		return col, nil
	}
	members := make([]string, 0, len(col.RecipeIDs)-1)
	for _, id := range col.RecipeIDs {
		if id != recipeID {
			members = append(members, id)
		}
	}
	col.RecipeIDs = members
	col.UpdatedAt = s.now()
	if err := s.db.SetCollection(col); err != nil {
		return nil, err
	}
	return col, nil
}

// ReorderCollection replaces the member list with a new ordering. The new
// order must be a permutation of the current members; duplicates are
// rejected before any write. The write replaces the whole array, so two
// devices reordering concurrently are last-write-wins with no merge.
func (s *Syncer) ReorderCollection(callerID, collectionID string, order []string) (*collections.Collection, error) {
	col, err := s.guard.OwnedCollection(callerID, collectionID)
	if err != nil {
		return nil, err
	}
	if !isPermutation(col.RecipeIDs, order) {
		return nil, ErrInvalidOrder
	}
	col.RecipeIDs = order
	col.UpdatedAt = s.now()
	if err := s.db.SetCollection(col); err != nil {
		return nil, err
	}
	return col, nil
}

// RenameCollection changes the collection's display name.
func (s *Syncer) RenameCollection(callerID, collectionID, name string) (*collections.Collection, error) {
	col, err := s.guard.OwnedCollection(callerID, collectionID)
	if err != nil {
		return nil, err
	}
	col.Name = name
	col.UpdatedAt = s.now()
	if err := s.db.SetCollection(col); err != nil {
		return nil, err
	}
	return col, nil
}

// SetCollectionVisibility moves the collection to the new tier. Existing
// members are untouched: the elevation cascade runs only when a recipe is
// added, and demotion never cascades at all.
func (s *Syncer) SetCollectionVisibility(callerID, collectionID string, newVis visibility.Visibility) (*collections.Collection, error) {
	if newVis != visibility.Private && newVis != visibility.Unlisted && newVis != visibility.Public {
		return nil, ErrInvalidVisibility
	}
	col, err := s.guard.OwnedCollection(callerID, collectionID)
	if err != nil {
		return nil, err
	}
	col.Visibility = newVis
	col.IsPublic = visibility.IsAccessible(newVis)
	col.UpdatedAt = s.now()
	if err := s.db.SetCollection(col); err != nil {
		return nil, err
	}
	return col, nil
}

// DeleteCollection removes the collection document. Member recipes keep
// whatever visibility they were elevated to.
func (s *Syncer) DeleteCollection(callerID, collectionID string) error {
	if _, err := s.guard.OwnedCollection(callerID, collectionID); err != nil {
		return err
	}
	return s.db.DeleteCollection(collectionID)
}

// PublicCollectionsContainingRecipe lists the discoverable collections that
// reference the recipe. It backs the warning shown before an owner demotes a
// recipe that public collections still point at; confirming the demotion
// does not remove the memberships. Current-schema and legacy-schema matches
// are merged by ID with current-schema precedence, then filtered through the
// resolved tier to reject legacy matches that are not actually public.
func (s *Syncer) PublicCollectionsContainingRecipe(recipeID string) ([]collections.Collection, error) {
	membership := storage.Condition{
		Path:  collections.RecipeIDsKey,
		Op:    "array-contains",
		Value: recipeID,
	}
	current, err := s.db.CollectionsWhere([]storage.Condition{
		membership,
		{Path: collections.VisibilityKey, Op: "==", Value: string(visibility.Public)},
	}, 0)
	if err != nil {
		return nil, err
	}
	legacy, err := s.db.CollectionsWhere([]storage.Condition{
		membership,
		{Path: collections.IsPublicKey, Op: "==", Value: true},
	}, 0)
	if err != nil {
		return nil, err
	}
	merged := collections.MergeByID(current, legacy)
	discoverable := merged[:0]
	for _, col := range merged {
		if visibility.IsDiscoverable(col.Resolved()) {
			discoverable = append(discoverable, col)
		}
	}
	return discoverable, nil
}

func isPermutation(current, proposed []string) bool {
	if len(current) != len(proposed) {
		return false
	}
	counts := make(map[string]int, len(current))
	for _, id := range current {
		counts[id]++
	}
	for _, id := range proposed {
		counts[id]--
		if counts[id] < 0 {
			return false
		}
	}
	return true
}
