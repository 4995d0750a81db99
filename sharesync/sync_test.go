package sharesync

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"recipeserver/collections"
	"recipeserver/recipeauth"
	"recipeserver/storage"
	"recipeserver/visibility"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory stand-in for storage.Store. Documents are stored
// by value so test code and syncer code never alias the same struct.
type fakeStore struct {
	recipes    map[string]map[string]collections.Recipe
	cols       map[string]collections.Collection
	accessible map[string]collections.AccessibleRecipeEntry
	public     map[string]collections.PublicRecipeEntry

	// failOn maps a method name to an error to return from it.
	failOn map[string]error

	nextID int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		recipes:    map[string]map[string]collections.Recipe{},
		cols:       map[string]collections.Collection{},
		accessible: map[string]collections.AccessibleRecipeEntry{},
		public:     map[string]collections.PublicRecipeEntry{},
		failOn:     map[string]error{},
	}
}

func (fs *fakeStore) fail(method string) error {
	return fs.failOn[method]
}

func (fs *fakeStore) Recipe(ownerID, recipeID string) (*collections.Recipe, error) {
	if err := fs.fail("Recipe"); err != nil {
		return nil, err
	}
	recipe, ok := fs.recipes[ownerID][recipeID]
	if !ok {
		return nil, nil
	}
	return &recipe, nil
}

func (fs *fakeStore) SetRecipe(ownerID string, recipe *collections.Recipe) error {
	if err := fs.fail("SetRecipe"); err != nil {
		return err
	}
	if fs.recipes[ownerID] == nil {
		fs.recipes[ownerID] = map[string]collections.Recipe{}
	}
	fs.recipes[ownerID][recipe.ID] = *recipe
	return nil
}

func (fs *fakeStore) NewRecipeID(ownerID string) string {
	fs.nextID++
	return fmt.Sprintf("recipe-%d", fs.nextID)
}

func (fs *fakeStore) DeleteRecipe(ownerID, recipeID string) error {
	if err := fs.fail("DeleteRecipe"); err != nil {
		return err
	}
	delete(fs.recipes[ownerID], recipeID)
	return nil
}

func (fs *fakeStore) Collection(collectionID string) (*collections.Collection, error) {
	if err := fs.fail("Collection"); err != nil {
		return nil, err
	}
	col, ok := fs.cols[collectionID]
	if !ok {
		return nil, nil
	}
	return &col, nil
}

func (fs *fakeStore) CreateCollection(col *collections.Collection) (string, error) {
	if err := fs.fail("CreateCollection"); err != nil {
		return "", err
	}
	fs.nextID++
	col.ID = fmt.Sprintf("collection-%d", fs.nextID)
	fs.cols[col.ID] = *col
	return col.ID, nil
}

func (fs *fakeStore) SetCollection(col *collections.Collection) error {
	if err := fs.fail("SetCollection"); err != nil {
		return err
	}
	fs.cols[col.ID] = *col
	return nil
}

func (fs *fakeStore) DeleteCollection(collectionID string) error {
	if err := fs.fail("DeleteCollection"); err != nil {
		return err
	}
	delete(fs.cols, collectionID)
	return nil
}

// CollectionsWhere understands the three predicates the syncer issues:
// membership, current-schema visibility and the legacy boolean.
func (fs *fakeStore) CollectionsWhere(conds []storage.Condition, limit int) ([]collections.Collection, error) {
	if err := fs.fail("CollectionsWhere"); err != nil {
		return nil, err
	}
	matches := []collections.Collection{}
	for _, col := range fs.cols {
		ok := true
		for _, cond := range conds {
			switch cond.Path {
			case collections.RecipeIDsKey:
				ok = ok && col.Contains(cond.Value.(string))
			case collections.VisibilityKey:
				ok = ok && string(col.Visibility) == cond.Value.(string)
			case collections.IsPublicKey:
				ok = ok && col.IsPublic == cond.Value.(bool)
			default:
				ok = false
			}
		}
		if ok {
			matches = append(matches, col)
		}
		if limit > 0 && len(matches) == limit {
			break
		}
	}
	return matches, nil
}

func (fs *fakeStore) UpsertAccessibleEntry(entry *collections.AccessibleRecipeEntry) error {
	if err := fs.fail("UpsertAccessibleEntry"); err != nil {
		return err
	}
	fs.accessible[entry.RecipeID] = *entry
	return nil
}

func (fs *fakeStore) DeleteAccessibleEntry(recipeID string) error {
	if err := fs.fail("DeleteAccessibleEntry"); err != nil {
		return err
	}
	delete(fs.accessible, recipeID)
	return nil
}

func (fs *fakeStore) UpsertPublicEntry(entry *collections.PublicRecipeEntry) error {
	if err := fs.fail("UpsertPublicEntry"); err != nil {
		return err
	}
	fs.public[entry.RecipeID] = *entry
	return nil
}

func (fs *fakeStore) DeletePublicEntry(recipeID string) error {
	if err := fs.fail("DeletePublicEntry"); err != nil {
		return err
	}
	delete(fs.public, recipeID)
	return nil
}

type fakeRepairer struct {
	events []RepairEvent
}

func (fr *fakeRepairer) Publish(event RepairEvent) {
	fr.events = append(fr.events, event)
}

func newTestSyncer(fs *fakeStore) (*Syncer, *fakeRepairer) {
	repair := &fakeRepairer{}
	syncer := NewSyncer(fs, recipeauth.NewGuard(fs), repair)
	syncer.now = func() time.Time {
		return time.Date(2021, time.March, 14, 15, 9, 26, 0, time.UTC)
	}
	return syncer, repair
}

// assertIndexInvariant checks the core property: an accessible entry exists
// iff the recipe is accessible, a public entry iff it is discoverable.
func assertIndexInvariant(t *testing.T, fs *fakeStore) {
	t.Helper()
	for _, byID := range fs.recipes {
		for id, recipe := range byID {
			resolved := recipe.Resolved()
			_, hasAccessible := fs.accessible[id]
			_, hasPublic := fs.public[id]
			assert.Equal(t, visibility.IsAccessible(resolved), hasAccessible,
				"accessible entry presence for %s (%s)", id, resolved)
			assert.Equal(t, visibility.IsDiscoverable(resolved), hasPublic,
				"public entry presence for %s (%s)", id, resolved)
		}
	}
}

func createTestRecipe(t *testing.T, syncer *Syncer, ownerID, title string) *collections.Recipe {
	t.Helper()
	recipe, err := syncer.CreateRecipe(ownerID, &collections.Recipe{Title: title})
	require.NoError(t, err)
	return recipe
}

func TestShareThenUnshareRecipe(t *testing.T) {
	fs := newFakeStore()
	syncer, _ := newTestSyncer(fs)
	recipe := createTestRecipe(t, syncer, "alice", "carbonara")
	assert.Equal(t, visibility.Private, recipe.Resolved())
	assertIndexInvariant(t, fs)

	updated, err := syncer.SetRecipeVisibility("alice", recipe.ID, visibility.Public)
	require.NoError(t, err)
	assert.Equal(t, visibility.Public, updated.Resolved())
	assert.True(t, updated.IsPublic, "legacy boolean must track accessibility")
	assert.False(t, updated.SharedAt.IsZero(), "sharedAt must be set on share")
	assertIndexInvariant(t, fs)
	assert.Equal(t, "alice", fs.accessible[recipe.ID].OwnerID)
	assert.Equal(t, visibility.Public, fs.accessible[recipe.ID].Visibility)

	updated, err = syncer.SetRecipeVisibility("alice", recipe.ID, visibility.Private)
	require.NoError(t, err)
	assert.Equal(t, visibility.Private, updated.Resolved())
	assert.False(t, updated.IsPublic)
	assert.True(t, updated.SharedAt.IsZero(), "sharedAt must be cleared on unshare")
	assertIndexInvariant(t, fs)
}

func TestUnlistedRecipeIsAccessibleNotDiscoverable(t *testing.T) {
	fs := newFakeStore()
	syncer, _ := newTestSyncer(fs)
	recipe := createTestRecipe(t, syncer, "alice", "stew")

	_, err := syncer.SetRecipeVisibility("alice", recipe.ID, visibility.Unlisted)
	require.NoError(t, err)
	assertIndexInvariant(t, fs)
	assert.Contains(t, fs.accessible, recipe.ID)
	assert.NotContains(t, fs.public, recipe.ID)
}

func TestSetVisibilityIdempotent(t *testing.T) {
	fs := newFakeStore()
	syncer, _ := newTestSyncer(fs)
	recipe := createTestRecipe(t, syncer, "alice", "soup")

	first, err := syncer.SetRecipeVisibility("alice", recipe.ID, visibility.Public)
	require.NoError(t, err)
	accessibleAfterFirst := fs.accessible[recipe.ID]
	publicAfterFirst := fs.public[recipe.ID]

	second, err := syncer.SetRecipeVisibility("alice", recipe.ID, visibility.Public)
	require.NoError(t, err)
	assert.Equal(t, first.SharedAt, second.SharedAt, "sharedAt must not move on a no-op")
	assert.Equal(t, accessibleAfterFirst, fs.accessible[recipe.ID])
	assert.Equal(t, publicAfterFirst, fs.public[recipe.ID])
	assertIndexInvariant(t, fs)
}

func TestDowngradePublicToUnlistedKeepsSharedAt(t *testing.T) {
	fs := newFakeStore()
	syncer, _ := newTestSyncer(fs)
	recipe := createTestRecipe(t, syncer, "alice", "pie")

	shared, err := syncer.SetRecipeVisibility("alice", recipe.ID, visibility.Public)
	require.NoError(t, err)
	unlisted, err := syncer.SetRecipeVisibility("alice", recipe.ID, visibility.Unlisted)
	require.NoError(t, err)
	assert.Equal(t, shared.SharedAt, unlisted.SharedAt,
		"moving between accessible tiers must not reset sharedAt")
	assertIndexInvariant(t, fs)
}

func TestSetVisibilityErrors(t *testing.T) {
	fs := newFakeStore()
	syncer, _ := newTestSyncer(fs)
	recipe := createTestRecipe(t, syncer, "alice", "cake")

	cases := []struct {
		name        string
		callerID    string
		recipeID    string
		vis         visibility.Visibility
		expectedErr error
	}{
		{
			name:        "anonymous caller",
			callerID:    "",
			recipeID:    recipe.ID,
			vis:         visibility.Public,
			expectedErr: recipeauth.ErrNotSignedIn,
		},
		{
			name:        "missing recipe",
			callerID:    "alice",
			recipeID:    "gone",
			vis:         visibility.Public,
			expectedErr: recipeauth.ErrNotFound,
		},
		{
			name:        "unknown tier",
			callerID:    "alice",
			recipeID:    recipe.ID,
			vis:         "friends-only",
			expectedErr: ErrInvalidVisibility,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := syncer.SetRecipeVisibility(tc.callerID, tc.recipeID, tc.vis)
			assert.True(t, errors.Is(err, tc.expectedErr), "got %v, want %v", err, tc.expectedErr)
			assertIndexInvariant(t, fs)
		})
	}
}

func TestDeleteRecipeRemovesIndexEntries(t *testing.T) {
	fs := newFakeStore()
	syncer, _ := newTestSyncer(fs)
	recipe := createTestRecipe(t, syncer, "alice", "tacos")
	_, err := syncer.SetRecipeVisibility("alice", recipe.ID, visibility.Public)
	require.NoError(t, err)

	require.NoError(t, syncer.DeleteRecipe("alice", recipe.ID))
	assert.NotContains(t, fs.recipes["alice"], recipe.ID)
	assert.NotContains(t, fs.accessible, recipe.ID)
	assert.NotContains(t, fs.public, recipe.ID)
}

func TestPartialSyncFailurePublishesRepairEvent(t *testing.T) {
	fs := newFakeStore()
	syncer, repair := newTestSyncer(fs)
	recipe := createTestRecipe(t, syncer, "alice", "bread")

	// The accessible upsert commits, then the public upsert fails.
	fs.failOn["UpsertPublicEntry"] = errors.New("backing store unavailable")
	_, err := syncer.SetRecipeVisibility("alice", recipe.ID, visibility.Public)
	require.Error(t, err)
	require.Len(t, repair.events, 1)
	assert.Equal(t, recipe.ID, repair.events[0].RecipeID)
	assert.Equal(t, "upsert public entry", repair.events[0].Step)

	// The owning document never caught up: the stored recipe still resolves
	// private, and the dangling accessible entry is the documented safe
	// failure direction.
	stored := fs.recipes["alice"][recipe.ID]
	assert.Equal(t, visibility.Private, stored.Resolved())
	assert.Contains(t, fs.accessible, recipe.ID)
}

func TestFirstStepFailurePublishesNoRepairEvent(t *testing.T) {
	fs := newFakeStore()
	syncer, repair := newTestSyncer(fs)
	recipe := createTestRecipe(t, syncer, "alice", "salad")

	fs.failOn["UpsertAccessibleEntry"] = errors.New("backing store unavailable")
	_, err := syncer.SetRecipeVisibility("alice", recipe.ID, visibility.Public)
	require.Error(t, err)
	assert.Empty(t, repair.events, "nothing committed, nothing to repair")
	assertIndexInvariant(t, fs)
}

func TestAddRecipeElevatesToCollectionTier(t *testing.T) {
	fs := newFakeStore()
	syncer, _ := newTestSyncer(fs)
	recipe := createTestRecipe(t, syncer, "alice", "ramen")
	col, err := syncer.CreateCollection("alice", "weeknight")
	require.NoError(t, err)
	_, err = syncer.SetCollectionVisibility("alice", col.ID, visibility.Public)
	require.NoError(t, err)

	result, err := syncer.AddRecipeToCollection("alice", col.ID, recipe.ID)
	require.NoError(t, err)
	assert.True(t, result.RecipeVisibilityChanged)
	assert.Equal(t, visibility.Public, result.NewVisibility)

	stored := fs.recipes["alice"][recipe.ID]
	assert.Equal(t, visibility.Public, stored.Resolved())
	assert.Equal(t, []string{recipe.ID}, fs.cols[col.ID].RecipeIDs)
	assertIndexInvariant(t, fs)
}

func TestAddRecipeNeverDemotes(t *testing.T) {
	fs := newFakeStore()
	syncer, _ := newTestSyncer(fs)
	recipe := createTestRecipe(t, syncer, "alice", "curry")
	_, err := syncer.SetRecipeVisibility("alice", recipe.ID, visibility.Public)
	require.NoError(t, err)
	col, err := syncer.CreateCollection("alice", "drafts")
	require.NoError(t, err)
	_, err = syncer.SetCollectionVisibility("alice", col.ID, visibility.Unlisted)
	require.NoError(t, err)

	result, err := syncer.AddRecipeToCollection("alice", col.ID, recipe.ID)
	require.NoError(t, err)
	assert.False(t, result.RecipeVisibilityChanged)
	stored := fs.recipes["alice"][recipe.ID]
	assert.Equal(t, visibility.Public, stored.Resolved(), "already public recipe must stay public")
}

func TestAddRecipeToPrivateCollectionSkipsElevation(t *testing.T) {
	fs := newFakeStore()
	syncer, _ := newTestSyncer(fs)
	recipe := createTestRecipe(t, syncer, "alice", "toast")
	col, err := syncer.CreateCollection("alice", "private stash")
	require.NoError(t, err)

	result, err := syncer.AddRecipeToCollection("alice", col.ID, recipe.ID)
	require.NoError(t, err)
	assert.False(t, result.RecipeVisibilityChanged)
	stored := fs.recipes["alice"][recipe.ID]
	assert.Equal(t, visibility.Private, stored.Resolved())
	assertIndexInvariant(t, fs)
}

func TestAddExistingMemberIsNoOp(t *testing.T) {
	fs := newFakeStore()
	syncer, _ := newTestSyncer(fs)
	recipe := createTestRecipe(t, syncer, "alice", "pasta")
	col, err := syncer.CreateCollection("alice", "favorites")
	require.NoError(t, err)
	_, err = syncer.AddRecipeToCollection("alice", col.ID, recipe.ID)
	require.NoError(t, err)
	_, err = syncer.SetCollectionVisibility("alice", col.ID, visibility.Public)
	require.NoError(t, err)

	// Re-adding must neither duplicate the member nor run the elevation
	// check, even though the collection is now public.
	result, err := syncer.AddRecipeToCollection("alice", col.ID, recipe.ID)
	require.NoError(t, err)
	assert.False(t, result.RecipeVisibilityChanged)
	assert.Equal(t, []string{recipe.ID}, fs.cols[col.ID].RecipeIDs)
	stored := fs.recipes["alice"][recipe.ID]
	assert.Equal(t, visibility.Private, stored.Resolved())
}

func TestAddOtherOwnersRecipeReferencesWithoutElevation(t *testing.T) {
	fs := newFakeStore()
	syncer, _ := newTestSyncer(fs)
	recipe := createTestRecipe(t, syncer, "bob", "gumbo")
	_, err := syncer.SetRecipeVisibility("bob", recipe.ID, visibility.Unlisted)
	require.NoError(t, err)
	col, err := syncer.CreateCollection("alice", "borrowed")
	require.NoError(t, err)
	_, err = syncer.SetCollectionVisibility("alice", col.ID, visibility.Public)
	require.NoError(t, err)

	result, err := syncer.AddRecipeToCollection("alice", col.ID, recipe.ID)
	require.NoError(t, err)
	assert.False(t, result.RecipeVisibilityChanged, "no write path to another owner's recipe")
	assert.Equal(t, []string{recipe.ID}, fs.cols[col.ID].RecipeIDs)
	stored := fs.recipes["bob"][recipe.ID]
	assert.Equal(t, visibility.Unlisted, stored.Resolved())
}

func TestCollectionMutationsRequireOwnership(t *testing.T) {
	fs := newFakeStore()
	syncer, _ := newTestSyncer(fs)
	col, err := syncer.CreateCollection("alice", "mine")
	require.NoError(t, err)

	cases := []struct {
		name string
		run  func() error
	}{
		{"rename", func() error {
			_, err := syncer.RenameCollection("mallory", col.ID, "stolen")
			return err
		}},
		{"set visibility", func() error {
			_, err := syncer.SetCollectionVisibility("mallory", col.ID, visibility.Public)
			return err
		}},
		{"add recipe", func() error {
			_, err := syncer.AddRecipeToCollection("mallory", col.ID, "r1")
			return err
		}},
		{"remove recipe", func() error {
			_, err := syncer.RemoveRecipeFromCollection("mallory", col.ID, "r1")
			return err
		}},
		{"reorder", func() error {
			_, err := syncer.ReorderCollection("mallory", col.ID, nil)
			return err
		}},
		{"delete", func() error {
			return syncer.DeleteCollection("mallory", col.ID)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			assert.True(t, errors.Is(err, recipeauth.ErrNotAuthorized), "got %v", err)
			// Re-read to confirm the document is unmodified.
			stored := fs.cols[col.ID]
			assert.Equal(t, "mine", stored.Name)
			assert.Equal(t, visibility.Private, stored.Resolved())
			assert.Empty(t, stored.RecipeIDs)
		})
	}
}

func TestReorderCollection(t *testing.T) {
	fs := newFakeStore()
	syncer, _ := newTestSyncer(fs)
	col, err := syncer.CreateCollection("alice", "ordered")
	require.NoError(t, err)
	for _, id := range []string{"r1", "r2", "r3"} {
		_, err := syncer.AddRecipeToCollection("alice", col.ID, id)
		require.NoError(t, err)
	}

	cases := []struct {
		name        string
		order       []string
		expectedErr error
	}{
		{"valid permutation", []string{"r3", "r1", "r2"}, nil},
		{"missing member", []string{"r3", "r1"}, ErrInvalidOrder},
		{"duplicate member", []string{"r3", "r3", "r1"}, ErrInvalidOrder},
		{"unknown member", []string{"r3", "r1", "r4"}, ErrInvalidOrder},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := syncer.ReorderCollection("alice", col.ID, tc.order)
			if tc.expectedErr == nil {
				require.NoError(t, err)
				assert.Equal(t, tc.order, fs.cols[col.ID].RecipeIDs)
			} else {
				assert.True(t, errors.Is(err, tc.expectedErr), "got %v", err)
			}
		})
	}
}

func TestPublicCollectionsContainingRecipe(t *testing.T) {
	fs := newFakeStore()
	syncer, _ := newTestSyncer(fs)
	recipe := createTestRecipe(t, syncer, "alice", "chili")
	_, err := syncer.SetRecipeVisibility("alice", recipe.ID, visibility.Public)
	require.NoError(t, err)

	// Two discoverable collections referencing the recipe: one on the
	// current schema, one legacy-only. A private one and a legacy match
	// whose resolved tier is not public must both be excluded.
	fs.cols["current"] = collections.Collection{
		ID: "current", OwnerID: "alice", Visibility: visibility.Public,
		IsPublic: true, RecipeIDs: []string{recipe.ID},
	}
	fs.cols["legacy"] = collections.Collection{
		ID: "legacy", OwnerID: "alice", IsPublic: true, RecipeIDs: []string{recipe.ID},
	}
	fs.cols["hidden"] = collections.Collection{
		ID: "hidden", OwnerID: "alice", Visibility: visibility.Private,
		RecipeIDs: []string{recipe.ID},
	}
	fs.cols["legacyUnlisted"] = collections.Collection{
		ID: "legacyUnlisted", OwnerID: "alice", Visibility: visibility.Unlisted,
		IsPublic: true, RecipeIDs: []string{recipe.ID},
	}

	affected, err := syncer.PublicCollectionsContainingRecipe(recipe.ID)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, col := range affected {
		ids[col.ID] = true
	}
	assert.Equal(t, map[string]bool{"current": true, "legacy": true}, ids)

	// Confirming the demotion proceeds regardless of the memberships, and
	// no cascaded removal happens.
	_, err = syncer.SetRecipeVisibility("alice", recipe.ID, visibility.Private)
	require.NoError(t, err)
	assert.Contains(t, fs.cols["current"].RecipeIDs, recipe.ID)
	assert.Contains(t, fs.cols["legacy"].RecipeIDs, recipe.ID)
	assertIndexInvariant(t, fs)
}

func TestRemoveRecipeFromCollection(t *testing.T) {
	fs := newFakeStore()
	syncer, _ := newTestSyncer(fs)
	col, err := syncer.CreateCollection("alice", "trimmed")
	require.NoError(t, err)
	for _, id := range []string{"r1", "r2"} {
		_, err := syncer.AddRecipeToCollection("alice", col.ID, id)
		require.NoError(t, err)
	}

	updated, err := syncer.RemoveRecipeFromCollection("alice", col.ID, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, updated.RecipeIDs)

	// Removing a non-member is a no-op.
	updated, err = syncer.RemoveRecipeFromCollection("alice", col.ID, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, updated.RecipeIDs)
}
