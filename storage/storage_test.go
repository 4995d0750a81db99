package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"recipeserver/collections"
	testutils "recipeserver/testing"
	"recipeserver/visibility"
)

// emulatorStore connects to the local Firestore emulator, skipping the test
// when none is configured.
func emulatorStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	client := testutils.NewFirestoreTestClient(context.Background())
	store := NewWithClient(client)
	t.Cleanup(store.Close)
	return store
}

func TestRecipeRoundTrip(t *testing.T) {
	store := emulatorStore(t)

	recipeID := store.NewRecipeID("alice")
	recipe := &collections.Recipe{
		ID:         recipeID,
		OwnerID:    "alice",
		Title:      "carbonara",
		Visibility: visibility.Unlisted,
		IsPublic:   true,
		UpdatedAt:  time.Now(),
	}
	if err := store.SetRecipe("alice", recipe); err != nil {
		t.Fatalf("SetRecipe gave error %v", err)
	}

	fetched, err := store.Recipe("alice", recipeID)
	if err != nil {
		t.Fatalf("Recipe gave error %v", err)
	}
	if fetched == nil {
		t.Fatal("Recipe gave nil for an existing document")
	}
	if fetched.Title != "carbonara" || fetched.Resolved() != visibility.Unlisted {
		t.Errorf("Recipe gave %+v", fetched)
	}

	if err := store.DeleteRecipe("alice", recipeID); err != nil {
		t.Fatalf("DeleteRecipe gave error %v", err)
	}
	fetched, err = store.Recipe("alice", recipeID)
	if err != nil {
		t.Fatalf("Recipe after delete gave error %v", err)
	}
	if fetched != nil {
		t.Error("Recipe gave a document after deletion")
	}
}

func TestMissingDocumentsGiveNil(t *testing.T) {
	store := emulatorStore(t)

	recipe, err := store.Recipe("alice", "never-written")
	if err != nil || recipe != nil {
		t.Errorf("Recipe gave (%v, %v) for a missing document", recipe, err)
	}
	col, err := store.Collection("never-written")
	if err != nil || col != nil {
		t.Errorf("Collection gave (%v, %v) for a missing document", col, err)
	}
	entry, err := store.AccessibleEntry("never-written")
	if err != nil || entry != nil {
		t.Errorf("AccessibleEntry gave (%v, %v) for a missing entry", entry, err)
	}
}

func TestIndexEntryLifecycle(t *testing.T) {
	store := emulatorStore(t)

	entry := &collections.AccessibleRecipeEntry{
		RecipeID:   "r-index-test",
		OwnerID:    "alice",
		Visibility: visibility.Public,
		UpdatedAt:  time.Now(),
	}
	if err := store.UpsertAccessibleEntry(entry); err != nil {
		t.Fatalf("UpsertAccessibleEntry gave error %v", err)
	}
	// Upserting again overwrites in place.
	entry.Visibility = visibility.Unlisted
	if err := store.UpsertAccessibleEntry(entry); err != nil {
		t.Fatalf("second UpsertAccessibleEntry gave error %v", err)
	}
	fetched, err := store.AccessibleEntry("r-index-test")
	if err != nil {
		t.Fatalf("AccessibleEntry gave error %v", err)
	}
	if fetched == nil || fetched.Visibility != visibility.Unlisted {
		t.Errorf("AccessibleEntry gave %+v", fetched)
	}

	if err := store.DeleteAccessibleEntry("r-index-test"); err != nil {
		t.Fatalf("DeleteAccessibleEntry gave error %v", err)
	}
	// Deleting an absent entry must stay idempotent.
	if err := store.DeleteAccessibleEntry("r-index-test"); err != nil {
		t.Errorf("repeated DeleteAccessibleEntry gave error %v", err)
	}
}

func TestCollectionsWherePredicates(t *testing.T) {
	store := emulatorStore(t)

	cols := []*collections.Collection{
		{OwnerID: "alice", Name: "shared", Visibility: visibility.Public,
			IsPublic: true, RecipeIDs: []string{"r-where-test"}},
		{OwnerID: "alice", Name: "hidden", Visibility: visibility.Private,
			RecipeIDs: []string{"r-where-test"}},
	}
	for _, col := range cols {
		if _, err := store.CreateCollection(col); err != nil {
			t.Fatalf("CreateCollection gave error %v", err)
		}
		defer store.DeleteCollection(col.ID)
	}

	matches, err := store.CollectionsWhere([]Condition{
		{Path: collections.RecipeIDsKey, Op: "array-contains", Value: "r-where-test"},
		{Path: collections.VisibilityKey, Op: "==", Value: string(visibility.Public)},
	}, 0)
	if err != nil {
		t.Fatalf("CollectionsWhere gave error %v", err)
	}
	if len(matches) != 1 || matches[0].Name != "shared" {
		t.Errorf("CollectionsWhere gave %+v", matches)
	}
}

func TestIncrementCounters(t *testing.T) {
	store := emulatorStore(t)

	recipeID := store.NewRecipeID("alice")
	recipe := &collections.Recipe{ID: recipeID, OwnerID: "alice", Title: "counted"}
	if err := store.SetRecipe("alice", recipe); err != nil {
		t.Fatalf("SetRecipe gave error %v", err)
	}
	defer store.DeleteRecipe("alice", recipeID)

	for i := 0; i < 3; i++ {
		if err := store.IncrementRecipeCounter("alice", recipeID, collections.RecipeViewsKey); err != nil {
			t.Fatalf("IncrementRecipeCounter gave error %v", err)
		}
	}
	fetched, err := store.Recipe("alice", recipeID)
	if err != nil || fetched == nil {
		t.Fatalf("Recipe gave (%v, %v)", fetched, err)
	}
	if fetched.ShareStats.Views != 3 {
		t.Errorf("views counter is %d, want 3", fetched.ShareStats.Views)
	}

	// The index entry was never created; the best-effort bump must silence
	// the miss.
	if err := store.IncrementPublicEntryViews(recipeID); err != nil {
		t.Errorf("IncrementPublicEntryViews on a missing entry gave error %v", err)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	store := emulatorStore(t)

	// A never-written blob reads as the zero value.
	settings, err := store.Settings("settings-test-user")
	if err != nil {
		t.Fatalf("Settings gave error %v", err)
	}
	if settings.MeasurementSystem != "" {
		t.Errorf("fresh Settings gave %+v", settings)
	}

	settings.MeasurementSystem = "metric"
	settings.DefaultServings = 4
	if err := store.SetSettings("settings-test-user", settings); err != nil {
		t.Fatalf("SetSettings gave error %v", err)
	}
	fetched, err := store.Settings("settings-test-user")
	if err != nil {
		t.Fatalf("Settings gave error %v", err)
	}
	if fetched.MeasurementSystem != "metric" || fetched.DefaultServings != 4 {
		t.Errorf("Settings gave %+v", fetched)
	}
}
