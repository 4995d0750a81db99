// Package storage is the typed Firestore adapter for the server's document
// kinds: per-user recipes and settings, globally addressable collections, and
// the two denormalized recipe indexes.
package storage

import (
	"context"

	log "recipeserver/cloudlog"
	"recipeserver/collections"
	"recipeserver/config"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"firebase.google.com/go/auth"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Condition is a single predicate of a Firestore query.
type Condition struct {
	Path  string
	Op    string
	Value interface{}
}

// Store wraps a Firestore client with typed accessors for the server's
// document kinds. Construct with New and pass it to the services; consumers
// declare narrow interfaces over it for testing.
type Store struct {
	app    *firebase.App
	auth   *auth.Client
	client *firestore.Client
}

// New connects to Firestore and Firebase Auth for the configured project.
func New(ctx context.Context, cfg *config.Config) (*Store, error) {
	app, err := firebase.NewApp(ctx, nil)
	if err != nil {
		return nil, err
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, err
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	return &Store{app: app, auth: authClient, client: client}, nil
}

// NewWithClient wraps an existing Firestore client. Used by tests running
// against the emulator, which have no Firebase App.
func NewWithClient(client *firestore.Client) *Store {
	return &Store{client: client}
}

// Close performs cleanup for closing storage connections.
func (s *Store) Close() {
	s.client.Close()
}

// VerifyIDToken decodes a Firebase ID token into the caller's user ID.
func (s *Store) VerifyIDToken(idToken string) (string, error) {
	token, err := s.auth.VerifyIDToken(context.Background(), idToken)
	if err != nil {
		return "", err
	}
	return token.UID, nil
}

// RecipeRef gives the document reference of a recipe in its owner's space.
func (s *Store) RecipeRef(ownerID, recipeID string) *firestore.DocumentRef {
	return s.client.Collection(collections.UsersID).Doc(ownerID).
		Collection(collections.RecipesID).Doc(recipeID)
}

// CollectionRef gives the document reference of a collection.
func (s *Store) CollectionRef(collectionID string) *firestore.DocumentRef {
	return s.client.Collection(collections.CollectionsID).Doc(collectionID)
}

// SettingsRef gives the document reference of a user's preferences blob.
func (s *Store) SettingsRef(ownerID string) *firestore.DocumentRef {
	return s.client.Collection(collections.UsersID).Doc(ownerID).
		Collection(collections.SettingsID).Doc(collections.PreferencesDocID)
}

// getInto fetches docRef into dataTo. It silences a codes.NotFound error
// because that info is reflected in the bool return.
func (s *Store) getInto(docRef *firestore.DocumentRef, dataTo interface{}) (bool, error) {
	snapshot, err := docRef.Get(context.Background())
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, err
	}
	if !snapshot.Exists() {
		return false, nil
	}
	return true, snapshot.DataTo(dataTo)
}

// Recipe fetches a recipe from its owner's space. A missing document gives
// (nil, nil).
func (s *Store) Recipe(ownerID, recipeID string) (*collections.Recipe, error) {
	recipe := &collections.Recipe{}
	exists, err := s.getInto(s.RecipeRef(ownerID, recipeID), recipe)
	if err != nil || !exists {
		return nil, err
	}
	recipe.ID = recipeID
	recipe.OwnerID = ownerID
	return recipe, nil
}

// SetRecipe writes the full recipe document. Firestore offers no partial
// merge for the paths used here; the whole document is last-write-wins.
func (s *Store) SetRecipe(ownerID string, recipe *collections.Recipe) error {
	_, err := s.RecipeRef(ownerID, recipe.ID).Set(context.Background(), recipe)
	return err
}

// NewRecipeID reserves a random document ID for a new recipe.
func (s *Store) NewRecipeID(ownerID string) string {
	return s.client.Collection(collections.UsersID).Doc(ownerID).
		Collection(collections.RecipesID).NewDoc().ID
}

// DeleteRecipe removes the recipe document. Deleting a missing document is
// not an error.
func (s *Store) DeleteRecipe(ownerID, recipeID string) error {
	_, err := s.RecipeRef(ownerID, recipeID).Delete(context.Background())
	return err
}

// Collection fetches a collection by ID. A missing document gives (nil, nil).
func (s *Store) Collection(collectionID string) (*collections.Collection, error) {
	col := &collections.Collection{}
	exists, err := s.getInto(s.CollectionRef(collectionID), col)
	if err != nil || !exists {
		return nil, err
	}
	col.ID = collectionID
	return col, nil
}

// CreateCollection creates the collection under a fresh random document ID
// and returns that ID.
func (s *Store) CreateCollection(col *collections.Collection) (string, error) {
	docRef := s.client.Collection(collections.CollectionsID).NewDoc()
	col.ID = docRef.ID
	_, err := docRef.Create(context.Background(), col)
	return docRef.ID, err
}

// SetCollection writes the full collection document, including the member
// array. Concurrent writers are last-write-wins on the whole array.
func (s *Store) SetCollection(col *collections.Collection) error {
	_, err := s.CollectionRef(col.ID).Set(context.Background(), col)
	return err
}

// DeleteCollection removes the collection document.
func (s *Store) DeleteCollection(collectionID string) error {
	_, err := s.CollectionRef(collectionID).Delete(context.Background())
	return err
}

// CollectionsWhere runs a predicate query over the collections collection
// and decodes the matches. Decode failures skip the document rather than
// failing the query.
func (s *Store) CollectionsWhere(conds []Condition, limit int) ([]collections.Collection, error) {
	query := s.client.Collection(collections.CollectionsID).Query
	for _, cond := range conds {
		query = query.Where(cond.Path, cond.Op, cond.Value)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	iter := query.Documents(context.Background())
	results := []collections.Collection{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		col := collections.Collection{}
		if err := doc.DataTo(&col); err != nil {
			log.Printf("skipping undecodable collection %s: %s", doc.Ref.ID, err.Error())
			continue
		}
		col.ID = doc.Ref.ID
		results = append(results, col)
	}
	return results, nil
}

// AccessibleEntry fetches the accessible index entry for a recipe. A missing
// entry gives (nil, nil); the recipe is simply not accessible.
func (s *Store) AccessibleEntry(recipeID string) (*collections.AccessibleRecipeEntry, error) {
	entry := &collections.AccessibleRecipeEntry{}
	ref := s.client.Collection(collections.AccessibleIndexID).Doc(recipeID)
	exists, err := s.getInto(ref, entry)
	if err != nil || !exists {
		return nil, err
	}
	return entry, nil
}

// UpsertAccessibleEntry writes the accessible index entry, keyed by the
// recipe ID so repeated syncs overwrite in place.
func (s *Store) UpsertAccessibleEntry(entry *collections.AccessibleRecipeEntry) error {
	ref := s.client.Collection(collections.AccessibleIndexID).Doc(entry.RecipeID)
	_, err := ref.Set(context.Background(), entry)
	return err
}

// DeleteAccessibleEntry removes the accessible index entry. Deleting a
// missing entry is not an error, which keeps the sync idempotent.
func (s *Store) DeleteAccessibleEntry(recipeID string) error {
	ref := s.client.Collection(collections.AccessibleIndexID).Doc(recipeID)
	_, err := ref.Delete(context.Background())
	return err
}

// UpsertPublicEntry writes the public index entry, keyed by the recipe ID.
func (s *Store) UpsertPublicEntry(entry *collections.PublicRecipeEntry) error {
	ref := s.client.Collection(collections.PublicIndexID).Doc(entry.RecipeID)
	_, err := ref.Set(context.Background(), entry)
	return err
}

// DeletePublicEntry removes the public index entry.
func (s *Store) DeletePublicEntry(recipeID string) error {
	ref := s.client.Collection(collections.PublicIndexID).Doc(recipeID)
	_, err := ref.Delete(context.Background())
	return err
}

// PublicEntries lists public index entries ordered by the given field
// descending, up to limit.
func (s *Store) PublicEntries(orderBy string, limit int) ([]collections.PublicRecipeEntry, error) {
	iter := s.client.Collection(collections.PublicIndexID).
		OrderBy(orderBy, firestore.Desc).
		Limit(limit).
		Documents(context.Background())
	entries := []collections.PublicRecipeEntry{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		entry := collections.PublicRecipeEntry{}
		if err := doc.DataTo(&entry); err != nil {
			log.Printf("skipping undecodable index entry %s: %s", doc.Ref.ID, err.Error())
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Increment atomically adds n to a numeric field of the given document.
func (s *Store) Increment(docRef *firestore.DocumentRef, fieldPath string, n int64) error {
	update := firestore.Update{
		Path:  fieldPath,
		Value: firestore.Increment(n),
	}
	_, err := docRef.Update(context.Background(), []firestore.Update{update})
	return err
}

// IncrementRecipeCounter bumps a counter field on the recipe document.
func (s *Store) IncrementRecipeCounter(ownerID, recipeID, fieldPath string) error {
	return s.Increment(s.RecipeRef(ownerID, recipeID), fieldPath, 1)
}

// IncrementPublicEntryViews bumps the popularity sort key on the public index
// entry. The entry may have been removed since the viewer loaded the recipe;
// that NotFound is silenced because the counter is best-effort.
func (s *Store) IncrementPublicEntryViews(recipeID string) error {
	ref := s.client.Collection(collections.PublicIndexID).Doc(recipeID)
	err := s.Increment(ref, collections.IndexViewsKey, 1)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

// IncrementCollectionCounter bumps a counter field on the collection document.
func (s *Store) IncrementCollectionCounter(collectionID, fieldPath string) error {
	return s.Increment(s.CollectionRef(collectionID), fieldPath, 1)
}

// Settings fetches a user's preferences blob. A missing document gives the
// zero value, not an error.
func (s *Store) Settings(ownerID string) (*collections.UserSettings, error) {
	settings := &collections.UserSettings{}
	_, err := s.getInto(s.SettingsRef(ownerID), settings)
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// SetSettings writes a user's preferences blob.
func (s *Store) SetSettings(ownerID string, settings *collections.UserSettings) error {
	_, err := s.SettingsRef(ownerID).Set(context.Background(), settings)
	return err
}

// WatchRecipe attaches a snapshot listener to a recipe document.
func (s *Store) WatchRecipe(ctx context.Context, ownerID, recipeID string, callback func(data map[string]interface{}, exists bool)) {
	s.WatchDoc(ctx, s.RecipeRef(ownerID, recipeID), callback)
}

// WatchCollection attaches a snapshot listener to a collection document.
func (s *Store) WatchCollection(ctx context.Context, collectionID string, callback func(data map[string]interface{}, exists bool)) {
	s.WatchDoc(ctx, s.CollectionRef(collectionID), callback)
}

// WatchSettings attaches a snapshot listener to a user's preferences blob.
func (s *Store) WatchSettings(ctx context.Context, ownerID string, callback func(data map[string]interface{}, exists bool)) {
	s.WatchDoc(ctx, s.SettingsRef(ownerID), callback)
}

// WatchDoc attaches a snapshot listener to the document and invokes callback
// with each decoded snapshot's raw data until ctx is cancelled. Only owning
// documents are watched; the indexes are read on demand, never subscribed to.
func (s *Store) WatchDoc(ctx context.Context, docRef *firestore.DocumentRef, callback func(data map[string]interface{}, exists bool)) {
	snapshots := docRef.Snapshots(ctx)
	defer snapshots.Stop()
	for {
		snapshot, err := snapshots.Next()
		if err != nil {
			if status.Code(err) != codes.Canceled {
				log.Printf("snapshot listener for %s stopped: %s", docRef.Path, err.Error())
			}
			return
		}
		if !snapshot.Exists() {
			callback(nil, false)
			continue
		}
		callback(snapshot.Data(), true)
	}
}
