// Package discovery serves the non-owner read paths: resolving a
// collection's member recipes for a viewer, and the paginated feeds of
// publicly discoverable recipes and collections. Viewers hold no listing
// privileges on other users' document spaces; everything here resolves
// through single-document gets on the indexes, or through the capped
// predicate queries on the shared collections collection.
package discovery

import (
	"sort"
	"sync"

	log "recipeserver/cloudlog"
	"recipeserver/collections"
	"recipeserver/storage"
	"recipeserver/visibility"
)

const (
	// fetchChunkSize bounds concurrent in-flight gets when resolving a
	// collection's members. 30 matches the backing store's batch query
	// ceiling, reused here as a concurrency bound.
	fetchChunkSize = 30
	// collectionFetchCeiling caps each discovery predicate query. Once the
	// merged discoverable set exceeds this, pagination degrades; a known
	// scaling limit of the two-query client-sort design.
	collectionFetchCeiling = 100
)

// SortField selects the feed ordering. All feeds sort descending.
type SortField string

const (
	// SortByRecency orders by share/update time, newest first.
	SortByRecency SortField = "recency"
	// SortByPopularity orders by view count, highest first.
	SortByPopularity SortField = "popularity"
)

type datastore interface {
	AccessibleEntry(recipeID string) (*collections.AccessibleRecipeEntry, error)
	Recipe(ownerID, recipeID string) (*collections.Recipe, error)
	PublicEntries(orderBy string, limit int) ([]collections.PublicRecipeEntry, error)
	CollectionsWhere(conds []storage.Condition, limit int) ([]collections.Collection, error)
}

// Fetcher resolves recipes and collections for viewers who are not their
// owners, including anonymous viewers.
type Fetcher struct {
	db datastore
}

// NewFetcher gives a Fetcher over the datastore.
func NewFetcher(db datastore) *Fetcher {
	return &Fetcher{db: db}
}

// RecipePage is one page of a discoverable recipe feed.
type RecipePage struct {
	Recipes []*collections.Recipe `json:"recipes"`
	HasMore bool                  `json:"hasMore"`
}

// CollectionPage is one page of the discoverable collection feed.
type CollectionPage struct {
	Collections []collections.Collection `json:"collections"`
	HasMore     bool                     `json:"hasMore"`
}

// ResolveAccessible resolves a single recipe through the accessible index: a
// get on the index entry, then a get on the owning document it points at.
// Any miss along the way (no entry, entry pointing at a deleted document, a
// document that resolved back to private before its entry was removed) gives
// nil, never an error; stale index state is expected, not exceptional.
func (f *Fetcher) ResolveAccessible(recipeID string) *collections.Recipe {
	entry, err := f.db.AccessibleEntry(recipeID)
	if err != nil {
		log.Printf("accessible entry lookup for %s failed: %s", recipeID, err.Error())
		return nil
	}
	if entry == nil {
		return nil
	}
	recipe, err := f.db.Recipe(entry.OwnerID, recipeID)
	if err != nil {
		log.Printf("recipe fetch for %s failed: %s", recipeID, err.Error())
		return nil
	}
	if recipe == nil || !visibility.IsAccessible(recipe.Resolved()) {
		return nil
	}
	return recipe
}

// CollectionRecipes resolves the full content of a collection's member
// recipes for a viewer. Members resolve in chunks of fetchChunkSize, all
// gets within a chunk concurrent and chunks sequential. Missing or
// inaccessible members are silently absent from the result, which otherwise
// preserves the collection's declared order.
func (f *Fetcher) CollectionRecipes(col *collections.Collection) []*collections.Recipe {
	resolved := make([]*collections.Recipe, len(col.RecipeIDs))
	for start := 0; start < len(col.RecipeIDs); start += fetchChunkSize {
		end := start + fetchChunkSize
		if end > len(col.RecipeIDs) {
			end = len(col.RecipeIDs)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				resolved[i] = f.ResolveAccessible(col.RecipeIDs[i])
			}(i)
		}
		wg.Wait()
	}
	recipes := []*collections.Recipe{}
	for _, recipe := range resolved {
		if recipe != nil {
			recipes = append(recipes, recipe)
		}
	}
	return recipes
}

// PublicRecipes gives one page of the discoverable recipe feed. The index
// query fetches pageSize+1 entries to compute HasMore without a count query;
// entries whose target no longer resolves are dropped, so a page may come
// back shorter than requested. A failed index query degrades to an empty
// page rather than an error.
func (f *Fetcher) PublicRecipes(sortBy SortField, pageSize int) *RecipePage {
	orderBy := collections.SharedAtKey
	if sortBy == SortByPopularity {
		orderBy = collections.IndexViewsKey
	}
	entries, err := f.db.PublicEntries(orderBy, pageSize+1)
	if err != nil {
		log.Printf("public recipe feed query failed: %s", err.Error())
		return &RecipePage{Recipes: []*collections.Recipe{}}
	}
	hasMore := len(entries) > pageSize
	if hasMore {
		entries = entries[:pageSize]
	}
	recipes := []*collections.Recipe{}
	for _, entry := range entries {
		if recipe := f.ResolveAccessible(entry.RecipeID); recipe != nil {
			recipes = append(recipes, recipe)
		}
	}
	return &RecipePage{Recipes: recipes, HasMore: hasMore}
}

// PublicCollections gives one page of the discoverable collection feed. No
// durable index exists for collections; two predicate queries (current
// visibility schema and legacy isPublic schema) run in parallel, each capped
// at collectionFetchCeiling, then merge by ID with current-schema
// precedence, re-filter through the resolved tier, sort client-side and
// slice. A failed query contributes an empty side instead of failing the
// feed.
func (f *Fetcher) PublicCollections(sortBy SortField, pageSize int) *CollectionPage {
	var wg sync.WaitGroup
	var current, legacy []collections.Collection
	wg.Add(2)
	go func() {
		defer wg.Done()
		current = f.collectionsMatching(storage.Condition{
			Path: collections.VisibilityKey, Op: "==", Value: string(visibility.Public),
		})
	}()
	go func() {
		defer wg.Done()
		legacy = f.collectionsMatching(storage.Condition{
			Path: collections.IsPublicKey, Op: "==", Value: true,
		})
	}()
	wg.Wait()

	merged := collections.MergeByID(current, legacy)
	discoverable := merged[:0]
	for _, col := range merged {
		if visibility.IsDiscoverable(col.Resolved()) {
			discoverable = append(discoverable, col)
		}
	}
	sort.SliceStable(discoverable, func(i, j int) bool {
		if sortBy == SortByPopularity {
			return discoverable[i].Stats.Views > discoverable[j].Stats.Views
		}
		return discoverable[i].UpdatedAt.After(discoverable[j].UpdatedAt)
	})
	hasMore := len(discoverable) > pageSize
	if hasMore {
		discoverable = discoverable[:pageSize]
	}
	return &CollectionPage{Collections: discoverable, HasMore: hasMore}
}

func (f *Fetcher) collectionsMatching(cond storage.Condition) []collections.Collection {
	matches, err := f.db.CollectionsWhere([]storage.Condition{cond}, collectionFetchCeiling)
	if err != nil {
		log.Printf("discovery query on %s failed: %s", cond.Path, err.Error())
		return nil
	}
	return matches
}
