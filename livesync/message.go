package livesync

import (
	"recipeserver/collections"
	"recipeserver/sharesync"
)

const (
	endpointRecipeCreate        = "RECIPE_CREATE"
	endpointRecipeSetVisibility = "RECIPE_SET_VISIBILITY"
	endpointRecipeDelete        = "RECIPE_DELETE"

	endpointCollectionCreate        = "COLLECTION_CREATE"
	endpointCollectionRename        = "COLLECTION_RENAME"
	endpointCollectionSetVisibility = "COLLECTION_SET_VISIBILITY"
	endpointCollectionAddRecipe     = "COLLECTION_ADD_RECIPE"
	endpointCollectionRemoveRecipe  = "COLLECTION_REMOVE_RECIPE"
	endpointCollectionReorder       = "COLLECTION_REORDER"
	endpointCollectionDelete        = "COLLECTION_DELETE"

	endpointCollectionRecipes        = "COLLECTION_RECIPES"
	endpointPublicRecipes            = "PUBLIC_RECIPES"
	endpointPublicCollections        = "PUBLIC_COLLECTIONS"
	endpointCollectionsContainRecipe = "PUBLIC_COLLECTIONS_FOR_RECIPE"

	endpointRecipeViewed     = "RECIPE_VIEWED"
	endpointRecipeCopied     = "RECIPE_COPIED"
	endpointCollectionViewed = "COLLECTION_VIEWED"
	endpointCollectionCopied = "COLLECTION_COPIED"

	endpointSettingsGet = "SETTINGS_GET"
	endpointSettingsSet = "SETTINGS_SET"

	endpointWatchDoc   = "WATCH_DOC"
	endpointUnwatchDoc = "UNWATCH_DOC"
	// endpointDocUpdate is server-initiated: a snapshot of a watched
	// owning document changed.
	endpointDocUpdate = "DOC_UPDATE"

	routeBroadcast = "BROADCAST"
	routeOrigin    = "ORIGIN"

	// Doc kinds accepted by the watch endpoints. Only owning documents can
	// be watched; the indexes are read on demand through the discovery
	// endpoints.
	docKindRecipe     = "recipe"
	docKindCollection = "collection"
	docKindSettings   = "settings"
)

// Message defines the websocket message between a client device and this
// server. Route says which of the caller's connected devices receive it:
// successful mutations broadcast so other devices converge, failures return
// to the origin only.
type Message struct {
	UID      string   `json:"uid"`
	Endpoint string   `json:"endpoint"`
	Route    []string `json:"route"`
	Status   string   `json:"status"`
	Text     string   `json:"text"`

	RecipeID     string   `json:"recipeId,omitempty"`
	CollectionID string   `json:"collectionId,omitempty"`
	OwnerID      string   `json:"ownerId,omitempty"`
	Visibility   string   `json:"visibility,omitempty"`
	Name         string   `json:"name,omitempty"`
	RecipeIDs    []string `json:"recipeIds,omitempty"`
	SortBy       string   `json:"sortBy,omitempty"`
	PageSize     int      `json:"pageSize,omitempty"`
	DocKind      string   `json:"docKind,omitempty"`

	Recipe      *collections.Recipe        `json:"recipe,omitempty"`
	Recipes     []*collections.Recipe      `json:"recipes,omitempty"`
	Collection  *collections.Collection    `json:"collection,omitempty"`
	Collections []collections.Collection   `json:"collections,omitempty"`
	Settings    *collections.UserSettings  `json:"settings,omitempty"`
	Elevation   *sharesync.ElevationResult `json:"elevation,omitempty"`
	HasMore     bool                       `json:"hasMore,omitempty"`

	// Doc carries the raw snapshot data of a watched document; DocExists is
	// false when the document was deleted.
	Doc       map[string]interface{} `json:"doc,omitempty"`
	DocExists bool                   `json:"docExists,omitempty"`

	client *Client
}
