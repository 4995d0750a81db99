package livesync

import (
	"errors"
	"time"

	log "recipeserver/cloudlog"
	"recipeserver/collections"
	"recipeserver/discovery"
	"recipeserver/recipeauth"
	"recipeserver/sharesync"
	"recipeserver/syncodes"
	"recipeserver/visibility"
)

func (h *Hub) processMessage(message *Message) *Message {
	switch message.Endpoint {
	case endpointRecipeCreate:
		return h.handleRecipeCreate(message)
	case endpointRecipeSetVisibility:
		return h.handleRecipeSetVisibility(message)
	case endpointRecipeDelete:
		return h.handleRecipeDelete(message)
	case endpointCollectionCreate:
		return h.handleCollectionCreate(message)
	case endpointCollectionRename:
		return h.handleCollectionRename(message)
	case endpointCollectionSetVisibility:
		return h.handleCollectionSetVisibility(message)
	case endpointCollectionAddRecipe:
		return h.handleCollectionAddRecipe(message)
	case endpointCollectionRemoveRecipe:
		return h.handleCollectionRemoveRecipe(message)
	case endpointCollectionReorder:
		return h.handleCollectionReorder(message)
	case endpointCollectionDelete:
		return h.handleCollectionDelete(message)
	case endpointCollectionRecipes:
		return h.handleCollectionRecipes(message)
	case endpointPublicRecipes:
		return h.handlePublicRecipes(message)
	case endpointPublicCollections:
		return h.handlePublicCollections(message)
	case endpointCollectionsContainRecipe:
		return h.handleCollectionsContainRecipe(message)
	case endpointRecipeViewed, endpointRecipeCopied, endpointCollectionViewed, endpointCollectionCopied:
		return h.handleCounter(message)
	case endpointSettingsGet:
		return h.handleSettingsGet(message)
	case endpointSettingsSet:
		return h.handleSettingsSet(message)
	case endpointWatchDoc:
		return h.handleWatchDoc(message)
	case endpointUnwatchDoc:
		return h.handleUnwatchDoc(message)
	default:
		log.Printf("Message endpoint: " + message.Endpoint + " is not supported")
		return toOriginWithStatus(message, syncodes.StatusEndpointNotValid, "")
	}
}

// statusForError maps the error taxonomy onto wire status codes. Identity
// and ownership failures must reach the user; everything else is a generic
// failure.
func statusForError(err error) string {
	switch {
	case errors.Is(err, recipeauth.ErrNotSignedIn):
		return syncodes.StatusNotSignedIn
	case errors.Is(err, recipeauth.ErrNotFound):
		return syncodes.StatusNotFound
	case errors.Is(err, recipeauth.ErrNotAuthorized):
		return syncodes.StatusNotAuthorized
	case errors.Is(err, sharesync.ErrInvalidVisibility), errors.Is(err, sharesync.ErrInvalidOrder):
		return syncodes.StatusInvalidArgument
	default:
		return syncodes.StatusFailure
	}
}

func (h *Hub) handleRecipeCreate(message *Message) *Message {
	recipe := message.Recipe
	if recipe == nil {
		recipe = &collections.Recipe{Title: message.Name}
	}
	created, err := h.mutations.CreateRecipe(message.client.userID, recipe)
	if err != nil {
		return toOriginWithStatus(message, statusForError(err), err.Error())
	}
	ret := toBroadcastWithStatus(message, syncodes.StatusSuccess)
	ret.Recipe = created
	ret.RecipeID = created.ID
	return ret
}

func (h *Hub) handleRecipeSetVisibility(message *Message) *Message {
	recipe, err := h.mutations.SetRecipeVisibility(
		message.client.userID,
		message.RecipeID,
		visibility.Visibility(message.Visibility),
	)
	if err != nil {
		return toOriginWithStatus(message, statusForError(err), err.Error())
	}
	ret := toBroadcastWithStatus(message, syncodes.StatusSuccess)
	ret.Recipe = recipe
	ret.RecipeID = recipe.ID
	ret.Visibility = string(recipe.Resolved())
	return ret
}

func (h *Hub) handleRecipeDelete(message *Message) *Message {
	if err := h.mutations.DeleteRecipe(message.client.userID, message.RecipeID); err != nil {
		return toOriginWithStatus(message, statusForError(err), err.Error())
	}
	ret := toBroadcastWithStatus(message, syncodes.StatusSuccess)
	ret.RecipeID = message.RecipeID
	return ret
}

func (h *Hub) handleCollectionCreate(message *Message) *Message {
	col, err := h.mutations.CreateCollection(message.client.userID, message.Name)
	if err != nil {
		return toOriginWithStatus(message, statusForError(err), err.Error())
	}
	ret := toBroadcastWithStatus(message, syncodes.StatusSuccess)
	ret.Collection = col
	ret.CollectionID = col.ID
	return ret
}

func (h *Hub) handleCollectionRename(message *Message) *Message {
	col, err := h.mutations.RenameCollection(message.client.userID, message.CollectionID, message.Name)
	if err != nil {
		return toOriginWithStatus(message, statusForError(err), err.Error())
	}
	ret := toBroadcastWithStatus(message, syncodes.StatusSuccess)
	ret.Collection = col
	ret.CollectionID = col.ID
	return ret
}

func (h *Hub) handleCollectionSetVisibility(message *Message) *Message {
	col, err := h.mutations.SetCollectionVisibility(
		message.client.userID,
		message.CollectionID,
		visibility.Visibility(message.Visibility),
	)
	if err != nil {
		return toOriginWithStatus(message, statusForError(err), err.Error())
	}
	ret := toBroadcastWithStatus(message, syncodes.StatusSuccess)
	ret.Collection = col
	ret.CollectionID = col.ID
	ret.Visibility = string(col.Resolved())
	return ret
}

func (h *Hub) handleCollectionAddRecipe(message *Message) *Message {
	elevation, err := h.mutations.AddRecipeToCollection(
		message.client.userID, message.CollectionID, message.RecipeID)
	if err != nil {
		return toOriginWithStatus(message, statusForError(err), err.Error())
	}
	ret := toBroadcastWithStatus(message, syncodes.StatusSuccess)
	ret.CollectionID = message.CollectionID
	ret.RecipeID = message.RecipeID
	ret.Elevation = elevation
	return ret
}

func (h *Hub) handleCollectionRemoveRecipe(message *Message) *Message {
	col, err := h.mutations.RemoveRecipeFromCollection(
		message.client.userID, message.CollectionID, message.RecipeID)
	if err != nil {
		return toOriginWithStatus(message, statusForError(err), err.Error())
	}
	ret := toBroadcastWithStatus(message, syncodes.StatusSuccess)
	ret.Collection = col
	ret.CollectionID = col.ID
	return ret
}

func (h *Hub) handleCollectionReorder(message *Message) *Message {
	col, err := h.mutations.ReorderCollection(
		message.client.userID, message.CollectionID, message.RecipeIDs)
	if err != nil {
		return toOriginWithStatus(message, statusForError(err), err.Error())
	}
	ret := toBroadcastWithStatus(message, syncodes.StatusSuccess)
	ret.Collection = col
	ret.CollectionID = col.ID
	return ret
}

func (h *Hub) handleCollectionDelete(message *Message) *Message {
	if err := h.mutations.DeleteCollection(message.client.userID, message.CollectionID); err != nil {
		return toOriginWithStatus(message, statusForError(err), err.Error())
	}
	h.stopWatch(docKindCollection, message.CollectionID)
	ret := toBroadcastWithStatus(message, syncodes.StatusSuccess)
	ret.CollectionID = message.CollectionID
	return ret
}

// handleCollectionRecipes serves a collection's content to any viewer. The
// collection itself must be accessible (or the viewer its owner); the member
// recipes then resolve through the batched accessible-index path, silently
// dropping whatever is no longer accessible.
func (h *Hub) handleCollectionRecipes(message *Message) *Message {
	col, err := h.db.Collection(message.CollectionID)
	if err != nil {
		return toOriginWithStatus(message, syncodes.StatusFailure, err.Error())
	}
	if col == nil {
		return toOriginWithStatus(message, syncodes.StatusNotFound, "")
	}
	if col.OwnerID != message.client.userID && !visibility.IsAccessible(col.Resolved()) {
		// Deliberately indistinguishable from a missing collection.
		return toOriginWithStatus(message, syncodes.StatusNotFound, "")
	}
	ret := toOriginWithStatus(message, syncodes.StatusSuccess, "")
	ret.Collection = col
	ret.CollectionID = col.ID
	ret.Recipes = h.browse.CollectionRecipes(col)
	return ret
}

func (h *Hub) handlePublicRecipes(message *Message) *Message {
	page := h.browse.PublicRecipes(discovery.SortField(message.SortBy), pageSizeOrDefault(message.PageSize))
	ret := toOriginWithStatus(message, syncodes.StatusSuccess, "")
	ret.Recipes = page.Recipes
	ret.HasMore = page.HasMore
	return ret
}

func (h *Hub) handlePublicCollections(message *Message) *Message {
	page := h.browse.PublicCollections(discovery.SortField(message.SortBy), pageSizeOrDefault(message.PageSize))
	ret := toOriginWithStatus(message, syncodes.StatusSuccess, "")
	ret.Collections = page.Collections
	ret.HasMore = page.HasMore
	return ret
}

// handleCollectionsContainRecipe backs the demotion warning: before an owner
// confirms setting a recipe private, the client asks which public
// collections still reference it.
func (h *Hub) handleCollectionsContainRecipe(message *Message) *Message {
	cols, err := h.mutations.PublicCollectionsContainingRecipe(message.RecipeID)
	if err != nil {
		return toOriginWithStatus(message, syncodes.StatusFailure, err.Error())
	}
	ret := toOriginWithStatus(message, syncodes.StatusSuccess, "")
	ret.RecipeID = message.RecipeID
	ret.Collections = cols
	return ret
}

// handleCounter fires the session-deduplicated counters. Always successful
// from the client's point of view; increments are best-effort.
func (h *Hub) handleCounter(message *Message) *Message {
	stats := message.client.stats
	switch message.Endpoint {
	case endpointRecipeViewed:
		stats.RecipeViewed(message.OwnerID, message.RecipeID)
	case endpointRecipeCopied:
		stats.RecipeCopied(message.OwnerID, message.RecipeID)
	case endpointCollectionViewed:
		stats.CollectionViewed(message.CollectionID)
	case endpointCollectionCopied:
		stats.CollectionRecipeCopied(message.CollectionID)
	}
	return toOriginWithStatus(message, syncodes.StatusSuccess, "")
}

func (h *Hub) handleSettingsGet(message *Message) *Message {
	settings, err := h.db.Settings(message.client.userID)
	if err != nil {
		return toOriginWithStatus(message, syncodes.StatusFailure, err.Error())
	}
	ret := toOriginWithStatus(message, syncodes.StatusSuccess, "")
	ret.Settings = settings
	return ret
}

func (h *Hub) handleSettingsSet(message *Message) *Message {
	if message.Settings == nil {
		return toOriginWithStatus(message, syncodes.StatusInvalidArgument, "settings payload missing")
	}
	message.Settings.UpdatedAt = time.Now()
	if err := h.db.SetSettings(message.client.userID, message.Settings); err != nil {
		return toOriginWithStatus(message, syncodes.StatusFailure, err.Error())
	}
	ret := toBroadcastWithStatus(message, syncodes.StatusSuccess)
	ret.Settings = message.Settings
	return ret
}

func (h *Hub) handleWatchDoc(message *Message) *Message {
	switch message.DocKind {
	case docKindRecipe:
		h.startWatch(docKindRecipe, message.RecipeID)
	case docKindCollection:
		h.startWatch(docKindCollection, message.CollectionID)
	case docKindSettings:
		h.startWatch(docKindSettings, collections.PreferencesDocID)
	default:
		return toOriginWithStatus(message, syncodes.StatusInvalidArgument, "unknown doc kind")
	}
	return toOriginWithStatus(message, syncodes.StatusSuccess, "")
}

func (h *Hub) handleUnwatchDoc(message *Message) *Message {
	switch message.DocKind {
	case docKindRecipe:
		h.stopWatch(docKindRecipe, message.RecipeID)
	case docKindCollection:
		h.stopWatch(docKindCollection, message.CollectionID)
	case docKindSettings:
		h.stopWatch(docKindSettings, collections.PreferencesDocID)
	default:
		return toOriginWithStatus(message, syncodes.StatusInvalidArgument, "unknown doc kind")
	}
	return toOriginWithStatus(message, syncodes.StatusSuccess, "")
}

func pageSizeOrDefault(pageSize int) int {
	if pageSize <= 0 {
		return 20
	}
	return pageSize
}

func toOriginWithStatus(message *Message, status string, text string) *Message {
	return &Message{
		UID:      message.UID,
		Status:   status,
		Text:     text,
		Endpoint: message.Endpoint,
		Route:    append([]string{}, routeOrigin),
	}
}

func toBroadcastWithStatus(message *Message, status string) *Message {
	return &Message{
		UID:      message.UID,
		Status:   status,
		Endpoint: message.Endpoint,
		Route:    append([]string{}, routeBroadcast),
	}
}
