// Package livesync delivers live updates of owning documents to a caller's
// connected devices and carries the mutation and discovery endpoints over
// websocket. One hub exists per signed-in caller; every device of that
// caller registers a client with it. Hubs watch owning documents only
// (recipes, collections, the settings blob); the denormalized indexes are
// never subscribed to, they are read on demand by the discovery endpoints.
package livesync

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	log "recipeserver/cloudlog"
	"recipeserver/collections"
	"recipeserver/discovery"
	"recipeserver/sharesync"
	"recipeserver/visibility"
)

// Type definitions mostly to facilitate testing; can drop in a faked struct
// without relying on the underlying Firestore dependencies.

type mutator interface {
	CreateRecipe(callerID string, recipe *collections.Recipe) (*collections.Recipe, error)
	SetRecipeVisibility(callerID, recipeID string, newVis visibility.Visibility) (*collections.Recipe, error)
	DeleteRecipe(callerID, recipeID string) error
	CreateCollection(callerID, name string) (*collections.Collection, error)
	RenameCollection(callerID, collectionID, name string) (*collections.Collection, error)
	SetCollectionVisibility(callerID, collectionID string, newVis visibility.Visibility) (*collections.Collection, error)
	AddRecipeToCollection(callerID, collectionID, recipeID string) (*sharesync.ElevationResult, error)
	RemoveRecipeFromCollection(callerID, collectionID, recipeID string) (*collections.Collection, error)
	ReorderCollection(callerID, collectionID string, order []string) (*collections.Collection, error)
	DeleteCollection(callerID, collectionID string) error
	PublicCollectionsContainingRecipe(recipeID string) ([]collections.Collection, error)
}

type browser interface {
	ResolveAccessible(recipeID string) *collections.Recipe
	CollectionRecipes(col *collections.Collection) []*collections.Recipe
	PublicRecipes(sortBy discovery.SortField, pageSize int) *discovery.RecipePage
	PublicCollections(sortBy discovery.SortField, pageSize int) *discovery.CollectionPage
}

type datastore interface {
	Collection(collectionID string) (*collections.Collection, error)
	Settings(ownerID string) (*collections.UserSettings, error)
	SetSettings(ownerID string, settings *collections.UserSettings) error
	WatchRecipe(ctx context.Context, ownerID, recipeID string, callback func(data map[string]interface{}, exists bool))
	WatchCollection(ctx context.Context, collectionID string, callback func(data map[string]interface{}, exists bool))
	WatchSettings(ctx context.Context, ownerID string, callback func(data map[string]interface{}, exists bool))
}

// Hub maintains one caller's set of connected devices and their document
// watches, and routes endpoint responses back to them.
type Hub struct {
	// userID of the caller all clients of this hub belong to.
	userID string

	// set to true if hub has been closed; can't be reused and needs to be
	// disposed of.
	isClosed bool

	// Registered clients.
	clients map[*Client]bool

	// Inbound messages from the clients.
	inbound chan *Message

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Snapshot updates from watch goroutines, forwarded as broadcasts.
	updates chan *Message

	// Cancel functions of the active document watches, keyed by
	// docKind/docID.
	watches map[string]context.CancelFunc

	db        datastore
	mutations mutator
	browse    browser

	// Called once when the hub closes so the connector can drop it.
	onClose func()
}

func newHub(userID string, db datastore, mutations mutator, browse browser, onClose func()) *Hub {
	return &Hub{
		userID:     userID,
		clients:    make(map[*Client]bool),
		inbound:    make(chan *Message),
		register:   make(chan *Client),
		// Buffered so a device disconnecting after the hub closed does not
		// block its read pump shutdown.
		unregister: make(chan *Client, 8),
		updates:    make(chan *Message, 64),
		watches:    make(map[string]context.CancelFunc),
		db:         db,
		mutations:  mutations,
		browse:     browse,
		onClose:    onClose,
	}
}

// Run listens on all channels until the last client disconnects. Watch
// updates and successful mutations broadcast to every device of the caller;
// there is no ordering guarantee between updates of two different documents.
func (h *Hub) Run() {
	log.Printf("start hub for user %s", h.userID)
	for {
		select {
		case client, ok := <-h.register:
			if !ok {
				return
			}
			h.clients[client] = true
		case client, ok := <-h.unregister:
			if !ok {
				return
			}
			if _, ok := h.clients[client]; ok {
				h.removeClient(client)
			}
		case message, ok := <-h.inbound:
			if !ok {
				return
			}
			h.handleSendMessage(h.processMessage(message), message.client)
		case message := <-h.updates:
			h.handleSendMessage(message, nil)
		}
		if h.isClosed {
			return
		}
	}
}

// determines where to send the message based on message.Route
func (h *Hub) handleSendMessage(message *Message, origin *Client) {
	if message == nil {
		// No op
		return
	}
	if len(message.Route) == 0 {
		return
	}
	if message.Route[0] == routeBroadcast {
		for client := range h.clients {
			h.sendMessage(client, message)
		}
	} else if message.Route[0] == routeOrigin {
		h.sendMessage(origin, message)
	}
}

// sendMessage first checks if the message can be sent to the client. A
// client absent from the registry has already had its send channel closed by
// removeClient; a reply that was queued behind its unregister is dropped.
func (h *Hub) sendMessage(client *Client, message *Message) {
	if client == nil {
		return
	}
	if _, ok := h.clients[client]; !ok {
		return
	}
	if client.IsClosed() {
		h.removeClient(client)
		return
	}
	select {
	case client.send <- message:
	default:
		h.removeClient(client)
	}
}

// watchKey names a watch for the watches map.
func watchKey(kind, id string) string {
	return fmt.Sprintf("%s/%s", kind, id)
}

// startWatch attaches a snapshot listener for the given owning document and
// forwards every snapshot to all of the caller's devices. Watching an
// already watched document is a no-op.
func (h *Hub) startWatch(kind, docID string) {
	key := watchKey(kind, docID)
	if _, ok := h.watches[key]; ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.watches[key] = cancel
	callback := func(data map[string]interface{}, exists bool) {
		update := &Message{
			Endpoint:     endpointDocUpdate,
			Route:        []string{routeBroadcast},
			DocKind:      kind,
			RecipeID:     pickID(kind, docKindRecipe, docID),
			CollectionID: pickID(kind, docKindCollection, docID),
			Doc:          data,
			DocExists:    exists,
		}
		// Once the hub closes nobody drains updates; the cancelled watch
		// context unblocks the callback instead.
		select {
		case h.updates <- update:
		case <-ctx.Done():
		}
	}
	switch kind {
	case docKindRecipe:
		go h.db.WatchRecipe(ctx, h.userID, docID, callback)
	case docKindCollection:
		go h.db.WatchCollection(ctx, docID, callback)
	case docKindSettings:
		go h.db.WatchSettings(ctx, h.userID, callback)
	}
}

// stopWatch cancels the snapshot listener for the document, if any.
func (h *Hub) stopWatch(kind, docID string) {
	key := watchKey(kind, docID)
	if cancel, ok := h.watches[key]; ok {
		cancel()
		delete(h.watches, key)
	}
}

func pickID(kind, want, docID string) string {
	if kind == want {
		return docID
	}
	return ""
}

// removeClient drops the client from the registry and closes its send
// channel. Idempotent: the channel is closed only on the removal that
// actually deletes the client.
func (h *Hub) removeClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	if len(h.clients) == 0 {
		h.closeHub()
	}
}

func (h *Hub) closeHub() {
	for key, cancel := range h.watches {
		cancel()
		delete(h.watches, key)
	}
	h.isClosed = true
	if h.onClose != nil {
		h.onClose()
	}
	log.Printf("close hub for user %s", h.userID)
}

// IsClosed determines if a hub has been closed or not.
func (h *Hub) IsClosed() bool {
	return h.isClosed
}

// Connector hands incoming websocket connections to the caller's hub,
// creating the hub on first connection.
type Connector struct {
	mu   sync.Mutex
	hubs map[string]*Hub

	db         datastore
	mutations  mutator
	browse     browser
	newTracker func() Tracker
}

// NewConnector returns an instantiated Connector. newTracker is called once
// per device connection to build that session's counter dedup.
func NewConnector(db datastore, mutations mutator, browse browser, newTracker func() Tracker) *Connector {
	return &Connector{
		hubs:       make(map[string]*Hub),
		db:         db,
		mutations:  mutations,
		browse:     browse,
		newTracker: newTracker,
	}
}

func (c *Connector) hubFor(userID string) *Hub {
	c.mu.Lock()
	defer c.mu.Unlock()
	hub, ok := c.hubs[userID]
	if !ok || hub.IsClosed() {
		hub = newHub(userID, c.db, c.mutations, c.browse, func() {
			c.mu.Lock()
			delete(c.hubs, userID)
			c.mu.Unlock()
		})
		c.hubs[userID] = hub
		go hub.Run()
	}
	return hub
}

// ServeWs upgrades the connection and registers the device with the
// caller's hub.
func (c *Connector) ServeWs(userID string, w http.ResponseWriter, r *http.Request) {
	upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	client := NewClient(userID, conn, c.newTracker())
	hub := c.hubFor(userID)
	client.hub = hub
	hub.register <- client
	client.Start()
}
