package main

import (
	"context"
	"net/http"

	log "recipeserver/cloudlog"
	"recipeserver/config"
	"recipeserver/discovery"
	"recipeserver/livesync"
	"recipeserver/recipeauth"
	"recipeserver/sessionstats"
	"recipeserver/sharesync"
	"recipeserver/storage"

	"github.com/gorilla/mux"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	store, err := storage.New(ctx, cfg)
	if err != nil {
		log.Fatalf("initiate storage failed: %+v", err)
	}
	defer store.Close()

	guard := recipeauth.NewGuard(store)
	repair := sharesync.NewRepairPublisher(ctx, cfg.ProjectID)
	syncer := sharesync.NewSyncer(store, guard, repair)
	fetcher := discovery.NewFetcher(store)
	connector := livesync.NewConnector(store, syncer, fetcher, func() livesync.Tracker {
		return sessionstats.NewTracker(store)
	})

	router := mux.NewRouter()
	router.HandleFunc("/ws", wsHandler(store, connector))

	addr := ":" + cfg.Port
	log.Println("Starting server at: http://" + addr)
	log.Fatal(http.ListenAndServe(addr, router))
}

// wsHandler authenticates the caller's ID token and hands the connection to
// their hub. A missing or invalid token rejects the upgrade; every mutation
// entry point depends on the verified caller identity.
func wsHandler(store *storage.Store, connector *livesync.Connector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokens, ok := r.URL.Query()["token"]
		if !ok || len(tokens[0]) < 1 {
			log.Println("Url Param 'token' is missing")
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		userID, err := store.VerifyIDToken(tokens[0])
		if err != nil {
			log.Printf("token verification failed: %s", err.Error())
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		connector.ServeWs(userID, w, r)
	}
}
