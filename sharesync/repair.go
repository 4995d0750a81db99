package sharesync

import (
	"context"
	"encoding/json"

	log "recipeserver/cloudlog"

	"cloud.google.com/go/pubsub"
)

const repairTopic = "recipe_index_repair"

// RepairEvent records a sync that committed some steps and then failed,
// leaving a recipe and its index entries out of lock-step until the next
// successful mutation of that recipe. No reconciler consumes these yet; the
// topic is the extension point for one.
type RepairEvent struct {
	RecipeID string `json:"recipeId"`
	Step     string `json:"step"`
	Reason   string `json:"reason"`
}

// RepairPublisher sends repair events through Pub/Sub. Publishing is
// fire-and-forget: a failure to publish is logged and otherwise ignored,
// since the event itself exists to report a failure.
type RepairPublisher struct {
	topic *pubsub.Topic
}

// NewRepairPublisher connects to Pub/Sub for the given project. A connection
// failure gives a publisher that drops events, so the sync paths never
// depend on Pub/Sub availability.
func NewRepairPublisher(ctx context.Context, projectID string) *RepairPublisher {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		log.Printf("Failed to start pubsub client: %s", err.Error())
		return &RepairPublisher{}
	}
	return &RepairPublisher{topic: client.Topic(repairTopic)}
}

// Publish sends the repair event.
func (p *RepairPublisher) Publish(event RepairEvent) {
	if p.topic == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshalling repair event %#v, reason: %s", event, err.Error())
		return
	}
	p.topic.Publish(context.Background(), &pubsub.Message{Data: data})
	log.Printf("published repair event for recipe %s (step %s)", event.RecipeID, event.Step)
}
