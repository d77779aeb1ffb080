package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func main() {
	ctx := context.Background()

	if os.Getenv("PUBSUB_EMULATOR_HOST") == "" {
		os.Setenv("PUBSUB_EMULATOR_HOST", "localhost:8085")
	}

	projectID := flag.String("project", "parcel-emulator", "emulator project")
	eventsTopic := flag.String("topic", "parcel-geometry-events", "topic of the geometry events")
	eventsSubscription := flag.String("subscription", "parcel-geometry-events", "subscription to the geometry events")
	flag.Parse()

	log.Print("New client for project " + *projectID)
	client, err := pubsub.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatalf("pubsub.NewClient: %v", err)
	}
	defer client.Close()

	log.Print("Create Topic : " + *eventsTopic)
	if _, err = client.CreateTopic(ctx, *eventsTopic); err != nil && status.Code(err) != codes.AlreadyExists {
		log.Fatalf("pubsub.CreateTopic: %v", err)
	}

	log.Print("Create Subscription : " + *eventsSubscription)
	if _, err = client.CreateSubscription(ctx, *eventsSubscription, pubsub.SubscriptionConfig{
		Topic:       client.Topic(*eventsTopic),
		AckDeadline: 10 * time.Second,
	}); err != nil && status.Code(err) != codes.AlreadyExists {
		log.Fatalf("CreateSubscription: %v", err)
	}

	log.Print("Done!")
}
