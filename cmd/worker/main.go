package main

import (
	"context"
	"os/signal"
	"syscall"

	"whozere-relay/internal/factory"
	"whozere-relay/internal/ingest"
	"whozere-relay/internal/util"
)

func main() {
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	consumer, err := f.NewIngestConsumer()
	if err != nil {
		util.Fatal("Failed to create ingest consumer", util.ErrorField(err))
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	worker := ingest.NewWorker(consumer, f.ServiceFactory().WebhookService(), f.Logger().Named("ingest"))

	util.Info("Consuming webhook payloads",
		util.String("topic", f.Config().Kafka.IngestTopic),
		util.String("group_id", f.Config().Kafka.GroupID),
	)

	if err := worker.Run(ctx); err != nil {
		util.Error("Ingest worker failed", util.ErrorField(err))
	}
}
