package enrichment

import (
	"context"

	"github.com/amadeus-ai/nexuskit/errors"
	"github.com/amadeus-ai/nexuskit/inference"
	"github.com/amadeus-ai/nexuskit/stream"
)

// EnrichedSuffix marks re-published events so they never re-enter the
// enrichment routes that produced them.
const EnrichedSuffix = ".enriched"

// AIHandler returns a handler that sends the event payload through the
// named inference adapter and emits the completion as a new event. The
// enriched event keeps the source entity and carries the source event ID as
// its correlation ID.
func AIHandler(registry *inference.Registry, adapter string) HandlerFunc {
	return func(ctx context.Context, event stream.Event) (*stream.Event, error) {
		client, err := registry.Get(adapter)
		if err != nil {
			return nil, errors.Wrap(err, "AIHandler", "enrich", "resolve adapter")
		}

		completion, err := client.Infer(ctx, enrichmentPrompt(event))
		if err != nil {
			return nil, errors.WrapTransient(err, "AIHandler", "enrich", "run inference")
		}

		enriched := stream.NewEvent(event.Type+EnrichedSuffix, event.EntityID, []byte(completion))
		enriched.CorrelationID = event.ID
		return &enriched, nil
	}
}

func enrichmentPrompt(event stream.Event) string {
	return "Summarize the following " + event.Type + " event for entity " +
		event.EntityID + ":\n" + string(event.Payload)
}
