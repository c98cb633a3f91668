package events

// EventRouter gives publishers a typed surface over the bus so call sites
// never build event structs by hand. A nil router is safe to call and drops
// everything, which keeps event wiring optional in tests.
type EventRouter struct {
	eventBus *EventBus
}

// NewEventRouter creates a new EventRouter instance
func NewEventRouter(eventBus *EventBus) *EventRouter {
	return &EventRouter{
		eventBus: eventBus,
	}
}

func (er *EventRouter) publish(event MintEvent) {
	if er == nil || er.eventBus == nil {
		return
	}
	er.eventBus.Publish(event)
}

// PublishMintQuotePaid publishes confirmation of the payment backing a quote
func (er *EventRouter) PublishMintQuotePaid(quoteID string, amount uint64) {
	er.publish(NewMintQuotePaid(quoteID, amount))
}

// PublishTokensIssued publishes the signing of outputs against a paid quote
func (er *EventRouter) PublishTokensIssued(quoteID string, amount uint64) {
	er.publish(NewTokensIssued(quoteID, amount))
}

// PublishProofsSpent publishes admission of proofs to the spent set
func (er *EventRouter) PublishProofsSpent(operation string, count int, amount uint64) {
	er.publish(NewProofsSpent(operation, count, amount))
}

// PublishMeltSettled publishes completion of an outgoing payment
func (er *EventRouter) PublishMeltSettled(quoteID string, amount uint64, feePaid uint64, internal bool) {
	er.publish(NewMeltSettled(quoteID, amount, feePaid, internal))
}

// PublishKeysetRotated publishes activation of a new keyset
func (er *EventRouter) PublishKeysetRotated(keysetID string) {
	er.publish(NewKeysetRotated(keysetID))
}

// Subscribe subscribes to all mint events
func (er *EventRouter) Subscribe() (SubscriberID, chan MintEvent) {
	return er.eventBus.Subscribe()
}

// Unsubscribe removes a subscription
func (er *EventRouter) Unsubscribe(id SubscriberID) bool {
	return er.eventBus.Unsubscribe(id)
}
