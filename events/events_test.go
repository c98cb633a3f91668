package events

import (
	"testing"
	"time"
)

func TestEventBus(t *testing.T) {
	eventBus := NewEventBus()

	// Test subscription to all events
	subID, eventChan := eventBus.Subscribe()

	// Verify subscription count
	if count := eventBus.GetTotalSubscriptions(); count != 1 {
		t.Errorf("Expected 1 subscriber, got %d", count)
	}

	// Test publishing event
	quoteID := "test-quote-id"
	event := NewMintQuotePaid(quoteID, 64)

	// Publish event in goroutine to avoid blocking
	go func() {
		eventBus.Publish(event)
	}()

	// Wait for event
	select {
	case receivedEvent := <-eventChan:
		if receivedEvent.Type() != EventMintQuotePaid {
			t.Errorf("Expected MintQuotePaid, got %s", receivedEvent.Type())
		}
		if receivedEvent.Ref() != quoteID {
			t.Errorf("Expected ref %s, got %s", quoteID, receivedEvent.Ref())
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for event")
	}

	// Test unsubscribe
	eventBus.Unsubscribe(subID)

	// Verify subscription count is 0
	if count := eventBus.GetTotalSubscriptions(); count != 0 {
		t.Errorf("Expected 0 subscribers after unsubscribe, got %d", count)
	}
}

func TestMintEvents(t *testing.T) {
	// Test MintQuotePaid
	paidEvent := NewMintQuotePaid("quote-id", 128)
	if paidEvent.Type() != EventMintQuotePaid {
		t.Errorf("Expected MintQuotePaid, got %s", paidEvent.Type())
	}
	if paidEvent.Amount() != 128 {
		t.Errorf("Expected amount 128, got %d", paidEvent.Amount())
	}

	// Test TokensIssued
	issuedEvent := NewTokensIssued("quote-id", 128)
	if issuedEvent.Type() != EventTokensIssued {
		t.Errorf("Expected TokensIssued, got %s", issuedEvent.Type())
	}

	// Test ProofsSpent
	spentEvent := NewProofsSpent("swap", 3, 13)
	if spentEvent.Type() != EventProofsSpent {
		t.Errorf("Expected ProofsSpent, got %s", spentEvent.Type())
	}
	if spentEvent.Count() != 3 {
		t.Errorf("Expected count 3, got %d", spentEvent.Count())
	}
	if spentEvent.Ref() != "swap" {
		t.Errorf("Expected ref 'swap', got %s", spentEvent.Ref())
	}

	// Test MeltSettled
	meltEvent := NewMeltSettled("melt-quote", 100, 2, true)
	if meltEvent.Type() != EventMeltSettled {
		t.Errorf("Expected MeltSettled, got %s", meltEvent.Type())
	}
	if !meltEvent.Internal() {
		t.Error("Expected internal settlement")
	}
	if meltEvent.FeePaid() != 2 {
		t.Errorf("Expected fee 2, got %d", meltEvent.FeePaid())
	}

	// Test KeysetRotated
	rotatedEvent := NewKeysetRotated("00ad268c4d1f5826")
	if rotatedEvent.Type() != EventKeysetRotated {
		t.Errorf("Expected KeysetRotated, got %s", rotatedEvent.Type())
	}
	if rotatedEvent.Ref() != "00ad268c4d1f5826" {
		t.Errorf("Expected keyset id ref, got %s", rotatedEvent.Ref())
	}
}

func TestMultipleSubscribers(t *testing.T) {
	eventBus := NewEventBus()

	// Subscribe multiple clients to all events
	subID1, eventChan1 := eventBus.Subscribe()
	subID2, eventChan2 := eventBus.Subscribe()

	// Verify subscription count
	if count := eventBus.GetTotalSubscriptions(); count != 2 {
		t.Errorf("Expected 2 subscribers, got %d", count)
	}

	// Test publishing event
	quoteID := "test-quote-id"
	event := NewTokensIssued(quoteID, 32)

	// Publish event
	eventBus.Publish(event)

	// Both subscribers should receive the event
	select {
	case receivedEvent := <-eventChan1:
		if receivedEvent.Ref() != quoteID {
			t.Errorf("Expected ref %s, got %s", quoteID, receivedEvent.Ref())
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for event on channel 1")
	}

	select {
	case receivedEvent := <-eventChan2:
		if receivedEvent.Ref() != quoteID {
			t.Errorf("Expected ref %s, got %s", quoteID, receivedEvent.Ref())
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for event on channel 2")
	}

	// Clean up
	eventBus.Unsubscribe(subID1)
	eventBus.Unsubscribe(subID2)

	// Verify subscription count is 0
	if count := eventBus.GetTotalSubscriptions(); count != 0 {
		t.Errorf("Expected 0 subscribers after unsubscribe, got %d", count)
	}
}

func TestEventRouterNilSafe(t *testing.T) {
	var router *EventRouter
	// Publishing through a nil router must not panic.
	router.PublishProofsSpent("swap", 1, 1)
	router.PublishMintQuotePaid("q", 1)

	router = NewEventRouter(nil)
	router.PublishMeltSettled("q", 1, 0, false)
}

func TestEventRouterPublish(t *testing.T) {
	eventBus := NewEventBus()
	router := NewEventRouter(eventBus)

	subID, eventChan := router.Subscribe()
	defer router.Unsubscribe(subID)

	router.PublishKeysetRotated("00ad268c4d1f5826")

	select {
	case receivedEvent := <-eventChan:
		if receivedEvent.Type() != EventKeysetRotated {
			t.Errorf("Expected KeysetRotated, got %s", receivedEvent.Type())
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for routed event")
	}
}
