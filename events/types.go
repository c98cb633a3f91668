package events

import (
	"time"
)

// EventType is an enum-like string type for mint events
type EventType string

const (
	EventMintQuotePaid EventType = "MintQuotePaid"
	EventTokensIssued  EventType = "TokensIssued"
	EventProofsSpent   EventType = "ProofsSpent"
	EventMeltSettled   EventType = "MeltSettled"
	EventKeysetRotated EventType = "KeysetRotated"
)

// MintEvent represents any event that occurs in the mint
type MintEvent interface {
	Type() EventType
	Timestamp() time.Time
	// Ref names the object the event concerns: a quote id, a keyset id or
	// the operation that spent proofs.
	Ref() string
}

// MintQuotePaid event when the payment backing a mint quote is confirmed
type MintQuotePaid struct {
	quoteID   string
	amount    uint64
	timestamp time.Time
}

func NewMintQuotePaid(quoteID string, amount uint64) *MintQuotePaid {
	return &MintQuotePaid{
		quoteID:   quoteID,
		amount:    amount,
		timestamp: time.Now(),
	}
}

func (e *MintQuotePaid) Type() EventType {
	return EventMintQuotePaid
}

func (e *MintQuotePaid) Timestamp() time.Time {
	return e.timestamp
}

func (e *MintQuotePaid) Ref() string {
	return e.quoteID
}

func (e *MintQuotePaid) Amount() uint64 {
	return e.amount
}

// TokensIssued event when blind signatures are handed out for a paid quote
type TokensIssued struct {
	quoteID   string
	amount    uint64
	timestamp time.Time
}

func NewTokensIssued(quoteID string, amount uint64) *TokensIssued {
	return &TokensIssued{
		quoteID:   quoteID,
		amount:    amount,
		timestamp: time.Now(),
	}
}

func (e *TokensIssued) Type() EventType {
	return EventTokensIssued
}

func (e *TokensIssued) Timestamp() time.Time {
	return e.timestamp
}

func (e *TokensIssued) Ref() string {
	return e.quoteID
}

func (e *TokensIssued) Amount() uint64 {
	return e.amount
}

// ProofsSpent event when proofs are admitted to the spent set
type ProofsSpent struct {
	operation string
	count     int
	amount    uint64
	timestamp time.Time
}

func NewProofsSpent(operation string, count int, amount uint64) *ProofsSpent {
	return &ProofsSpent{
		operation: operation,
		count:     count,
		amount:    amount,
		timestamp: time.Now(),
	}
}

func (e *ProofsSpent) Type() EventType {
	return EventProofsSpent
}

func (e *ProofsSpent) Timestamp() time.Time {
	return e.timestamp
}

func (e *ProofsSpent) Ref() string {
	return e.operation
}

func (e *ProofsSpent) Count() int {
	return e.count
}

func (e *ProofsSpent) Amount() uint64 {
	return e.amount
}

// MeltSettled event when a melt quote's payment goes through
type MeltSettled struct {
	quoteID   string
	amount    uint64
	feePaid   uint64
	internal  bool
	timestamp time.Time
}

func NewMeltSettled(quoteID string, amount uint64, feePaid uint64, internal bool) *MeltSettled {
	return &MeltSettled{
		quoteID:   quoteID,
		amount:    amount,
		feePaid:   feePaid,
		internal:  internal,
		timestamp: time.Now(),
	}
}

func (e *MeltSettled) Type() EventType {
	return EventMeltSettled
}

func (e *MeltSettled) Timestamp() time.Time {
	return e.timestamp
}

func (e *MeltSettled) Ref() string {
	return e.quoteID
}

func (e *MeltSettled) Amount() uint64 {
	return e.amount
}

func (e *MeltSettled) FeePaid() uint64 {
	return e.feePaid
}

// Internal reports whether the payment was settled against one of the mint's
// own unpaid quotes instead of going out through the backend.
func (e *MeltSettled) Internal() bool {
	return e.internal
}

// KeysetRotated event when a new active keyset replaces the previous one
type KeysetRotated struct {
	keysetID  string
	timestamp time.Time
}

func NewKeysetRotated(keysetID string) *KeysetRotated {
	return &KeysetRotated{
		keysetID:  keysetID,
		timestamp: time.Now(),
	}
}

func (e *KeysetRotated) Type() EventType {
	return EventKeysetRotated
}

func (e *KeysetRotated) Timestamp() time.Time {
	return e.timestamp
}

func (e *KeysetRotated) Ref() string {
	return e.keysetID
}
