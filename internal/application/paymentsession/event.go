package paymentsession

import (
	"github.com/tuncanbit/paylink/internal/domain"
)

type EventKind string

const (
	KindStart           EventKind = "start"
	KindLinkResolved    EventKind = "linkResolved"
	KindOptionsReceived EventKind = "optionsReceived"
	KindFieldCollected  EventKind = "fieldCollected"
	KindUserConfirmed   EventKind = "userConfirmed"
	KindSigned          EventKind = "signed"
	KindAck             EventKind = "ack"
	KindError           EventKind = "error"
)

// Event is the only input the state machine accepts. Only the fields that
// belong to Kind are read.
type Event struct {
	Kind EventKind

	Link      string                  // linkResolved
	Option    *domain.PaymentOption   // optionsReceived
	Actions   []domain.RequiredAction // optionsReceived
	Field     string                  // fieldCollected
	Value     string                  // fieldCollected
	Signature string                  // signed
	TxID      string                  // ack
	Err       *domain.PaymentError    // error
}

func Start() Event { return Event{Kind: KindStart} }

func LinkResolved(link string) Event { return Event{Kind: KindLinkResolved, Link: link} }

func OptionsReceived(option *domain.PaymentOption, actions []domain.RequiredAction) Event {
	return Event{Kind: KindOptionsReceived, Option: option, Actions: actions}
}

func FieldCollected(field, value string) Event {
	return Event{Kind: KindFieldCollected, Field: field, Value: value}
}

func UserConfirmed() Event { return Event{Kind: KindUserConfirmed} }

func Signed(signature string) Event { return Event{Kind: KindSigned, Signature: signature} }

func Ack(txID string) Event { return Event{Kind: KindAck, TxID: txID} }

func Fail(err *domain.PaymentError) Event { return Event{Kind: KindError, Err: err} }

// Transition describes one accepted edge. Session is a snapshot taken after
// the edge was applied.
type Transition struct {
	From    domain.SessionState
	To      domain.SessionState
	Event   EventKind
	Session *domain.PaymentSession
}
