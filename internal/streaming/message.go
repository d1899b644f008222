package streaming

import (
	"encoding/json"
	"errors"
	"time"

	"paysync/internal/domain"
)

type MessageType string

const (
	MessageTypePayment MessageType = "payment"
)

// Message is the event published for every newly stored payment.
type Message struct {
	Type        MessageType `json:"type"`
	Account     string      `json:"account"`
	Currency    string      `json:"currency,omitempty"`
	Issuer      string      `json:"issuer,omitempty"`
	TraceID     string      `json:"trace_id,omitempty"`
	LedgerIndex int64       `json:"ledger_index"`
	Hash        string      `json:"transaction_hash"`
	From        string      `json:"from_address"`
	To          string      `json:"to_address"`
	Memo        string      `json:"memo,omitempty"`
	Amount      int64       `json:"amount"`
	Timestamp   *time.Time  `json:"transaction_timestamp,omitempty"`
}

func FromPayment(payment domain.Payment) Message {
	return Message{
		Type:        MessageTypePayment,
		LedgerIndex: payment.LedgerIndex,
		Hash:        payment.Hash,
		From:        payment.From,
		To:          payment.To,
		Memo:        payment.Memo,
		Amount:      payment.Amount,
		Timestamp:   payment.Timestamp,
	}
}

func Encode(msg Message) ([]byte, error) {
	if err := validate(msg); err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func validate(msg Message) error {
	if msg.Type == "" {
		return errors.New("message type is required")
	}
	if msg.Account == "" {
		return errors.New("account is required")
	}
	if msg.Type == MessageTypePayment && msg.Hash == "" {
		return errors.New("transaction_hash is required")
	}
	return nil
}
