package mostro

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
)

// NewRequestID generates a random 48-bit correlation token (spec §4.F).
func NewRequestID() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[1:]); err != nil {
		return 0, fmt.Errorf("generate request id: %w", err)
	}
	val := binary.BigEndian.Uint64(buf[:])
	return val & 0xFFFFFFFFFFFF, nil
}

// NewOrderInput is the user-supplied shape for creating an order, before the
// coordinator-facing normalization spec §4.F describes.
type NewOrderInput struct {
	Kind           OrderKind
	FiatCode       string
	Amount         int64 // 0 = market price at match
	FiatAmount     int64
	MinAmount      *int64
	MaxAmount      *int64
	PaymentMethod  string
	PremiumPercent int
	BuyerInvoice   string // only meaningful for buy orders
}

// BuildNewOrder constructs a new_order request message: status=pending,
// fiat code upper-cased, and buyer_invoice attached iff this is a buy order
// with a pre-supplied invoice/address (spec §4.F "new_order payload
// construction"). Unset optional SmallOrder fields are omitted from the JSON;
// they are not sent as explicit nulls.
func BuildNewOrder(requestID uint64, in NewOrderInput) Message {
	pending := StatusPending
	order := SmallOrder{
		Kind:           in.Kind,
		Status:         &pending,
		AmountSats:     in.Amount,
		FiatCode:       strings.ToUpper(in.FiatCode),
		MinAmount:      in.MinAmount,
		MaxAmount:      in.MaxAmount,
		FiatAmount:     in.FiatAmount,
		PaymentMethod:  in.PaymentMethod,
		PremiumPercent: in.PremiumPercent,
	}
	if in.Kind == KindBuy && in.BuyerInvoice != "" {
		invoice := in.BuyerInvoice
		order.BuyerInvoice = &invoice
	}

	return Message{
		Category: CategoryOrder,
		Kind: MessageKind{
			Version:   ProtocolVersion,
			RequestID: &requestID,
			Action:    ActionNewOrder,
			Payload:   Payload{Order: &order},
		},
	}
}

// BuildTakeBuy constructs a take_buy request (a seller accepting a buy order):
// payload {amount} when the order is a range order and the taker picked an
// amount, otherwise no payload (spec §4.F).
func BuildTakeBuy(requestID uint64, orderID string, tradeIndex int, order SmallOrder, pickedAmount *int64) Message {
	kind := MessageKind{
		Version:    ProtocolVersion,
		ID:         &orderID,
		RequestID:  &requestID,
		TradeIndex: &tradeIndex,
		Action:     ActionTakeBuy,
	}
	if order.IsRangeOrder() && pickedAmount != nil {
		kind.Payload = Payload{Amount: pickedAmount}
	}
	return Message{Category: CategoryOrder, Kind: kind}
}

// BuildTakeSell constructs a take_sell request (a buyer accepting a sell
// order). If an invoice/Lightning-address was supplied, payload is
// {payment_request: [nil, invoice, amount?]}; otherwise {amount} if this is a
// range order, else no payload — the coordinator follows up with an
// add-invoice request (spec §4.F).
func BuildTakeSell(requestID uint64, orderID string, tradeIndex int, order SmallOrder, invoice string, pickedAmount *int64) Message {
	kind := MessageKind{
		Version:    ProtocolVersion,
		ID:         &orderID,
		RequestID:  &requestID,
		TradeIndex: &tradeIndex,
		Action:     ActionTakeSell,
	}
	switch {
	case invoice != "":
		kind.Payload = Payload{PaymentRequest: &PaymentRequest{Invoice: invoice, Amount: pickedAmount}}
	case order.IsRangeOrder() && pickedAmount != nil:
		kind.Payload = Payload{Amount: pickedAmount}
	}
	return Message{Category: CategoryOrder, Kind: kind}
}

// BuildCancel constructs a cancel request for an existing order.
func BuildCancel(requestID uint64, orderID string, tradeIndex int) Message {
	return Message{
		Category: CategoryOrder,
		Kind: MessageKind{
			Version:    ProtocolVersion,
			ID:         &orderID,
			RequestID:  &requestID,
			TradeIndex: &tradeIndex,
			Action:     ActionCancel,
		},
	}
}

// BuildFiatSent constructs a fiat-sent request.
func BuildFiatSent(requestID uint64, orderID string, tradeIndex int) Message {
	return Message{
		Category: CategoryOrder,
		Kind: MessageKind{
			Version:    ProtocolVersion,
			ID:         &orderID,
			RequestID:  &requestID,
			TradeIndex: &tradeIndex,
			Action:     ActionFiatSent,
		},
	}
}

// BuildRelease constructs a release request.
func BuildRelease(requestID uint64, orderID string, tradeIndex int) Message {
	return Message{
		Category: CategoryOrder,
		Kind: MessageKind{
			Version:    ProtocolVersion,
			ID:         &orderID,
			RequestID:  &requestID,
			TradeIndex: &tradeIndex,
			Action:     ActionRelease,
		},
	}
}

// BuildRateUser constructs a rating request (1..5) for a completed trade.
func BuildRateUser(requestID uint64, orderID string, tradeIndex int, rating int) Message {
	return Message{
		Category: CategoryRate,
		Kind: MessageKind{
			Version:    ProtocolVersion,
			ID:         &orderID,
			RequestID:  &requestID,
			TradeIndex: &tradeIndex,
			Action:     ActionRateUser,
			Payload:    Payload{RatingUser: &rating},
		},
	}
}

// BuildDispute constructs a dispute request with an optional reason string.
func BuildDispute(requestID uint64, orderID string, tradeIndex int, reason string) Message {
	kind := MessageKind{
		Version:    ProtocolVersion,
		ID:         &orderID,
		RequestID:  &requestID,
		TradeIndex: &tradeIndex,
		Action:     ActionDispute,
	}
	if reason != "" {
		kind.Payload = Payload{Dispute: &reason}
	}
	return Message{Category: CategoryDispute, Kind: kind}
}

// BuildAddInvoice attaches a Lightning invoice the coordinator requested
// after a take-sell with no invoice was taken.
func BuildAddInvoice(requestID uint64, orderID string, tradeIndex int, invoice string, amount *int64) Message {
	return Message{
		Category: CategoryOrder,
		Kind: MessageKind{
			Version:    ProtocolVersion,
			ID:         &orderID,
			RequestID:  &requestID,
			TradeIndex: &tradeIndex,
			Action:     ActionAddInvoice,
			Payload:    Payload{PaymentRequest: &PaymentRequest{Invoice: invoice, Amount: amount}},
		},
	}
}

// BuildLastTradeIndex constructs the session-restore bootstrap query.
func BuildLastTradeIndex(requestID uint64) Message {
	return Message{
		Category: CategoryRestore,
		Kind: MessageKind{
			Version:   ProtocolVersion,
			RequestID: &requestID,
			Action:    ActionLastTradeIndex,
		},
	}
}

// BuildRestoreSession constructs the restore-session request, issued at the
// trade index whose orders/disputes should be returned.
func BuildRestoreSession(requestID uint64, tradeIndex int) Message {
	return Message{
		Category: CategoryRestore,
		Kind: MessageKind{
			Version:    ProtocolVersion,
			RequestID:  &requestID,
			TradeIndex: &tradeIndex,
			Action:     ActionRestoreSession,
		},
	}
}

// BuildDisputeChat constructs an in-dispute chat message routed through the
// coordinator (category dispute, not the peer-to-peer chat envelope).
func BuildDisputeChat(requestID uint64, disputeID string, tradeIndex int, text string) Message {
	return Message{
		Category: CategoryDispute,
		Kind: MessageKind{
			Version:    ProtocolVersion,
			ID:         &disputeID,
			RequestID:  &requestID,
			TradeIndex: &tradeIndex,
			Action:     ActionSendDm,
			Payload:    Payload{TextMessage: &text},
		},
	}
}
