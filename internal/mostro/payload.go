// Package mostro implements the Protocol Messages component (spec §4.F):
// versioned tagged-variant requests/responses, builders, parsing, and
// request-id correlation.
package mostro

import (
	"encoding/json"
	"fmt"
)

// OrderKind distinguishes a buy order from a sell order.
type OrderKind string

const (
	KindBuy  OrderKind = "buy"
	KindSell OrderKind = "sell"
)

// OrderStatus mirrors the coordinator's order lifecycle states.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusWaitingBuyerInvoice OrderStatus = "waiting-buyer-invoice"
	StatusWaitingPayment      OrderStatus = "waiting-payment"
	StatusActive    OrderStatus = "active"
	StatusFiatSent  OrderStatus = "fiat-sent"
	StatusSettled   OrderStatus = "settled"
	StatusSuccess   OrderStatus = "success"
	StatusCanceled  OrderStatus = "canceled"
	StatusDispute   OrderStatus = "dispute"
	StatusExpired   OrderStatus = "expired"
)

// SmallOrder is the compact order representation carried in protocol
// payloads (spec §3).
type SmallOrder struct {
	ID                *string      `json:"id,omitempty"`
	Kind              OrderKind    `json:"kind"`
	Status            *OrderStatus `json:"status,omitempty"`
	AmountSats        int64        `json:"amount"`
	FiatCode          string       `json:"fiat_code"`
	MinAmount         *int64       `json:"min_amount,omitempty"`
	MaxAmount         *int64       `json:"max_amount,omitempty"`
	FiatAmount        int64        `json:"fiat_amount"`
	PaymentMethod     string       `json:"payment_method"`
	PremiumPercent    int          `json:"premium,omitempty"`
	BuyerTradePubkey  *string      `json:"buyer_trade_pubkey,omitempty"`
	SellerTradePubkey *string      `json:"seller_trade_pubkey,omitempty"`
	BuyerInvoice      *string      `json:"buyer_invoice,omitempty"`
	CreatedAt         *int64       `json:"created_at,omitempty"`
	ExpiresAt         *int64       `json:"expires_at,omitempty"`
}

// IsRangeOrder reports whether this is a min/max range order (fiat_amount is
// implicit, picked by the taker within [min_amount, max_amount]).
func (o SmallOrder) IsRangeOrder() bool {
	return o.FiatAmount == 0 && o.MinAmount != nil && o.MaxAmount != nil
}

// Peer carries a counterparty's trade pubkey plus an opportunistically
// decoded reputation summary (spec §4.F supplement).
type Peer struct {
	PubKey       string `json:"pubkey"`
	TotalReviews *int   `json:"total_reviews,omitempty"`
	TotalRating  *float64 `json:"total_rating,omitempty"`
}

// PaymentFailedInfo reports a Lightning payment-retry schedule.
type PaymentFailedInfo struct {
	PaymentAttempts int `json:"payment_attempts"`
	PaymentRetryInterval int `json:"payment_retries_interval"`
}

// RestoreData is the response shape of a restore-session request.
type RestoreData struct {
	Orders    []RestoredOrder    `json:"orders"`
	Disputes  []RestoredDispute  `json:"disputes"`
}

// RestoredOrder is one order entry inside a restore-session response.
type RestoredOrder struct {
	ID         string      `json:"id"`
	TradeIndex uint32      `json:"trade_index"`
	Status     OrderStatus `json:"status"`
}

// RestoredDispute is one dispute entry inside a restore-session response.
type RestoredDispute struct {
	ID         string `json:"id"`
	TradeIndex uint32 `json:"trade_index"`
}

// PaymentRequest is the {payment_request: [order?, invoice, amount?]} payload
// shape used by take_sell.
type PaymentRequest struct {
	Order   *SmallOrder `json:"order,omitempty"`
	Invoice string      `json:"invoice"`
	Amount  *int64      `json:"amount,omitempty"`
}

// NextTrade is the {next_trade: [pubkey, index]} payload shape.
type NextTrade struct {
	PubKey string `json:"pubkey"`
	Index  uint32 `json:"index"`
}

// Payload is the tagged variant over every recognized payload shape (spec
// §3). At most one field is set; it marshals/unmarshals as a single-key JSON
// object ({"order": {...}}), matching the coordinator's externally-tagged
// enum wire format. A Payload with every field nil marshals as JSON null,
// matching an absent payload.
type Payload struct {
	Order          *SmallOrder        `json:"-"`
	PaymentRequest *PaymentRequest    `json:"-"`
	TextMessage    *string            `json:"-"`
	Peer           *Peer              `json:"-"`
	RatingUser     *int               `json:"-"`
	Amount         *int64             `json:"-"`
	Dispute        *string            `json:"-"`
	CantDo         *string            `json:"-"`
	NextTrade      *NextTrade         `json:"-"`
	PaymentFailed  *PaymentFailedInfo `json:"-"`
	RestoreData    *RestoreData       `json:"-"`
	IDs            []string           `json:"-"`
	Orders         []SmallOrder       `json:"-"`
}

func (p Payload) isEmpty() bool {
	return p.Order == nil && p.PaymentRequest == nil && p.TextMessage == nil &&
		p.Peer == nil && p.RatingUser == nil && p.Amount == nil &&
		p.Dispute == nil && p.CantDo == nil && p.NextTrade == nil &&
		p.PaymentFailed == nil && p.RestoreData == nil &&
		p.IDs == nil && p.Orders == nil
}

// MarshalJSON emits the single set variant as a one-key object, or null if
// the payload is absent.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.isEmpty() {
		return []byte("null"), nil
	}
	m := map[string]interface{}{}
	switch {
	case p.Order != nil:
		m["order"] = p.Order
	case p.PaymentRequest != nil:
		m["payment_request"] = [3]interface{}{p.PaymentRequest.Order, p.PaymentRequest.Invoice, p.PaymentRequest.Amount}
	case p.TextMessage != nil:
		m["text_message"] = *p.TextMessage
	case p.Peer != nil:
		m["peer"] = p.Peer
	case p.RatingUser != nil:
		m["rating_user"] = *p.RatingUser
	case p.Amount != nil:
		m["amount"] = *p.Amount
	case p.Dispute != nil:
		m["dispute"] = *p.Dispute
	case p.CantDo != nil:
		m["cant_do"] = *p.CantDo
	case p.NextTrade != nil:
		m["next_trade"] = [2]interface{}{p.NextTrade.PubKey, p.NextTrade.Index}
	case p.PaymentFailed != nil:
		m["payment_failed"] = p.PaymentFailed
	case p.RestoreData != nil:
		m["restore_data"] = p.RestoreData
	case p.IDs != nil:
		m["ids"] = p.IDs
	case p.Orders != nil:
		m["orders"] = p.Orders
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes a single-key payload object (or null) back into the
// matching field. An unrecognized key is not an error — it is left
// unrecognized (every field nil) so the parser can log-and-skip (spec §4.F).
func (p *Payload) UnmarshalJSON(data []byte) error {
	*p = Payload{}
	if string(data) == "null" {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("payload is not an object: %w", err)
	}
	for key, v := range raw {
		switch key {
		case "order":
			var o SmallOrder
			if err := json.Unmarshal(v, &o); err != nil {
				return err
			}
			p.Order = &o
		case "payment_request":
			var tuple [3]json.RawMessage
			if err := json.Unmarshal(v, &tuple); err != nil {
				return err
			}
			pr := &PaymentRequest{}
			if len(tuple) > 0 && string(tuple[0]) != "null" {
				var o SmallOrder
				if err := json.Unmarshal(tuple[0], &o); err == nil {
					pr.Order = &o
				}
			}
			if len(tuple) > 1 {
				_ = json.Unmarshal(tuple[1], &pr.Invoice)
			}
			if len(tuple) > 2 && string(tuple[2]) != "null" {
				var amt int64
				if err := json.Unmarshal(tuple[2], &amt); err == nil {
					pr.Amount = &amt
				}
			}
			p.PaymentRequest = pr
		case "text_message":
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}
			p.TextMessage = &s
		case "peer":
			var pe Peer
			if err := json.Unmarshal(v, &pe); err != nil {
				return err
			}
			p.Peer = &pe
		case "rating_user":
			var r int
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			p.RatingUser = &r
		case "amount":
			var a int64
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			p.Amount = &a
		case "dispute":
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}
			p.Dispute = &s
		case "cant_do":
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}
			p.CantDo = &s
		case "next_trade":
			var tuple [2]json.RawMessage
			if err := json.Unmarshal(v, &tuple); err != nil {
				return err
			}
			nt := &NextTrade{}
			_ = json.Unmarshal(tuple[0], &nt.PubKey)
			_ = json.Unmarshal(tuple[1], &nt.Index)
			p.NextTrade = nt
		case "payment_failed":
			var pf PaymentFailedInfo
			if err := json.Unmarshal(v, &pf); err != nil {
				return err
			}
			p.PaymentFailed = &pf
		case "restore_data":
			var rd RestoreData
			if err := json.Unmarshal(v, &rd); err != nil {
				return err
			}
			p.RestoreData = &rd
		case "ids":
			var ids []string
			if err := json.Unmarshal(v, &ids); err != nil {
				return err
			}
			p.IDs = ids
		case "orders":
			var os []SmallOrder
			if err := json.Unmarshal(v, &os); err != nil {
				return err
			}
			p.Orders = os
		}
	}
	return nil
}
