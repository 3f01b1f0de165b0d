package mostro

import (
	"encoding/json"
	"fmt"
)

// Category is the top-level tagged variant of a Message (spec §3).
type Category string

const (
	CategoryOrder   Category = "order"
	CategoryDispute Category = "dispute"
	CategoryCantDo  Category = "cant-do"
	CategoryRate    Category = "rate"
	CategoryDM      Category = "dm"
	CategoryRestore Category = "restore"
	// CategoryUnknown marks a category this client does not recognize; the
	// message is logged and skipped rather than treated as a hard error
	// (spec §4.F "tolerate coordinator version skew").
	CategoryUnknown Category = "unknown"
)

// Action enumerates every action this client can build or recognize.
type Action string

const (
	ActionNewOrder                        Action = "new-order"
	ActionTakeSell                         Action = "take-sell"
	ActionTakeBuy                          Action = "take-buy"
	ActionFiatSent                         Action = "fiat-sent"
	ActionFiatSentOk                       Action = "fiat-sent-ok"
	ActionRelease                          Action = "release"
	ActionReleased                         Action = "released"
	ActionCancel                           Action = "cancel"
	ActionCanceled                         Action = "canceled"
	ActionCooperativeCancelInitiatedByYou  Action = "cooperative-cancel-initiated-by-you"
	ActionCooperativeCancelInitiatedByPeer Action = "cooperative-cancel-initiated-by-peer"
	ActionCooperativeCancelAccepted        Action = "cooperative-cancel-accepted"
	ActionDispute                          Action = "dispute"
	ActionAdminCancel                      Action = "admin-cancel"
	ActionAdminSettle                      Action = "admin-settle"
	ActionAdminAddSolver                   Action = "admin-add-solver"
	ActionRateUser                         Action = "rate-user"
	ActionRateReceived                     Action = "rate-received"
	ActionAddInvoice                       Action = "add-invoice"
	ActionPayInvoice                       Action = "pay-invoice"
	ActionPaymentFailed                    Action = "payment-failed"
	ActionPurchaseCompleted                Action = "purchase-completed"
	ActionCantDo                           Action = "cant-do"
	ActionLastTradeIndex                   Action = "last-trade-index"
	ActionRestoreSession                   Action = "restore-session"
	ActionSendDm                           Action = "send-dm"
	ActionUnknown                          Action = "unknown"
)

const ProtocolVersion = 1

// MessageKind is the common envelope carried by every category (spec §3).
type MessageKind struct {
	Version    int     `json:"version"`
	ID         *string `json:"id,omitempty"`
	RequestID  *uint64 `json:"request_id,omitempty"`
	TradeIndex *int    `json:"trade_index,omitempty"`
	Action     Action  `json:"action"`
	Payload    Payload `json:"payload,omitempty"`
}

// Message is the top-level tagged variant: {<category>: MessageKind}.
type Message struct {
	Category Category
	Kind     MessageKind
}

// MarshalJSON emits {"<category>": {...}}.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]MessageKind{string(m.Category): m.Kind})
}

// UnmarshalJSON decodes a single-key category object. An unrecognized
// category maps to CategoryUnknown rather than failing (spec §4.F).
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("message is not an object: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("expected exactly one category key, got %d", len(raw))
	}
	for key, v := range raw {
		var kind MessageKind
		if err := json.Unmarshal(v, &kind); err != nil {
			return fmt.Errorf("decode message kind: %w", err)
		}
		cat := Category(key)
		if !validCategory(cat) {
			cat = CategoryUnknown
			kind.Action = ActionUnknown
		} else if !validAction(kind.Action) {
			kind.Action = ActionUnknown
		}
		m.Category = cat
		m.Kind = kind
	}
	return nil
}

func validCategory(c Category) bool {
	switch c {
	case CategoryOrder, CategoryDispute, CategoryCantDo, CategoryRate, CategoryDM, CategoryRestore:
		return true
	}
	return false
}

func validAction(a Action) bool {
	switch a {
	case ActionNewOrder, ActionTakeSell, ActionTakeBuy, ActionFiatSent, ActionFiatSentOk,
		ActionRelease, ActionReleased, ActionCancel, ActionCanceled,
		ActionCooperativeCancelInitiatedByYou, ActionCooperativeCancelInitiatedByPeer,
		ActionCooperativeCancelAccepted, ActionDispute, ActionAdminCancel, ActionAdminSettle,
		ActionAdminAddSolver, ActionRateUser, ActionRateReceived, ActionAddInvoice,
		ActionPayInvoice, ActionPaymentFailed, ActionPurchaseCompleted, ActionCantDo,
		ActionLastTradeIndex, ActionRestoreSession, ActionSendDm:
		return true
	}
	return false
}
