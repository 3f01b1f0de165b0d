package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mostro-trade/mostro-client/internal/mostro"
	"github.com/mostro-trade/mostro-client/internal/store"
)

// CreateOrder issues a new_order request (spec §4.H steps 1-6, action "create").
// It validates against the Safety Envelope using the estimated trade size,
// allocates a fresh trade-key index, and records the coordinator-assigned
// order id for future lifecycle actions on success.
func (e *Engine) CreateOrder(ctx context.Context, in mostro.NewOrderInput) (Outcome, error) {
	amountEstimate := e.estimateSats(in.Amount, in.FiatAmount, in.FiatCode)
	if err := e.safety.CheckLimit(e.currentTradeState(), amountEstimate, time.Now()); err != nil {
		e.audit("create", "", store.AuditRejected, err.Error())
		return Outcome{}, err
	}
	hasPremium := in.PremiumPercent != 0
	if err := e.safety.CheckPriceDeviation(in.FiatCode, in.PremiumPercent, hasPremium, in.Amount, in.FiatAmount); err != nil {
		e.audit("create", "", store.AuditRejected, err.Error())
		return Outcome{}, err
	}

	trade, tradeIndexVal, err := e.keys.NextTradeKeypair()
	if err != nil {
		return Outcome{}, err
	}

	requestID, err := mostro.NewRequestID()
	if err != nil {
		return Outcome{}, err
	}
	msg := mostro.BuildNewOrder(requestID, in)

	result, err := e.sendAndAwait(ctx, trade, nil, msg, mostro.ActionNewOrder)
	if err != nil {
		e.audit("create", "", store.AuditFailed, err.Error())
		return Outcome{}, err
	}

	outcome := e.dispatch(result)
	if outcome.OrderID != "" {
		if err := e.tradeIndex.Record(outcome.OrderID, tradeIndexVal); err != nil {
			e.log.Error("failed to record order->trade-index mapping", "order_id", outcome.OrderID, "error", err)
		}
	}
	if outcome.Action != mostro.ActionCantDo {
		if err := e.safety.RecordTrade(e.currentTradeState(), amountEstimate, time.Now()); err != nil {
			e.log.Error("failed to record trade in safety envelope", "error", err)
		}
	}
	e.finishAudit("create", outcome)
	return outcome, nil
}

// TakeBuy issues a take_buy request against an existing buy order.
func (e *Engine) TakeBuy(ctx context.Context, orderID string, order mostro.SmallOrder, pickedAmount *int64) (Outcome, error) {
	return e.takeOrder(ctx, orderID, order, pickedAmount, func(requestID uint64, tradeIndexVal int) mostro.Message {
		return mostro.BuildTakeBuy(requestID, orderID, tradeIndexVal, order, pickedAmount)
	}, mostro.ActionTakeBuy)
}

// TakeSell issues a take_sell request against an existing sell order.
func (e *Engine) TakeSell(ctx context.Context, orderID string, order mostro.SmallOrder, invoice string, pickedAmount *int64) (Outcome, error) {
	return e.takeOrder(ctx, orderID, order, pickedAmount, func(requestID uint64, tradeIndexVal int) mostro.Message {
		return mostro.BuildTakeSell(requestID, orderID, tradeIndexVal, order, invoice, pickedAmount)
	}, mostro.ActionTakeSell)
}

func (e *Engine) takeOrder(ctx context.Context, orderID string, order mostro.SmallOrder, pickedAmount *int64, build func(requestID uint64, tradeIndexVal int) mostro.Message, expected mostro.Action) (Outcome, error) {
	var sats int64
	if pickedAmount != nil {
		sats = *pickedAmount
	} else {
		sats = order.AmountSats
	}
	if err := e.safety.CheckLimit(e.currentTradeState(), sats, time.Now()); err != nil {
		e.audit(string(expected), orderID, store.AuditRejected, err.Error())
		return Outcome{}, err
	}

	trade, tradeIndexVal, err := e.keys.NextTradeKeypair()
	if err != nil {
		return Outcome{}, err
	}

	requestID, err := mostro.NewRequestID()
	if err != nil {
		return Outcome{}, err
	}
	msg := build(requestID, int(tradeIndexVal))

	result, err := e.sendAndAwait(ctx, trade, nil, msg, expected)
	if err != nil {
		e.audit(string(expected), orderID, store.AuditFailed, err.Error())
		return Outcome{}, err
	}

	if err := e.tradeIndex.Record(orderID, tradeIndexVal); err != nil {
		e.log.Error("failed to record order->trade-index mapping", "order_id", orderID, "error", err)
	}

	outcome := e.dispatch(result)
	if outcome.Action != mostro.ActionCantDo {
		if err := e.safety.RecordTrade(e.currentTradeState(), sats, time.Now()); err != nil {
			e.log.Error("failed to record trade in safety envelope", "error", err)
		}
	}
	e.finishAudit(string(expected), outcome)
	return outcome, nil
}

// Cancel issues a cancel request for an existing order, using the trade
// index tracked with that order or index 1 as a documented fallback (spec
// §4.H step 3, §9).
func (e *Engine) Cancel(ctx context.Context, orderID string) (Outcome, error) {
	return e.existingTradeAction(ctx, orderID, mostro.ActionCanceled, func(requestID uint64, tradeIndexVal int) mostro.Message {
		return mostro.BuildCancel(requestID, orderID, tradeIndexVal)
	})
}

// FiatSent issues a fiat-sent request.
func (e *Engine) FiatSent(ctx context.Context, orderID string) (Outcome, error) {
	return e.existingTradeAction(ctx, orderID, mostro.ActionFiatSentOk, func(requestID uint64, tradeIndexVal int) mostro.Message {
		return mostro.BuildFiatSent(requestID, orderID, tradeIndexVal)
	})
}

// Release issues a release request.
func (e *Engine) Release(ctx context.Context, orderID string) (Outcome, error) {
	return e.existingTradeAction(ctx, orderID, mostro.ActionReleased, func(requestID uint64, tradeIndexVal int) mostro.Message {
		return mostro.BuildRelease(requestID, orderID, tradeIndexVal)
	})
}

// RateUser issues a rate-user request for a completed trade.
func (e *Engine) RateUser(ctx context.Context, orderID string, rating int) (Outcome, error) {
	return e.existingTradeAction(ctx, orderID, mostro.ActionRateReceived, func(requestID uint64, tradeIndexVal int) mostro.Message {
		return mostro.BuildRateUser(requestID, orderID, tradeIndexVal, rating)
	})
}

// Dispute issues a dispute request with an optional reason.
func (e *Engine) Dispute(ctx context.Context, orderID, reason string) (Outcome, error) {
	return e.existingTradeAction(ctx, orderID, mostro.ActionDispute, func(requestID uint64, tradeIndexVal int) mostro.Message {
		return mostro.BuildDispute(requestID, orderID, tradeIndexVal, reason)
	})
}

// AddInvoice attaches a Lightning invoice the coordinator requested after a
// take-sell with no invoice was supplied up front.
func (e *Engine) AddInvoice(ctx context.Context, orderID, invoice string, amount *int64) (Outcome, error) {
	return e.existingTradeAction(ctx, orderID, mostro.ActionAddInvoice, func(requestID uint64, tradeIndexVal int) mostro.Message {
		return mostro.BuildAddInvoice(requestID, orderID, tradeIndexVal, invoice, amount)
	})
}

// existingTradeAction resolves the trade-key index tracked with orderID
// (falling back to index 1, a documented limitation — spec §4.H step 3, §9),
// builds and sends the request, and dispatches the reply.
func (e *Engine) existingTradeAction(ctx context.Context, orderID string, expected mostro.Action, build func(requestID uint64, tradeIndexVal int) mostro.Message) (Outcome, error) {
	tradeIndexVal, ok, err := e.tradeIndex.Lookup(orderID)
	if err != nil {
		e.log.Error("trade-index lookup failed, falling back to index 1", "order_id", orderID, "error", err)
	}
	if !ok {
		e.log.Warn("no tracked trade-index for order, falling back to index 1 (spec §9 open question)", "order_id", orderID)
		tradeIndexVal = 1
	}

	trade, err := e.keys.TradeKeypair(tradeIndexVal)
	if err != nil {
		return Outcome{}, err
	}

	requestID, err := mostro.NewRequestID()
	if err != nil {
		return Outcome{}, err
	}
	msg := build(requestID, int(tradeIndexVal))

	result, err := e.sendAndAwait(ctx, trade, nil, msg, expected)
	if err != nil {
		e.audit(string(expected), orderID, store.AuditFailed, err.Error())
		return Outcome{}, err
	}

	outcome := e.dispatch(result)
	e.finishAudit(string(expected), outcome)
	return outcome, nil
}

// RestoreSession issues last-trade-index then restore-session, updating the
// local cursor to coordinator_last+1 (spec §4.H "Restore-session is
// special"). Only the trade key at the requesting index participates —
// orders created under other indices are not returned by the coordinator,
// a known server-side limitation (spec §9).
func (e *Engine) RestoreSession(ctx context.Context) (Outcome, error) {
	identity, err := e.keys.IdentityKeypair()
	if err != nil {
		return Outcome{}, err
	}

	lastIndexRequestID, err := mostro.NewRequestID()
	if err != nil {
		return Outcome{}, err
	}
	lastIndexMsg := mostro.BuildLastTradeIndex(lastIndexRequestID)

	lastIndexResult, err := e.sendAndAwait(ctx, identity, nil, lastIndexMsg, mostro.ActionLastTradeIndex)
	if err != nil {
		e.audit("restore-session", "", store.AuditFailed, err.Error())
		return Outcome{}, err
	}

	coordinatorLast := 0
	if lastIndexResult.Message.Kind.TradeIndex != nil {
		coordinatorLast = *lastIndexResult.Message.Kind.TradeIndex
	}
	restoreIndex := uint32(coordinatorLast + 1)
	e.keys.SetTradeIndex(restoreIndex)

	restoreTrade, err := e.keys.TradeKeypair(restoreIndex)
	if err != nil {
		return Outcome{}, err
	}

	restoreRequestID, err := mostro.NewRequestID()
	if err != nil {
		return Outcome{}, err
	}
	restoreMsg := mostro.BuildRestoreSession(restoreRequestID, int(restoreIndex))

	result, err := e.sendAndAwait(ctx, restoreTrade, nil, restoreMsg, mostro.ActionRestoreSession)
	if err != nil {
		e.audit("restore-session", "", store.AuditFailed, err.Error())
		return Outcome{}, err
	}

	outcome := e.dispatch(result)
	e.finishAudit("restore-session", outcome)
	return outcome, nil
}

// dispatch interprets a correlated reply per spec §4.H step 6.
func (e *Engine) dispatch(result mostro.MatchResult) Outcome {
	msg := result.Message
	outcome := Outcome{Action: msg.Kind.Action, Stale: result.Stale, Reply: msg}
	if msg.Kind.ID != nil {
		outcome.OrderID = *msg.Kind.ID
	}

	switch msg.Kind.Action {
	case mostro.ActionNewOrder:
		outcome.Message = "order created"
	case mostro.ActionPayInvoice:
		outcome.Message = "hold invoice ready for payment"
	case mostro.ActionAddInvoice:
		outcome.Message = "coordinator requests a Lightning invoice"
	case mostro.ActionFiatSentOk, mostro.ActionReleased, mostro.ActionPurchaseCompleted:
		outcome.Message = "trade advanced"
	case mostro.ActionCanceled, mostro.ActionCooperativeCancelInitiatedByYou:
		outcome.Message = "order canceled"
	case mostro.ActionRateReceived:
		outcome.Message = "rating recorded"
	case mostro.ActionCantDo:
		reason := ""
		if msg.Kind.Payload.CantDo != nil {
			reason = *msg.Kind.Payload.CantDo
		}
		outcome.Message = fmt.Sprintf("coordinator rejected: %s", reason)
	case mostro.ActionRestoreSession:
		outcome.Message = formatRestoreData(msg.Kind.Payload.RestoreData)
	default:
		outcome.Message = fmt.Sprintf("informational: %s", msg.Kind.Action)
	}
	return outcome
}

// formatRestoreData renders a restore-session reply's recovered orders and
// disputes as a human-readable summary (spec §4.H step 6, scenario 5: "output
// lists exactly that one order").
func formatRestoreData(data *mostro.RestoreData) string {
	if data == nil || (len(data.Orders) == 0 && len(data.Disputes) == 0) {
		return "session restored: no open orders or disputes"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "session restored: %d order(s)", len(data.Orders))
	for _, o := range data.Orders {
		fmt.Fprintf(&b, "\n  order %s (trade_index=%d) status=%s", o.ID, o.TradeIndex, o.Status)
	}
	if len(data.Disputes) > 0 {
		fmt.Fprintf(&b, "\n%d dispute(s)", len(data.Disputes))
		for _, d := range data.Disputes {
			fmt.Fprintf(&b, "\n  dispute %s (trade_index=%d)", d.ID, d.TradeIndex)
		}
	}
	return b.String()
}

// finishAudit records the action's final outcome (spec §4.I "every attempted
// action records exactly one entry with a final outcome").
func (e *Engine) finishAudit(action string, outcome Outcome) {
	result := store.AuditSuccess
	if outcome.Action == mostro.ActionCantDo {
		result = store.AuditFailed
	}
	e.audit(action, outcome.OrderID, result, outcome.Message)
}

func (e *Engine) currentTradeState() *store.TradeState {
	state, err := store.LoadOrCreateTradeState(e.dataDir())
	if err != nil {
		e.log.Error("failed to load trade state, using a fresh one", "error", err)
		return store.NewTradeState()
	}
	return state
}

func (e *Engine) dataDir() string {
	return e.cfg.DataDir
}
