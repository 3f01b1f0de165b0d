// Package engine implements the Trade Engine (spec §4.H): it orchestrates
// the user-facing actions (create, take, cancel, fiat-sent, release, rate,
// dispute, add-invoice, peer-to-peer chat, restore-session, query-status) by
// wiring together the Key Hierarchy, Protocol Messages, Gift-Wrap Envelope,
// Safety Envelope, price oracle, persisted state, and relay transport. No
// engine method sends a dispute-chat message (mostro.BuildDisputeChat is not
// called from this package).
//
// Grounded on the orchestration style of the teacher's internal/node
// package (swap_handler.go's numbered message-type dispatch, retry_worker.go's
// bounded-wait-then-fetch polling loop), adapted from a libp2p pubsub/stream
// handler to the gift-wrap publish/poll/dispatch cycle this protocol requires.
package engine

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/mostro-trade/mostro-client/internal/config"
	"github.com/mostro-trade/mostro-client/internal/giftwrap"
	"github.com/mostro-trade/mostro-client/internal/keys"
	"github.com/mostro-trade/mostro-client/internal/mostro"
	"github.com/mostro-trade/mostro-client/internal/mostroerr"
	"github.com/mostro-trade/mostro-client/internal/oracle"
	"github.com/mostro-trade/mostro-client/internal/relay"
	"github.com/mostro-trade/mostro-client/internal/safety"
	"github.com/mostro-trade/mostro-client/internal/store"
	"github.com/mostro-trade/mostro-client/internal/tradeindex"
	"github.com/mostro-trade/mostro-client/pkg/logging"
)

// defaultPollWindow satisfies the gift-wrap receive-side requirement that the
// query window be at least 3 days regardless of the caller's requested
// window, since wraps carry tweaked past timestamps (spec §4.D "Receive").
const defaultPollWindow = 3 * 24 * time.Hour

// defaultPollDelay is the bounded wait between publishing a request and
// fetching replies (spec §4.H step 5: "5-8s depending on action").
const defaultPollDelay = 6 * time.Second

// Engine drives one client session's trading actions against a single
// configured coordinator.
type Engine struct {
	cfg          *config.MostroConfig
	keys         *keys.Hierarchy
	pool         *relay.Pool
	safety       *safety.Envelope
	oracle       *oracle.Client
	store        *store.Store
	tradeIndex   *tradeindex.Map
	mostroPubKey [32]byte
	log          *logging.Logger
	// pollDelay is the bounded wait before fetching replies; defaultPollDelay
	// unless a test overrides it to avoid slow component tests.
	pollDelay time.Duration
}

// New constructs an Engine. mostroPubKeyHex is the coordinator's x-only
// public key, as configured (spec §6 "mostro_pubkey").
func New(cfg *config.MostroConfig, h *keys.Hierarchy, pool *relay.Pool, safetyEnvelope *safety.Envelope, priceOracle *oracle.Client, st *store.Store, mostroPubKeyHex string) (*Engine, error) {
	xOnly, err := decodeXOnly(mostroPubKeyHex)
	if err != nil {
		return nil, mostroerr.Wrap(mostroerr.ConfigInvalid, "invalid mostro_pubkey", err)
	}
	return &Engine{
		cfg:          cfg,
		keys:         h,
		pool:         pool,
		safety:       safetyEnvelope,
		oracle:       priceOracle,
		store:        st,
		tradeIndex:   tradeindex.New(st),
		mostroPubKey: xOnly,
		log:          logging.Default().Component("engine"),
		pollDelay:    defaultPollDelay,
	}, nil
}

// Outcome is the structured result of one action, suitable for the
// caller to print or log (spec §4.H step 6, §7 "structured outcome line").
type Outcome struct {
	Action      mostro.Action
	OrderID     string
	Stale       bool
	Message     string
	Reply       *mostro.Message
}

// Close releases the relay pool (spec §4.H step 7: "always release relay
// connections on completion, success or failure").
func (e *Engine) Close() error {
	return e.pool.Close()
}

// estimateSats resolves an action's estimated trade size in satoshis, either
// from a fixed amount or by converting a fiat amount at the current oracle
// price, falling back to a conservative rate if the oracle is unreachable
// (spec §4.H step 2).
func (e *Engine) estimateSats(fixedSats, fiatAmount int64, fiatCode string) int64 {
	if fixedSats > 0 {
		return fixedSats
	}
	if fiatAmount <= 0 {
		return 0
	}
	satsPerUnit := e.oracle.PriceOrFallback(fiatCode)
	if satsPerUnit <= 0 {
		return 0
	}
	return int64(float64(fiatAmount) / satsPerUnit * 1e8)
}

// sendAndAwait publishes msg signed by trade (and sealed with identity if
// reputation mode is requested), waits the bounded poll delay, fetches
// gift-wrapped replies, and correlates by request-id with the staleness
// fallback (spec §4.H steps 4-5, §4.F "Correlation policy").
func (e *Engine) sendAndAwait(ctx context.Context, trade *keys.KeyPair, identity *btcec.PrivateKey, msg mostro.Message, expected mostro.Action) (mostro.MatchResult, error) {
	requestID := *msg.Kind.RequestID

	wrap, err := giftwrap.Build(giftwrap.DefaultConfig(), e.mostroPubKey, msg, trade.Private, identity)
	if err != nil {
		return mostro.MatchResult{}, fmt.Errorf("build gift wrap: %w", err)
	}
	if err := e.pool.Publish(ctx, wrap); err != nil {
		return mostro.MatchResult{}, err
	}

	select {
	case <-time.After(e.pollDelay):
	case <-ctx.Done():
		return mostro.MatchResult{}, ctx.Err()
	}

	myPubHex := hex.EncodeToString(trade.XOnly[:])
	since := time.Now().Add(-defaultPollWindow).Unix()
	events, err := e.pool.Query(ctx, relay.Filter{
		Kinds: []int{giftwrap.DefaultWrapKind},
		Tags:  map[string][]string{"p": {myPubHex}},
		Since: &since,
	})
	if err != nil {
		return mostro.MatchResult{}, err
	}

	var candidates []mostro.Received
	now := time.Now()
	for _, evt := range events {
		inbound, err := giftwrap.Open(trade.Private, evt)
		if err != nil {
			e.log.Debug("skipping undecryptable gift wrap", "error", err)
			continue
		}
		candidates = append(candidates, mostro.Received{
			Message:    &inbound.Message,
			ReceivedAt: time.Unix(inbound.RumorCreatedAt, 0),
		})
	}

	result, ok := mostro.Match(candidates, requestID, expected, now, mostro.DefaultStalenessThreshold)
	if !ok {
		return mostro.MatchResult{}, mostroerr.New(mostroerr.Timeout, fmt.Sprintf("no %s reply received", expected))
	}
	if result.Stale {
		e.log.Warn("correlation fell back to a stale reply", "action", expected)
	}
	return result, nil
}

// audit records a final outcome for an action (spec §4.I "every attempted
// action records exactly one entry with a final outcome").
func (e *Engine) audit(action, orderID string, result store.AuditResult, details string) {
	if err := e.safety.Audit(store.AuditEntry{
		Action:  action,
		OrderID: orderID,
		Result:  result,
		Details: details,
	}); err != nil {
		e.log.Error("failed to write audit entry", "error", err)
	}
}

func decodeXOnly(hexStr string) ([32]byte, error) {
	var out [32]byte
	if len(hexStr) != 64 {
		return out, fmt.Errorf("expected 64 hex characters, got %d", len(hexStr))
	}
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}
