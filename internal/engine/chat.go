package engine

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/mostro-trade/mostro-client/internal/chat"
	"github.com/mostro-trade/mostro-client/internal/relay"
)

// chatWrapSince bounds how far back PollChat looks for prior lines,
// matching the gift-wrap receive window since chat wraps use the same
// tweaked-timestamp scheme (spec §4.E).
const chatWrapSince = defaultPollWindow

// SendChat sends one peer-to-peer chat line to the counterparty on a trade,
// addressed via the ECDH shared pubkey so neither the coordinator nor relays
// can link it to either side's trade key (spec §4.E).
func (e *Engine) SendChat(ctx context.Context, myTradeIndex uint32, peerTradeXOnly [32]byte, text string) error {
	mine, err := e.keys.TradeKeypair(myTradeIndex)
	if err != nil {
		return err
	}
	shared, err := chat.SharedIdentity(mine.Private, peerTradeXOnly)
	if err != nil {
		return err
	}
	wrap, err := chat.Build(mine.Private, chat.SharedPubKey(shared), text)
	if err != nil {
		return err
	}
	return e.pool.Publish(ctx, wrap)
}

// PollChat fetches and decrypts every chat line addressed to the shared
// pubkey between myTradeIndex and the counterparty.
func (e *Engine) PollChat(ctx context.Context, myTradeIndex uint32, peerTradeXOnly [32]byte) ([]*chat.Inbound, error) {
	mine, err := e.keys.TradeKeypair(myTradeIndex)
	if err != nil {
		return nil, err
	}
	shared, err := chat.SharedIdentity(mine.Private, peerTradeXOnly)
	if err != nil {
		return nil, err
	}
	sharedPub := chat.SharedPubKey(shared)

	since := time.Now().Add(-chatWrapSince).Unix()
	events, err := e.pool.Query(ctx, relay.Filter{
		Kinds: []int{chat.KindChatWrap},
		Tags:  map[string][]string{"p": {hex.EncodeToString(sharedPub[:])}},
		Since: &since,
	})
	if err != nil {
		return nil, err
	}

	var lines []*chat.Inbound
	for _, evt := range events {
		inbound, err := chat.Open(shared, evt)
		if err != nil {
			e.log.Debug("skipping undecryptable chat wrap", "error", err)
			continue
		}
		lines = append(lines, inbound)
	}
	return lines, nil
}
