// Package orderbook derives structured order entries from the coordinator's
// publicly tagged order events (spec §4.G), and translates order queries
// into relay tag filters.
package orderbook

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mostro-trade/mostro-client/internal/mostroerr"
	"github.com/mostro-trade/mostro-client/internal/relayevent"
)

// Discriminator is the required value of the "z" tag on every order event.
const Discriminator = "order"

// Rating is the opportunistically-decoded shape of the "rating" tag's JSON
// string (spec §4.G: "opaque... consumers may attempt to decode").
type Rating struct {
	TotalReviews int     `json:"total_reviews"`
	TotalRating  float64 `json:"total_rating"`
}

// Entry is one parsed public order.
type Entry struct {
	ID            string
	Kind          string // "buy" or "sell"
	Currency      string
	Status        string
	AmountSats    int64
	FiatAmount    string // may be "min-max" for a range order
	PaymentMethods []string
	Premium       int
	Rating        *Rating
	Network       string
	Layer         string
	Platform      string
	ExpiresAt     *int64
}

// IsRangeOrder reports whether FiatAmount encodes a "min-max" range.
func (e Entry) IsRangeOrder() bool {
	return strings.Contains(e.FiatAmount, "-")
}

// Parse derives an Entry from a public order event's tag set. It returns an
// error if the event is not a valid order event (wrong discriminator,
// missing required tags, or malformed numeric fields).
func Parse(e *relayevent.Event) (*Entry, error) {
	z, _ := e.FindTag("z")
	if z != Discriminator {
		return nil, mostroerr.New(mostroerr.Unknown, fmt.Sprintf("not an order event: z=%q", z))
	}

	id, ok := e.FindTag("d")
	if !ok {
		return nil, mostroerr.New(mostroerr.Unknown, "order event missing d tag")
	}
	kind, _ := e.FindTag("k")
	currency, _ := e.FindTag("f")
	status, _ := e.FindTag("s")
	amtStr, _ := e.FindTag("amt")
	fiatAmount, _ := e.FindTag("fa")
	premiumStr, _ := e.FindTag("premium")
	network, _ := e.FindTag("network")
	layer, _ := e.FindTag("layer")
	platform, _ := e.FindTag("y")

	amt, err := strconv.ParseInt(amtStr, 10, 64)
	if err != nil && amtStr != "" {
		return nil, mostroerr.Wrap(mostroerr.Unknown, "invalid amt tag", err)
	}
	premium, err := strconv.Atoi(premiumStr)
	if err != nil && premiumStr != "" {
		return nil, mostroerr.Wrap(mostroerr.Unknown, "invalid premium tag", err)
	}

	entry := &Entry{
		ID:             id,
		Kind:           kind,
		Currency:       strings.ToUpper(currency),
		Status:         status,
		AmountSats:     amt,
		FiatAmount:     fiatAmount,
		PaymentMethods: e.FindTagValues("pm"),
		Premium:        premium,
		Network:        network,
		Layer:          layer,
		Platform:       platform,
	}

	if ratingRaw, ok := e.FindTag("rating"); ok && ratingRaw != "" {
		var r Rating
		if err := json.Unmarshal([]byte(ratingRaw), &r); err == nil {
			entry.Rating = &r
		}
		// A malformed rating tag is not fatal — rating is opaque and
		// best-effort per spec §4.G.
	}

	if expiresStr, ok := e.FindTag("expires_at"); ok {
		if expires, err := strconv.ParseInt(expiresStr, 10, 64); err == nil {
			entry.ExpiresAt = &expires
		}
	}

	return entry, nil
}

// ParseAll parses every event in events, skipping (not failing on) entries
// that do not parse as valid order events.
func ParseAll(events []*relayevent.Event) []*Entry {
	var out []*Entry
	for _, e := range events {
		entry, err := Parse(e)
		if err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// Filter is a query over the order book, translated into relay tag filters.
type Filter struct {
	Status       string
	Kind         string
	Currency     string
	CoordinatorPubKey string
}

// TagFilter is the wire shape accepted by a relay subscription/query.
type TagFilter struct {
	Authors []string            `json:"authors,omitempty"`
	Kinds   []int               `json:"kinds,omitempty"`
	Tags    map[string][]string `json:"-"`
}

// MarshalJSON flattens Tags into the relay convention of "#<name>" keys
// alongside authors/kinds.
func (f TagFilter) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	for name, values := range f.Tags {
		m["#"+name] = values
	}
	return json.Marshal(m)
}

// ToTagFilter translates an order-book Filter into the relay query shape:
// status -> #s, kind -> #k, currency -> #f, plus the fixed #z=order
// discriminator and the coordinator's pubkey in authors (spec §4.G).
func (f Filter) ToTagFilter(orderEventKind int) TagFilter {
	tags := map[string][]string{"z": {Discriminator}}
	if f.Status != "" {
		tags["s"] = []string{f.Status}
	}
	if f.Kind != "" {
		tags["k"] = []string{f.Kind}
	}
	if f.Currency != "" {
		tags["f"] = []string{strings.ToUpper(f.Currency)}
	}
	tf := TagFilter{Kinds: []int{orderEventKind}, Tags: tags}
	if f.CoordinatorPubKey != "" {
		tf.Authors = []string{f.CoordinatorPubKey}
	}
	return tf
}
