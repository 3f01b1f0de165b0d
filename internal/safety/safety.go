// Package safety implements the Safety Envelope (spec §4.I): trade-size and
// frequency limits, market-price deviation checks, and the append-only audit
// journal.
package safety

import (
	"fmt"
	"math"
	"time"

	"github.com/mostro-trade/mostro-client/internal/config"
	"github.com/mostro-trade/mostro-client/internal/mostroerr"
	"github.com/mostro-trade/mostro-client/internal/oracle"
	"github.com/mostro-trade/mostro-client/internal/store"
	"github.com/mostro-trade/mostro-client/pkg/logging"
)

// Envelope enforces trading limits and records the audit journal for a
// single client data directory.
type Envelope struct {
	limits  config.Limits
	dataDir string
	oracle  *oracle.Client
	maxDeviation float64
	log     *logging.Logger
}

// New constructs an Envelope from the client configuration.
func New(cfg *config.MostroConfig, dataDir string, priceOracle *oracle.Client) *Envelope {
	return &Envelope{
		limits:       cfg.Limits,
		dataDir:      dataDir,
		oracle:       priceOracle,
		maxDeviation: cfg.MaxPremiumDeviation,
		log:          logging.Default().Component("safety"),
	}
}

// CheckLimit enforces the four trade-size/frequency rules against the
// persisted trade state (spec §4.I "Limit check"). It does not mutate state;
// call RecordTrade after the action actually succeeds.
func (e *Envelope) CheckLimit(state *store.TradeState, amountSats int64, now time.Time) error {
	if amountSats > e.limits.MaxTradeAmountSats {
		return mostroerr.New(mostroerr.LimitExceeded,
			fmt.Sprintf("trade amount %d sats exceeds max_trade_amount_sats %d", amountSats, e.limits.MaxTradeAmountSats))
	}
	if state.TodayVolume(now)+amountSats > e.limits.MaxDailyVolumeSats {
		return mostroerr.New(mostroerr.LimitExceeded,
			fmt.Sprintf("today's volume would exceed max_daily_volume_sats %d", e.limits.MaxDailyVolumeSats))
	}
	if state.TodayTrades(now) >= e.limits.MaxTradesPerDay {
		return mostroerr.New(mostroerr.LimitExceeded,
			fmt.Sprintf("today's trade count reached max_trades_per_day %d", e.limits.MaxTradesPerDay))
	}
	if !state.LastTradeAt.IsZero() && now.Sub(state.LastTradeAt) < e.limits.CooldownDuration() {
		return mostroerr.New(mostroerr.LimitExceeded,
			fmt.Sprintf("cooldown_seconds %d not yet elapsed since last trade", e.limits.CooldownSeconds))
	}
	return nil
}

// RecordTrade updates and persists the daily counters after a trade
// actually proceeds.
func (e *Envelope) RecordTrade(state *store.TradeState, amountSats int64, now time.Time) error {
	state.RecordTrade(now, amountSats)
	return state.Save(e.dataDir)
}

// CheckPriceDeviation compares a declared premium, or a computed effective
// price, against the market price fetched from the oracle (spec §4.I
// "Market-price deviation"). An unreachable oracle always passes with a
// warning — it must never block trading.
func (e *Envelope) CheckPriceDeviation(fiatCode string, premiumPercent int, hasPremium bool, amountSats, fiatAmount int64) error {
	market, err := e.oracle.Price(fiatCode)
	if err != nil {
		e.log.Warn("price oracle unreachable, skipping deviation check", "fiat_code", fiatCode, "error", err)
		return nil
	}

	var deviationPercent float64
	if hasPremium {
		deviationPercent = math.Abs(float64(premiumPercent))
	} else if amountSats > 0 && fiatAmount > 0 {
		effectivePrice := float64(fiatAmount) / (float64(amountSats) / 1e8)
		deviationPercent = math.Abs((effectivePrice - market) / market * 100)
	} else {
		return nil
	}

	if deviationPercent > e.maxDeviation {
		return mostroerr.New(mostroerr.PriceDeviation,
			fmt.Sprintf("price deviates %.2f%% from market, exceeding max_premium_deviation %.2f%%", deviationPercent, e.maxDeviation))
	}
	return nil
}

// Audit appends one outcome entry to the audit journal.
func (e *Envelope) Audit(entry store.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	return store.AppendAudit(e.dataDir, entry)
}
