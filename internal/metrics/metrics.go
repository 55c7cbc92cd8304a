// Package metrics holds the Prometheus collectors of the coin economy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for BotActions.
const (
	OutcomeApplied = "applied"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

var (
	BotActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yoforex_bot_actions_total",
		Help: "Bot actions attempted by the behavior engine, by action type and outcome.",
	}, []string{"action", "outcome"})

	TreasurySpend = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yoforex_treasury_spend_coins_total",
		Help: "Coins spent from the treasury through authorized spends.",
	})

	TreasuryRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yoforex_treasury_rejected_total",
		Help: "Spend requests rejected by the treasury, by reason.",
	}, []string{"reason"})

	VaultUnlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yoforex_vault_unlocked_total",
		Help: "Vault entries moved from locked to unlocked.",
	})

	BadgesAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yoforex_badges_awarded_total",
		Help: "Badges awarded, by badge type.",
	}, []string{"badge"})

	BotTickSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "yoforex_bot_tick_seconds",
		Help:    "Duration of a bot engine tick.",
		Buckets: prometheus.DefBuckets,
	})
)
