// Package bots runs the bot behavior engine: a periodic tick that likes,
// follows and buys on behalf of the bot fleet, funded by the treasury.
package bots

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"yoforex/internal/config"
	"yoforex/internal/metrics"
	"yoforex/internal/models"
	"yoforex/internal/services"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrTickInProgress = errors.New("bot tick already in progress")

const tickLockKey = "bot_engine_tick"

// SellerSharePercent is the seller's cut of a bot purchase.
const SellerSharePercent = 80

type Options struct {
	NewContentWindow  time.Duration
	PriceCeiling      int64
	LikeReward        int64
	FollowReward      int64
	MaxLikesPerThread int
	FollowerCeiling   int64
	LockTTL           time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		NewContentWindow:  cfg.Bots.NewContentWindow,
		PriceCeiling:      cfg.Bots.PriceCeiling,
		LikeReward:        cfg.Bots.LikeReward,
		FollowReward:      cfg.Bots.FollowReward,
		MaxLikesPerThread: cfg.Bots.MaxLikesPerThread,
		FollowerCeiling:   cfg.Bots.FollowerCeiling,
		LockTTL:           cfg.Redis.LockTTL,
	}
}

type TickReport struct {
	RunID    string         `json:"run_id"`
	Planned  int            `json:"planned"`
	Applied  int            `json:"applied"`
	Skipped  int            `json:"skipped"`
	Failed   int            `json:"failed"`
	ByAction map[string]int `json:"by_action"`
	Duration time.Duration  `json:"duration"`
}

// skipError marks an intent whose gate failed inside its transaction.
type skipError struct {
	reason string
}

func (e *skipError) Error() string { return "skipped: " + e.reason }

func skip(format string, args ...any) error {
	return &skipError{reason: fmt.Sprintf(format, args...)}
}

type Engine struct {
	db       *gorm.DB
	treasury *services.TreasuryService
	wallet   *services.WalletService
	registry *services.BotService
	locker   Locker
	opts     Options
	policy   ProbabilityPolicy

	rngMu sync.Mutex
	rng   *rand.Rand
	now   func() time.Time
}

func NewEngine(db *gorm.DB, treasury *services.TreasuryService, wallet *services.WalletService, registry *services.BotService, locker Locker, opts Options) *Engine {
	seed := uint64(time.Now().UnixNano())
	return &Engine{
		db:       db,
		treasury: treasury,
		wallet:   wallet,
		registry: registry,
		locker:   locker,
		opts:     opts,
		policy:   LinearPolicy,
		rng:      rand.New(rand.NewPCG(seed, seed>>1)),
		now:      time.Now,
	}
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Tick runs one engine pass. Only one tick runs at a time across the
// deployment; a concurrent call gets ErrTickInProgress.
func (e *Engine) Tick(ctx context.Context) (*TickReport, error) {
	unlock, ok, err := e.locker.TryLock(ctx, tickLockKey, e.opts.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire tick lock: %w", err)
	}
	if !ok {
		return nil, ErrTickInProgress
	}
	defer unlock()

	start := time.Now()
	report := &TickReport{RunID: uuid.NewString(), ByAction: make(map[string]int)}
	log := zap.L().With(zap.String("run_id", report.RunID))

	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	e.rngMu.Lock()
	intents := Plan(snap, e.opts, e.policy, e.rng)
	e.rngMu.Unlock()
	report.Planned = len(intents)

	for _, in := range intents {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		err := e.apply(ctx, report.RunID, in)
		fields := []zap.Field{
			zap.Uint("bot_id", in.Bot.ID),
			zap.String("action", string(in.Action)),
			zap.Uint("target_id", in.TargetID),
		}
		var se *skipError
		switch {
		case err == nil:
			report.Applied++
			report.ByAction[string(in.Action)]++
			metrics.BotActions.WithLabelValues(string(in.Action), metrics.OutcomeApplied).Inc()
		case errors.As(err, &se):
			report.Skipped++
			metrics.BotActions.WithLabelValues(string(in.Action), metrics.OutcomeSkipped).Inc()
			log.Info("bot action skipped", append(fields, zap.String("reason", se.reason))...)
		default:
			report.Failed++
			metrics.BotActions.WithLabelValues(string(in.Action), metrics.OutcomeFailed).Inc()
			log.Error("bot action failed", append(fields, zap.Error(err))...)
		}
	}

	report.Duration = time.Since(start)
	metrics.BotTickSeconds.Observe(report.Duration.Seconds())
	log.Info("bot tick finished",
		zap.Int("planned", report.Planned),
		zap.Int("applied", report.Applied),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// Snapshot reads the recent content, the active fleet and every fact the
// planner needs about them.
func (e *Engine) Snapshot(ctx context.Context) (*Snapshot, error) {
	db := e.db.WithContext(ctx)
	now := e.now()
	since := now.Add(-e.opts.NewContentWindow)

	treasury, err := e.treasury.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := e.treasury.Settings(ctx)
	if err != nil {
		return nil, err
	}
	bots, err := e.registry.ListActiveBots(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Now:              now,
		Aggression:       treasury.AggressionLevel,
		PurchasesEnabled: settings.BotPurchasesEnabled,
		Bots:             bots,
		BotUsers:         make(map[uint]bool),
		TodayCounts:      make(map[uint]map[models.BotActionType]int),
		ThreadLikes:      make(map[uint]int),
		Liked:            make(map[pairKey]bool),
		Followers:        make(map[uint]int64),
		Following:        make(map[pairKey]bool),
		Owned:            make(map[pairKey]bool),
	}
	if len(bots) == 0 {
		return snap, nil
	}

	if err := db.Where("created_at >= ?", since).Order("created_at ASC").Find(&snap.Threads).Error; err != nil {
		return nil, err
	}
	if err := db.Where("created_at >= ? AND price > 0 AND price <= ?", since, e.opts.PriceCeiling).
		Order("created_at ASC").Find(&snap.Contents).Error; err != nil {
		return nil, err
	}

	var botUserIDs []uint
	if err := db.Model(&models.User{}).Where("is_bot = ?", true).Pluck("id", &botUserIDs).Error; err != nil {
		return nil, err
	}
	for _, id := range botUserIDs {
		snap.BotUsers[id] = true
	}

	botIDs := make([]uint, 0, len(bots))
	activeUserIDs := make([]uint, 0, len(bots))
	for _, b := range bots {
		botIDs = append(botIDs, b.ID)
		if b.UserID != nil {
			activeUserIDs = append(activeUserIDs, *b.UserID)
		}
	}

	var counts []struct {
		BotID      uint
		ActionType models.BotActionType
		N          int
	}
	if err := db.Model(&models.BotAction{}).
		Select("bot_id, action_type, COUNT(*) AS n").
		Where("bot_id IN ? AND executed_at >= ?", botIDs, dayStart(now)).
		Group("bot_id, action_type").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	for _, c := range counts {
		if snap.TodayCounts[c.BotID] == nil {
			snap.TodayCounts[c.BotID] = make(map[models.BotActionType]int)
		}
		snap.TodayCounts[c.BotID][c.ActionType] = c.N
	}

	if len(snap.Threads) > 0 {
		threadIDs := make([]uint, 0, len(snap.Threads))
		for _, t := range snap.Threads {
			threadIDs = append(threadIDs, t.ID)
		}
		var likes []models.BotAction
		if err := db.Select("bot_id", "target_id").
			Where("action_type = ? AND target_type = ? AND target_id IN ?", models.BotActionLike, TargetThread, threadIDs).
			Find(&likes).Error; err != nil {
			return nil, err
		}
		for _, l := range likes {
			snap.ThreadLikes[l.TargetID]++
			snap.Liked[pairKey{l.BotID, l.TargetID}] = true
		}
	}

	authors := make([]uint, 0, len(snap.Threads)+len(snap.Contents))
	for _, t := range snap.Threads {
		authors = append(authors, t.UserID)
	}
	for _, c := range snap.Contents {
		authors = append(authors, c.SellerID)
	}
	if len(authors) > 0 {
		var followers []struct {
			FollowingID uint
			N           int64
		}
		if err := db.Model(&models.UserFollow{}).
			Select("following_id, COUNT(*) AS n").
			Where("following_id IN ?", authors).
			Group("following_id").
			Scan(&followers).Error; err != nil {
			return nil, err
		}
		for _, f := range followers {
			snap.Followers[f.FollowingID] = f.N
		}

		if len(activeUserIDs) > 0 {
			var edges []models.UserFollow
			if err := db.Where("follower_id IN ? AND following_id IN ?", activeUserIDs, authors).
				Find(&edges).Error; err != nil {
				return nil, err
			}
			for _, f := range edges {
				snap.Following[pairKey{f.FollowerID, f.FollowingID}] = true
			}
		}
	}

	if len(snap.Contents) > 0 && len(activeUserIDs) > 0 {
		contentIDs := make([]uint, 0, len(snap.Contents))
		for _, c := range snap.Contents {
			contentIDs = append(contentIDs, c.ID)
		}
		var owned []models.ContentPurchase
		if err := db.Select("buyer_id", "content_id").
			Where("buyer_id IN ? AND content_id IN ?", activeUserIDs, contentIDs).
			Find(&owned).Error; err != nil {
			return nil, err
		}
		for _, o := range owned {
			snap.Owned[pairKey{o.BuyerID, o.ContentID}] = true
		}
	}

	return snap, nil
}

// apply runs one intent in its own transaction. Any failed gate or error
// rolls back the spend together with the credit and the action row.
func (e *Engine) apply(ctx context.Context, runID string, in Intent) error {
	var spent int64
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		switch in.Action {
		case models.BotActionLike:
			spent, err = e.applyLike(tx, runID, in)
		case models.BotActionFollow:
			spent, err = e.applyFollow(tx, runID, in)
		case models.BotActionPurchase:
			spent, err = e.applyPurchase(tx, runID, in)
		case models.BotActionRefund:
			err = skip("refunds are not planned by the engine")
		default:
			err = fmt.Errorf("unknown bot action %q", in.Action)
		}
		return err
	})
	if err == nil && spent > 0 {
		metrics.TreasurySpend.Add(float64(spent))
	}
	return err
}

func (e *Engine) spend(tx *gorm.DB, runID string, in Intent, amount int64) error {
	res, err := e.treasury.AuthorizeSpendTx(tx, amount, "bot_"+string(in.Action), map[string]any{
		"bot_id":      in.Bot.ID,
		"action":      string(in.Action),
		"target_type": in.TargetType,
		"target_id":   in.TargetID,
		"run_id":      runID,
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return skip("treasury: %s", res.Message)
	}
	return nil
}

func (e *Engine) recordAction(tx *gorm.DB, runID string, in Intent, delta int64) error {
	return tx.Create(&models.BotAction{
		BotID:           in.Bot.ID,
		ActionType:      in.Action,
		TargetType:      in.TargetType,
		TargetID:        in.TargetID,
		RecipientID:     in.RecipientID,
		CoinDelta:       delta,
		RetentionWeight: in.Action.RetentionWeight(),
		RunID:           runID,
		ExecutedAt:      e.now(),
	}).Error
}

// applyLike always spends; the author's payout is withheld when it would
// push them over the wallet cap.
func (e *Engine) applyLike(tx *gorm.DB, runID string, in Intent) (int64, error) {
	var liked int64
	if err := tx.Model(&models.BotAction{}).
		Where("bot_id = ? AND action_type = ? AND target_type = ? AND target_id = ?", in.Bot.ID, models.BotActionLike, TargetThread, in.TargetID).
		Count(&liked).Error; err != nil {
		return 0, err
	}
	if liked > 0 {
		return 0, skip("thread already liked")
	}

	if err := e.spend(tx, runID, in, in.Amount); err != nil {
		return 0, err
	}

	exceeds, err := e.treasury.WouldExceedWalletCapTx(tx, in.RecipientID, in.Amount)
	if err != nil {
		return 0, err
	}
	var delta int64
	if !exceeds {
		threadID := in.TargetID
		if err := e.wallet.CreditTx(tx, in.RecipientID, in.Amount, models.SourceBotLike, &threadID); err != nil {
			return 0, err
		}
		delta = in.Amount
	}
	return in.Amount, e.recordAction(tx, runID, in, delta)
}

// identityUser loads the bot's identity row inside tx. A bot without one is
// skipped before anything is spent.
func identityUser(tx *gorm.DB, bot models.Bot) (uint, error) {
	if bot.UserID == nil {
		return 0, skip("bot has no identity user")
	}
	var user models.User
	err := tx.Select("id").Where("id = ? AND is_bot = ?", *bot.UserID, true).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, skip("bot identity user %d is missing", *bot.UserID)
	}
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

// applyFollow happens entirely or not at all.
func (e *Engine) applyFollow(tx *gorm.DB, runID string, in Intent) (int64, error) {
	followerID, err := identityUser(tx, in.Bot)
	if err != nil {
		return 0, err
	}
	var exists int64
	if err := tx.Model(&models.UserFollow{}).
		Where("follower_id = ? AND following_id = ?", followerID, in.TargetID).
		Count(&exists).Error; err != nil {
		return 0, err
	}
	if exists > 0 {
		return 0, skip("already following")
	}
	exceeds, err := e.treasury.WouldExceedWalletCapTx(tx, in.RecipientID, in.Amount)
	if err != nil {
		return 0, err
	}
	if exceeds {
		return 0, skip("recipient wallet cap")
	}
	if err := e.spend(tx, runID, in, in.Amount); err != nil {
		return 0, err
	}

	follow := models.UserFollow{FollowerID: followerID, FollowingID: in.TargetID}
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&follow)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, skip("already following")
	}
	if err := e.wallet.CreditTx(tx, in.RecipientID, in.Amount, models.SourceBotFollow, &follow.ID); err != nil {
		return 0, err
	}
	return in.Amount, e.recordAction(tx, runID, in, in.Amount)
}

// applyPurchase checks the seller's wallet cap before touching the treasury.
func (e *Engine) applyPurchase(tx *gorm.DB, runID string, in Intent) (int64, error) {
	buyerID, err := identityUser(tx, in.Bot)
	if err != nil {
		return 0, err
	}

	var owned int64
	if err := tx.Model(&models.ContentPurchase{}).
		Where("content_id = ? AND buyer_id = ?", in.TargetID, buyerID).
		Count(&owned).Error; err != nil {
		return 0, err
	}
	if owned > 0 {
		return 0, skip("bot already owns content")
	}

	sellerShare := in.Amount * SellerSharePercent / 100
	exceeds, err := e.treasury.WouldExceedWalletCapTx(tx, in.RecipientID, sellerShare)
	if err != nil {
		return 0, err
	}
	if exceeds {
		return 0, skip("seller wallet cap")
	}

	if err := e.spend(tx, runID, in, in.Amount); err != nil {
		return 0, err
	}

	purchase := models.ContentPurchase{
		ContentID: in.TargetID,
		BuyerID:   buyerID,
		SellerID:  in.RecipientID,
		Price:     in.Amount,
	}
	if err := tx.Create(&purchase).Error; err != nil {
		return 0, err
	}
	if sellerShare > 0 {
		contentID := in.TargetID
		if err := e.wallet.CreditTx(tx, in.RecipientID, sellerShare, models.SourceBotSale, &contentID); err != nil {
			return 0, err
		}
	}
	if err := e.wallet.RecordBotSpendTx(tx, buyerID, in.Amount, in.TargetID); err != nil {
		return 0, err
	}
	return in.Amount, e.recordAction(tx, runID, in, sellerShare)
}

// RefundSweep lists the last day's bot purchases. It only logs what a
// refund would cover; no ledger is touched.
func (e *Engine) RefundSweep(ctx context.Context) (int, error) {
	var purchases []models.BotAction
	if err := e.db.WithContext(ctx).
		Where("action_type = ? AND executed_at >= ?", models.BotActionPurchase, e.now().Add(-24*time.Hour)).
		Order("executed_at ASC").
		Find(&purchases).Error; err != nil {
		return 0, err
	}
	for _, p := range purchases {
		zap.L().Info("refund sweep candidate",
			zap.Uint("bot_id", p.BotID),
			zap.Uint("content_id", p.TargetID),
			zap.Uint("seller_id", p.RecipientID),
			zap.Int64("seller_credit", p.CoinDelta),
			zap.String("run_id", p.RunID),
		)
	}
	zap.L().Info("refund sweep finished", zap.Int("candidates", len(purchases)))
	return len(purchases), nil
}
