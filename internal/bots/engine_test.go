package bots

import (
	"context"
	"testing"
	"time"

	"yoforex/internal/config"
	"yoforex/internal/models"
	"yoforex/internal/services"
	"yoforex/internal/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type engineEnv struct {
	db       *gorm.DB
	treasury *services.TreasuryService
	vault    *services.VaultService
	wallet   *services.WalletService
	registry *services.BotService
	locker   *LocalLocker
	engine   *Engine
}

func newEngineEnv(t *testing.T, eco config.EconomyConfig) *engineEnv {
	t.Helper()
	gdb := testutil.NewTestDB(t, eco)
	env := &engineEnv{db: gdb, locker: NewLocalLocker()}
	env.treasury = services.NewTreasuryService(gdb)
	env.vault = services.NewVaultService(gdb)
	env.wallet = services.NewWalletService(gdb, env.vault)
	env.registry = services.NewBotService(gdb)
	env.engine = NewEngine(gdb, env.treasury, env.wallet, env.registry, env.locker, testOptions())
	return env
}

func (env *engineEnv) activeBot(t *testing.T, username string, purpose models.BotPurpose) *models.Bot {
	t.Helper()
	ctx := context.Background()
	bot, err := env.registry.Create(ctx, services.BotInput{Username: username, Purpose: purpose})
	require.NoError(t, err)
	on := true
	bot, err = env.registry.SetActive(ctx, bot.ID, &on)
	require.NoError(t, err)
	return bot
}

func (env *engineEnv) coins(t *testing.T, userID uint) int64 {
	t.Helper()
	var u models.User
	require.NoError(t, env.db.First(&u, userID).Error)
	return u.Coins
}

func (env *engineEnv) balance(t *testing.T) int64 {
	t.Helper()
	tr, err := env.treasury.Snapshot(context.Background())
	require.NoError(t, err)
	return tr.Balance
}

func aggressive() config.EconomyConfig {
	eco := testutil.DefaultEconomy()
	eco.TreasuryBalance = 1000
	eco.DailyCap = 500
	eco.AggressionLevel = 10
	return eco
}

func TestTick_LikeAndFollow(t *testing.T) {
	env := newEngineEnv(t, aggressive())
	ctx := context.Background()
	author := testutil.CreateUser(t, env.db, "alice", 0)
	bot := env.activeBot(t, "liker", models.BotPurposeEngagement)
	thread := models.Thread{UserID: author.ID, Title: "GBPJPY", Content: "breakout"}
	require.NoError(t, env.db.Omit("User").Create(&thread).Error)

	report, err := env.engine.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Planned)
	require.Equal(t, 2, report.Applied)
	require.Equal(t, 1, report.ByAction[string(models.BotActionLike)])
	require.Equal(t, 1, report.ByAction[string(models.BotActionFollow)])

	require.Equal(t, int64(998), env.balance(t))
	require.Equal(t, int64(2), env.coins(t, author.ID))

	var follow models.UserFollow
	require.NoError(t, env.db.Where("follower_id = ? AND following_id = ?", *bot.UserID, author.ID).First(&follow).Error)

	var actions []models.BotAction
	require.NoError(t, env.db.Where("bot_id = ?", bot.ID).Order("id ASC").Find(&actions).Error)
	require.Len(t, actions, 2)
	for _, a := range actions {
		require.Equal(t, report.RunID, a.RunID)
		require.Equal(t, author.ID, a.RecipientID)
		require.Equal(t, int64(1), a.CoinDelta)
	}

	// nothing left to do on the same content
	report, err = env.engine.Tick(ctx)
	require.NoError(t, err)
	require.Zero(t, report.Planned)
	require.Equal(t, int64(998), env.balance(t))
}

func TestTick_LikePayoutWithheldAtWalletCap(t *testing.T) {
	eco := aggressive()
	eco.WalletCap = 1000
	env := newEngineEnv(t, eco)
	ctx := context.Background()
	author := testutil.CreateUser(t, env.db, "rich", 1000)
	bot := env.activeBot(t, "liker", models.BotPurposeEngagement)
	thread := models.Thread{UserID: author.ID, Title: "t", Content: "c"}
	require.NoError(t, env.db.Omit("User").Create(&thread).Error)

	report, err := env.engine.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Applied)
	require.Equal(t, 1, report.Skipped, "follow is skipped at the wallet cap")

	require.Equal(t, int64(1000), env.coins(t, author.ID))
	require.Equal(t, int64(999), env.balance(t), "the like still spends")

	var like models.BotAction
	require.NoError(t, env.db.Where("bot_id = ? AND action_type = ?", bot.ID, models.BotActionLike).First(&like).Error)
	require.Zero(t, like.CoinDelta)

	var follows int64
	require.NoError(t, env.db.Model(&models.UserFollow{}).Count(&follows).Error)
	require.Zero(t, follows)
}

func TestTick_TreasuryCapSkipsAction(t *testing.T) {
	eco := aggressive()
	eco.DailyCap = 1
	env := newEngineEnv(t, eco)
	author := testutil.CreateUser(t, env.db, "alice", 0)
	env.activeBot(t, "liker", models.BotPurposeEngagement)
	thread := models.Thread{UserID: author.ID, Title: "t", Content: "c"}
	require.NoError(t, env.db.Omit("User").Create(&thread).Error)

	report, err := env.engine.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Applied)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, int64(999), env.balance(t))
	require.Equal(t, int64(1), env.coins(t, author.ID))

	tr, err := env.treasury.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, tr.DailyCap, tr.DailySpent)
}

func TestTick_Purchase(t *testing.T) {
	eco := aggressive()
	eco.BotPurchasesEnabled = true
	env := newEngineEnv(t, eco)
	ctx := context.Background()
	seller := testutil.CreateUser(t, env.db, "seller", 0)
	bot := env.activeBot(t, "buyer", models.BotPurposeMarketplace)
	item := models.Content{SellerID: seller.ID, Title: "Scalper EA", Price: 100}
	require.NoError(t, env.db.Create(&item).Error)

	report, err := env.engine.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Applied)

	require.Equal(t, int64(900), env.balance(t))
	require.Equal(t, int64(80), env.coins(t, seller.ID))
	require.Zero(t, env.coins(t, *bot.UserID), "bot purchase nets to zero on the bot wallet")

	var purchase models.ContentPurchase
	require.NoError(t, env.db.Where("content_id = ? AND buyer_id = ?", item.ID, *bot.UserID).First(&purchase).Error)
	require.Equal(t, int64(100), purchase.Price)

	var action models.BotAction
	require.NoError(t, env.db.Where("action_type = ?", models.BotActionPurchase).First(&action).Error)
	require.Equal(t, int64(80), action.CoinDelta)
	require.Equal(t, 3, action.RetentionWeight)

	var botTx []models.CoinTransaction
	require.NoError(t, env.db.Where("user_id = ?", *bot.UserID).Order("id ASC").Find(&botTx).Error)
	require.Len(t, botTx, 2)
	require.Equal(t, models.SourceBotFunding, botTx[0].Source)
	require.Equal(t, models.SourceBotPurchase, botTx[1].Source)

	n, err := env.engine.RefundSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestTick_PurchaseOverWalletCapIsAtomic(t *testing.T) {
	eco := aggressive()
	eco.BotPurchasesEnabled = true
	eco.WalletCap = 1000
	env := newEngineEnv(t, eco)
	seller := testutil.CreateUser(t, env.db, "seller", 950)
	env.activeBot(t, "buyer", models.BotPurposeMarketplace)
	item := models.Content{SellerID: seller.ID, Title: "Grid EA", Price: 90}
	require.NoError(t, env.db.Create(&item).Error)

	report, err := env.engine.Tick(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.Applied)
	require.Equal(t, 1, report.Skipped)

	require.Equal(t, int64(1000), env.balance(t))
	require.Equal(t, int64(950), env.coins(t, seller.ID))

	var purchases, actions, logs int64
	require.NoError(t, env.db.Model(&models.ContentPurchase{}).Count(&purchases).Error)
	require.NoError(t, env.db.Model(&models.BotAction{}).Count(&actions).Error)
	require.NoError(t, env.db.Model(&models.TreasuryLog{}).Where("kind = ?", models.TreasuryLogSpend).Count(&logs).Error)
	require.Zero(t, purchases)
	require.Zero(t, actions)
	require.Zero(t, logs)
}

func TestTick_InactiveBotsDoNothing(t *testing.T) {
	env := newEngineEnv(t, aggressive())
	ctx := context.Background()
	author := testutil.CreateUser(t, env.db, "alice", 0)
	_, err := env.registry.Create(ctx, services.BotInput{Username: "sleeper", Purpose: models.BotPurposeEngagement})
	require.NoError(t, err)
	thread := models.Thread{UserID: author.ID, Title: "t", Content: "c"}
	require.NoError(t, env.db.Omit("User").Create(&thread).Error)

	report, err := env.engine.Tick(ctx)
	require.NoError(t, err)
	require.Zero(t, report.Planned)
	require.Equal(t, int64(1000), env.balance(t))
}

func TestTick_SingleFlight(t *testing.T) {
	env := newEngineEnv(t, aggressive())
	ctx := context.Background()

	unlock, ok, err := env.locker.TryLock(ctx, tickLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = env.engine.Tick(ctx)
	require.ErrorIs(t, err, ErrTickInProgress)

	unlock()
	_, err = env.engine.Tick(ctx)
	require.NoError(t, err)
}

func TestTick_FailedActionDoesNotAbortPass(t *testing.T) {
	env := newEngineEnv(t, aggressive())
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.db, "alice", 0)
	ghost := testutil.CreateUser(t, env.db, "ghost", 0)
	env.activeBot(t, "liker", models.BotPurposeEngagement)
	for _, author := range []uint{alice.ID, ghost.ID} {
		thread := models.Thread{UserID: author, Title: "t", Content: "c"}
		require.NoError(t, env.db.Omit("User").Create(&thread).Error)
	}
	// 作者账号被删，给他的入账会失败
	require.NoError(t, env.db.Delete(&models.User{}, ghost.ID).Error)

	report, err := env.engine.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, report.Planned)
	require.Equal(t, 2, report.Applied)
	require.Equal(t, 2, report.Failed)

	require.Equal(t, int64(998), env.balance(t))
	require.Equal(t, int64(2), env.coins(t, alice.ID))

	tr, err := env.treasury.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), tr.DailySpent)

	var logs, follows int64
	require.NoError(t, env.db.Model(&models.TreasuryLog{}).Where("kind = ?", models.TreasuryLogSpend).Count(&logs).Error)
	require.NoError(t, env.db.Model(&models.UserFollow{}).Count(&follows).Error)
	require.Equal(t, int64(2), logs)
	require.Equal(t, int64(1), follows)

	var actions []models.BotAction
	require.NoError(t, env.db.Find(&actions).Error)
	require.Len(t, actions, 2)
	for _, a := range actions {
		require.Equal(t, alice.ID, a.RecipientID)
	}

	var ghostTx int64
	require.NoError(t, env.db.Model(&models.CoinTransaction{}).Where("user_id = ?", ghost.ID).Count(&ghostTx).Error)
	require.Zero(t, ghostTx)
}

func TestTick_FollowNeedsIdentityRow(t *testing.T) {
	env := newEngineEnv(t, aggressive())
	author := testutil.CreateUser(t, env.db, "alice", 0)
	bot := env.activeBot(t, "orphan", models.BotPurposeEngagement)
	require.NoError(t, env.db.Model(&models.Bot{}).Where("id = ?", bot.ID).Update("user_id", 99999).Error)
	thread := models.Thread{UserID: author.ID, Title: "t", Content: "c"}
	require.NoError(t, env.db.Omit("User").Create(&thread).Error)

	report, err := env.engine.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Applied, "likes do not need the identity")
	require.Equal(t, 1, report.Skipped)
	require.Zero(t, report.Failed)

	require.Equal(t, int64(999), env.balance(t))
	require.Equal(t, int64(1), env.coins(t, author.ID))

	var follows int64
	require.NoError(t, env.db.Model(&models.UserFollow{}).Count(&follows).Error)
	require.Zero(t, follows)
}

func TestTick_DailyCapStopsAtFiveHundredLikes(t *testing.T) {
	env := newEngineEnv(t, aggressive())
	ctx := context.Background()
	author := testutil.CreateUser(t, env.db, "prolific", 0)

	likes, follows := 600, 0
	bot, err := env.registry.Create(ctx, services.BotInput{
		Username:         "heavy",
		Purpose:          models.BotPurposeEngagement,
		MaxLikesPerDay:   &likes,
		MaxFollowsPerDay: &follows,
	})
	require.NoError(t, err)
	on := true
	_, err = env.registry.SetActive(ctx, bot.ID, &on)
	require.NoError(t, err)

	threads := make([]models.Thread, 501)
	for i := range threads {
		threads[i] = models.Thread{UserID: author.ID, Title: "t", Content: "c"}
	}
	require.NoError(t, env.db.Omit("User").CreateInBatches(threads, 100).Error)

	report, err := env.engine.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 501, report.Planned)
	require.Equal(t, 500, report.Applied)
	require.Equal(t, 1, report.Skipped)

	tr, err := env.treasury.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(500), tr.DailySpent)
	require.Equal(t, int64(500), tr.Balance)
	require.Equal(t, int64(500), env.coins(t, author.ID))

	var logs int64
	require.NoError(t, env.db.Model(&models.TreasuryLog{}).Where("kind = ?", models.TreasuryLogSpend).Count(&logs).Error)
	require.Equal(t, int64(500), logs)
}
