package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"yoforex/internal/models"
	"yoforex/internal/testutil"

	"github.com/stretchr/testify/require"
)

func TestVaultBonus(t *testing.T) {
	cases := map[int64]int64{
		-10:  0,
		0:    0,
		7:    0,
		9:    0,
		10:   1,
		55:   5,
		1000: 100,
	}
	for amount, want := range cases {
		require.Equal(t, want, VaultBonus(amount), "amount %d", amount)
	}
}

func TestCreateVaultBonus(t *testing.T) {
	gdb := testutil.NewTestDB(t, testutil.DefaultEconomy())
	svc := NewVaultService(gdb)
	now := time.Now()
	svc.now = func() time.Time { return now }
	user := testutil.CreateUser(t, gdb, "alice", 0)
	ctx := context.Background()

	entry, err := svc.CreateVaultBonus(ctx, user.ID, 7, models.SourceThreadCreate, nil)
	require.NoError(t, err)
	require.Nil(t, entry)

	entry, err = svc.CreateVaultBonus(ctx, user.ID, 1000, models.SourceContentSale, nil)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, int64(100), entry.Amount)
	require.Equal(t, models.VaultLocked, entry.Status)
	require.WithinDuration(t, now.Add(VaultLockPeriod), entry.UnlockAt, time.Second)
}

func TestUnlockMaturedVaults_Idempotent(t *testing.T) {
	gdb := testutil.NewTestDB(t, testutil.DefaultEconomy())
	svc := NewVaultService(gdb)
	start := time.Now()
	svc.now = func() time.Time { return start }
	user := testutil.CreateUser(t, gdb, "alice", 0)
	ctx := context.Background()

	_, err := svc.CreateVaultBonus(ctx, user.ID, 100, models.SourceThreadCreate, nil)
	require.NoError(t, err)
	_, err = svc.CreateVaultBonus(ctx, user.ID, 200, models.SourceReplyCreate, nil)
	require.NoError(t, err)

	n, err := svc.UnlockMaturedVaults(ctx)
	require.NoError(t, err)
	require.Zero(t, n, "nothing matured yet")

	svc.now = func() time.Time { return start.Add(VaultLockPeriod + time.Hour) }
	n, err = svc.UnlockMaturedVaults(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	n, err = svc.UnlockMaturedVaults(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	var notes []models.Notification
	require.NoError(t, gdb.Where("user_id = ? AND type = ?", user.ID, models.NotificationTypeVault).Find(&notes).Error)
	require.Len(t, notes, 1)
	require.Contains(t, notes[0].Reason, "30 vault coins")
}

func TestClaimVaultCoins(t *testing.T) {
	gdb := testutil.NewTestDB(t, testutil.DefaultEconomy())
	svc := NewVaultService(gdb)
	start := time.Now()
	svc.now = func() time.Time { return start }
	user := testutil.CreateUser(t, gdb, "alice", 50)
	ctx := context.Background()

	locked, err := svc.CreateVaultBonus(ctx, user.ID, 500, models.SourceBotSale, nil)
	require.NoError(t, err)

	res, err := svc.ClaimVaultCoins(ctx, user.ID, nil)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, msgNoUnlockedVault, res.Message)

	res, err = svc.ClaimVaultCoins(ctx, user.ID, &locked.ID)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, msgVaultLocked, res.Message)

	missing := uint(9999)
	res, err = svc.ClaimVaultCoins(ctx, user.ID, &missing)
	require.NoError(t, err)
	require.Equal(t, msgVaultNotFound, res.Message)

	_, err = svc.CreateVaultBonus(ctx, user.ID, 100, models.SourceThreadCreate, nil)
	require.NoError(t, err)

	svc.now = func() time.Time { return start.Add(VaultLockPeriod + time.Minute) }
	_, err = svc.UnlockMaturedVaults(ctx)
	require.NoError(t, err)

	res, err = svc.ClaimVaultCoins(ctx, user.ID, nil)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, int64(60), res.Amount)

	var u models.User
	require.NoError(t, gdb.First(&u, user.ID).Error)
	require.Equal(t, int64(110), u.Coins)

	res, err = svc.ClaimVaultCoins(ctx, user.ID, nil)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, msgNoUnlockedVault, res.Message)

	res, err = svc.ClaimVaultCoins(ctx, user.ID, &locked.ID)
	require.NoError(t, err)
	require.Equal(t, msgVaultClaimed, res.Message)

	var claims int64
	require.NoError(t, gdb.Model(&models.CoinTransaction{}).
		Where("user_id = ? AND source = ?", user.ID, models.SourceVaultClaim).
		Count(&claims).Error)
	require.Equal(t, int64(1), claims)
}

func TestClaimVaultCoins_OtherUsersEntry(t *testing.T) {
	gdb := testutil.NewTestDB(t, testutil.DefaultEconomy())
	svc := NewVaultService(gdb)
	start := time.Now()
	svc.now = func() time.Time { return start }
	alice := testutil.CreateUser(t, gdb, "alice", 0)
	bob := testutil.CreateUser(t, gdb, "bob", 0)
	ctx := context.Background()

	entry, err := svc.CreateVaultBonus(ctx, alice.ID, 100, models.SourceThreadCreate, nil)
	require.NoError(t, err)
	svc.now = func() time.Time { return start.Add(VaultLockPeriod + time.Minute) }
	_, err = svc.UnlockMaturedVaults(ctx)
	require.NoError(t, err)

	res, err := svc.ClaimVaultCoins(ctx, bob.ID, &entry.ID)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, msgVaultNotFound, res.Message)
}

func TestExtendVaultUnlockForInactiveUsers(t *testing.T) {
	gdb := testutil.NewTestDB(t, testutil.DefaultEconomy())
	svc := NewVaultService(gdb)
	now := time.Now()
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	idle := testutil.CreateUser(t, gdb, "idle", 0)
	active := testutil.CreateUser(t, gdb, "active", 0)

	recently := now.Add(-time.Hour)
	require.NoError(t, gdb.Model(active).UpdateColumn("last_active_at", recently).Error)
	require.NoError(t, gdb.Create(&models.ActivityDay{UserID: active.ID, Day: now.Format(models.ActivityDayLayout)}).Error)

	idleLocked, err := svc.CreateVaultBonus(ctx, idle.ID, 100, models.SourceThreadCreate, nil)
	require.NoError(t, err)
	activeLocked, err := svc.CreateVaultBonus(ctx, active.ID, 100, models.SourceThreadCreate, nil)
	require.NoError(t, err)

	idleUnlocked := &models.VaultCoin{
		UserID:     idle.ID,
		Amount:     5,
		EarnedFrom: models.SourceReplyCreate,
		UnlockAt:   now.Add(-time.Hour),
		Status:     models.VaultUnlocked,
	}
	require.NoError(t, gdb.Create(idleUnlocked).Error)

	n, err := svc.ExtendVaultUnlockForInactiveUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	var extended models.VaultCoin
	require.NoError(t, gdb.First(&extended, idleLocked.ID).Error)
	require.WithinDuration(t, idleLocked.UnlockAt.Add(InactivityExtension), extended.UnlockAt, time.Second)
	require.Equal(t, models.VaultLocked, extended.Status)

	var untouched models.VaultCoin
	require.NoError(t, gdb.First(&untouched, activeLocked.ID).Error)
	require.WithinDuration(t, activeLocked.UnlockAt, untouched.UnlockAt, time.Second)

	var unlocked models.VaultCoin
	require.NoError(t, gdb.First(&unlocked, idleUnlocked.ID).Error)
	require.Equal(t, models.VaultUnlocked, unlocked.Status)
	require.WithinDuration(t, idleUnlocked.UnlockAt, unlocked.UnlockAt, time.Second)
}

func TestVaultSummary(t *testing.T) {
	gdb := testutil.NewTestDB(t, testutil.DefaultEconomy())
	svc := NewVaultService(gdb)
	now := time.Now()
	svc.now = func() time.Time { return now }
	user := testutil.CreateUser(t, gdb, "alice", 0)
	ctx := context.Background()

	_, err := svc.CreateVaultBonus(ctx, user.ID, 300, models.SourceThreadCreate, nil)
	require.NoError(t, err)

	sum, err := svc.Summary(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(30), sum.Locked)
	require.Zero(t, sum.Unlocked)
	require.NotNil(t, sum.NextUnlockAt)
	require.Equal(t, 30, sum.DaysToUnlock)
}

// 随机操作序列：状态只能前进，余额始终等于已领取的金库总额
func TestVaultTransitions_RandomSequences(t *testing.T) {
	rank := map[models.VaultStatus]int{models.VaultLocked: 0, models.VaultUnlocked: 1, models.VaultClaimed: 2}

	for seed := uint64(1); seed <= 8; seed++ {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			gdb := testutil.NewTestDB(t, testutil.DefaultEconomy())
			svc := NewVaultService(gdb)
			rng := rand.New(rand.NewPCG(seed, seed*31))
			clock := time.Now()
			svc.now = func() time.Time { return clock }
			ctx := context.Background()

			users := []*models.User{
				testutil.CreateUser(t, gdb, "u0", 0),
				testutil.CreateUser(t, gdb, "u1", 0),
			}
			var ids []uint
			last := map[uint]int{}
			claimed := map[uint]int64{}

			for step := 0; step < 80; step++ {
				actor := users[rng.IntN(len(users))]
				switch rng.IntN(5) {
				case 0:
					e, err := svc.CreateVaultBonus(ctx, actor.ID, rng.Int64N(600), models.SourceThreadCreate, nil)
					require.NoError(t, err)
					if e != nil {
						ids = append(ids, e.ID)
					}
				case 1:
					clock = clock.Add(time.Duration(rng.IntN(20*24)) * time.Hour)
				case 2:
					_, err := svc.UnlockMaturedVaults(ctx)
					require.NoError(t, err)
				case 3:
					var target *uint
					if len(ids) > 0 && rng.IntN(2) == 0 {
						id := ids[rng.IntN(len(ids))]
						target = &id
					}
					res, err := svc.ClaimVaultCoins(ctx, actor.ID, target)
					require.NoError(t, err)
					if res.Success {
						require.Positive(t, res.Amount)
						claimed[actor.ID] += res.Amount
					}
				case 4:
					_, err := svc.ExtendVaultUnlockForInactiveUsers(ctx)
					require.NoError(t, err)
				}

				var entries []models.VaultCoin
				require.NoError(t, gdb.Find(&entries).Error)
				onLedger := map[uint]int64{}
				for _, e := range entries {
					r, ok := rank[e.Status]
					require.True(t, ok, "entry %d has status %q", e.ID, e.Status)
					require.GreaterOrEqual(t, r, last[e.ID], "entry %d moved back to %s at step %d", e.ID, e.Status, step)
					last[e.ID] = r
					if e.Status == models.VaultClaimed {
						require.NotNil(t, e.ClaimedAt)
						onLedger[e.UserID] += e.Amount
					} else {
						require.Nil(t, e.ClaimedAt)
					}
				}

				for _, u := range users {
					var fresh models.User
					require.NoError(t, gdb.First(&fresh, u.ID).Error)
					require.Equal(t, claimed[u.ID], fresh.Coins, "user %d at step %d", u.ID, step)
					require.Equal(t, onLedger[u.ID], fresh.Coins, "user %d at step %d", u.ID, step)
				}
			}
		})
	}
}
