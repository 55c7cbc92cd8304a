package bots

import (
	"math/rand/v2"
	"time"

	"yoforex/internal/models"
)

// ProbabilityPolicy maps the treasury aggression level (1-10) to the chance
// that an eligible bot acts on an eligible target.
type ProbabilityPolicy func(aggression int) float64

// LinearPolicy: level 1 never acts, level 10 always does.
func LinearPolicy(aggression int) float64 {
	if aggression < 1 {
		aggression = 1
	}
	if aggression > 10 {
		aggression = 10
	}
	return float64(aggression-1) / 9
}

type pairKey struct {
	a, b uint
}

// Snapshot is everything one tick reads before deciding what to do.
type Snapshot struct {
	Now              time.Time
	Aggression       int
	PurchasesEnabled bool

	Threads  []models.Thread
	Contents []models.Content
	Bots     []models.Bot

	// BotUsers are identity users of any bot; their content is never targeted.
	BotUsers map[uint]bool
	// TodayCounts[botID][action] is what the bot already did today.
	TodayCounts map[uint]map[models.BotActionType]int
	// ThreadLikes counts bot likes already on each scanned thread.
	ThreadLikes map[uint]int
	// Liked holds (botID, threadID) pairs.
	Liked map[pairKey]bool
	// Followers holds follower counts of scanned authors.
	Followers map[uint]int64
	// Following holds (bot userID, author ID) pairs.
	Following map[pairKey]bool
	// Owned holds (bot userID, content ID) pairs.
	Owned map[pairKey]bool
}

// Intent is one action the planner wants to apply.
type Intent struct {
	Action      models.BotActionType
	Bot         models.Bot
	TargetType  string
	TargetID    uint
	RecipientID uint
	Amount      int64
}

const (
	TargetThread  = "thread"
	TargetUser    = "user"
	TargetContent = "content"
)

type planner struct {
	snap   *Snapshot
	opts   Options
	p      float64
	rng    *rand.Rand
	counts map[uint]map[models.BotActionType]int
}

func (pl *planner) underCap(bot models.Bot, action models.BotActionType) bool {
	return pl.counts[bot.ID][action] < bot.DailyCap(action)
}

func (pl *planner) take(bot models.Bot, action models.BotActionType) {
	if pl.counts[bot.ID] == nil {
		pl.counts[bot.ID] = make(map[models.BotActionType]int)
	}
	pl.counts[bot.ID][action]++
}

func (pl *planner) roll() bool {
	return pl.rng.Float64() < pl.p
}

func (pl *planner) botsFor(purposes ...models.BotPurpose) []models.Bot {
	var out []models.Bot
	for _, b := range pl.snap.Bots {
		for _, p := range purposes {
			if b.Purpose == p {
				out = append(out, b)
				break
			}
		}
	}
	pl.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// Plan decides the tick's intents from a snapshot. It does no I/O; the only
// nondeterminism is rng.
func Plan(snap *Snapshot, opts Options, policy ProbabilityPolicy, rng *rand.Rand) []Intent {
	pl := &planner{
		snap:   snap,
		opts:   opts,
		p:      policy(snap.Aggression),
		rng:    rng,
		counts: make(map[uint]map[models.BotActionType]int, len(snap.TodayCounts)),
	}
	for botID, byAction := range snap.TodayCounts {
		pl.counts[botID] = make(map[models.BotActionType]int, len(byAction))
		for a, n := range byAction {
			pl.counts[botID][a] = n
		}
	}

	var intents []Intent
	intents = append(intents, pl.likes()...)
	intents = append(intents, pl.follows()...)
	if snap.PurchasesEnabled {
		intents = append(intents, pl.purchases()...)
	}
	return intents
}

func (pl *planner) likes() []Intent {
	var out []Intent
	engagement := pl.botsFor(models.BotPurposeEngagement)
	for _, t := range pl.snap.Threads {
		if pl.snap.BotUsers[t.UserID] {
			continue
		}
		likes := pl.snap.ThreadLikes[t.ID]
		for _, bot := range engagement {
			if likes >= pl.opts.MaxLikesPerThread {
				break
			}
			if pl.snap.Liked[pairKey{bot.ID, t.ID}] || !pl.underCap(bot, models.BotActionLike) {
				continue
			}
			if !pl.roll() {
				continue
			}
			pl.take(bot, models.BotActionLike)
			likes++
			out = append(out, Intent{
				Action:      models.BotActionLike,
				Bot:         bot,
				TargetType:  TargetThread,
				TargetID:    t.ID,
				RecipientID: t.UserID,
				Amount:      pl.opts.LikeReward,
			})
		}
	}
	return out
}

func (pl *planner) follows() []Intent {
	var authors []uint
	seen := make(map[uint]bool)
	add := func(id uint) {
		if !seen[id] && !pl.snap.BotUsers[id] {
			seen[id] = true
			authors = append(authors, id)
		}
	}
	for _, t := range pl.snap.Threads {
		add(t.UserID)
	}
	for _, c := range pl.snap.Contents {
		add(c.SellerID)
	}

	var out []Intent
	candidates := pl.botsFor(models.BotPurposeEngagement, models.BotPurposeReferral)
	for _, author := range authors {
		if pl.snap.Followers[author] >= pl.opts.FollowerCeiling {
			continue
		}
		for _, bot := range candidates {
			if bot.UserID == nil || *bot.UserID == author {
				continue
			}
			if pl.snap.Following[pairKey{*bot.UserID, author}] || !pl.underCap(bot, models.BotActionFollow) {
				continue
			}
			// one bot per author per tick
			if pl.roll() {
				pl.take(bot, models.BotActionFollow)
				out = append(out, Intent{
					Action:      models.BotActionFollow,
					Bot:         bot,
					TargetType:  TargetUser,
					TargetID:    author,
					RecipientID: author,
					Amount:      pl.opts.FollowReward,
				})
			}
			break
		}
	}
	return out
}

func (pl *planner) purchases() []Intent {
	var out []Intent
	marketplace := pl.botsFor(models.BotPurposeMarketplace)
	for _, c := range pl.snap.Contents {
		if c.Price <= 0 || c.Price > pl.opts.PriceCeiling || pl.snap.BotUsers[c.SellerID] {
			continue
		}
		want := 1 + pl.rng.IntN(2)
		for _, bot := range marketplace {
			if want == 0 {
				break
			}
			if bot.UserID == nil || *bot.UserID == c.SellerID {
				continue
			}
			if pl.snap.Owned[pairKey{*bot.UserID, c.ID}] || !pl.underCap(bot, models.BotActionPurchase) {
				continue
			}
			if !pl.roll() {
				continue
			}
			pl.take(bot, models.BotActionPurchase)
			want--
			out = append(out, Intent{
				Action:      models.BotActionPurchase,
				Bot:         bot,
				TargetType:  TargetContent,
				TargetID:    c.ID,
				RecipientID: c.SellerID,
				Amount:      c.Price,
			})
		}
	}
	return out
}
