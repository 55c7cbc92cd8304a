package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"yoforex/internal/bots"
	"yoforex/internal/handlers"
	"yoforex/internal/middleware"
	"yoforex/internal/models"
	"yoforex/internal/router"
	"yoforex/internal/services"
	"yoforex/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

type fakeRunner struct {
	calls  int
	report *bots.TickReport
	err    error
}

func (f *fakeRunner) RunNow(context.Context) (*bots.TickReport, error) {
	f.calls++
	return f.report, f.err
}

type testServer struct {
	db     *gorm.DB
	r      *gin.Engine
	runner *fakeRunner
	vault  *services.VaultService
}

// testUserHeader stands in for the session cookie.
const testUserHeader = "X-Test-User"

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	eco := testutil.DefaultEconomy()
	eco.TreasuryBalance = 1000
	eco.DailyCap = 500
	gdb := testutil.NewTestDB(t, eco)

	treasury := services.NewTreasuryService(gdb)
	vault := services.NewVaultService(gdb)
	wallet := services.NewWalletService(gdb, vault)
	badges := services.NewBadgeService(gdb, wallet)
	retention := services.NewRetentionService(gdb)
	activity := services.NewActivityService(gdb, wallet, badges)
	runner := &fakeRunner{report: &bots.TickReport{RunID: "run-1", ByAction: map[string]int{}}}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if id := c.GetHeader(testUserHeader); id != "" {
			var u models.User
			if err := gdb.First(&u, id).Error; err == nil {
				c.Set(middleware.CheckUserKey, &u)
			}
		}
		c.Next()
	})
	router.RegisterRoutes(r, router.Handlers{
		Admin:        handlers.NewAdminHandler(treasury, services.NewBotService(gdb), services.NewAnalyticsService(gdb, nil), runner),
		User:         handlers.NewUserHandler(wallet, vault, badges, retention),
		Forum:        handlers.NewForumHandler(activity),
		Notification: handlers.NewNotificationHandler(services.NewNotificationService(gdb)),
	})
	return &testServer{db: gdb, r: r, runner: runner, vault: vault}
}

func (s *testServer) admin(t *testing.T) *models.User {
	t.Helper()
	u := testutil.CreateUser(t, s.db, "admin", 0)
	require.NoError(t, s.db.Model(u).Update("role", "admin").Error)
	u.Role = "admin"
	return u
}

func (s *testServer) do(t *testing.T, user *models.User, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set(testUserHeader, strconv.FormatUint(uint64(user.ID), 10))
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func TestAuthGuards(t *testing.T) {
	s := newTestServer(t)
	alice := testutil.CreateUser(t, s.db, "alice", 0)

	w, _ := s.do(t, nil, http.MethodGet, "/dashboard/vault", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, alice, http.MethodGet, "/admin/treasury", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, alice, http.MethodPost, "/admin/bots/run", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Zero(t, s.runner.calls)
}

func TestAdminTreasury(t *testing.T) {
	s := newTestServer(t)
	admin := s.admin(t)

	w, body := s.do(t, admin, http.MethodGet, "/admin/treasury", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tr := body["treasury"].(map[string]any)
	require.EqualValues(t, 1000, tr["balance"])

	w, _ = s.do(t, admin, http.MethodPost, "/admin/treasury/refill", gin.H{"amount": -5})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(t, admin, http.MethodPost, "/admin/treasury/refill", gin.H{"amount": 250})
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1250, body["treasury"].(map[string]any)["balance"])

	w, _ = s.do(t, admin, http.MethodPost, "/admin/treasury/policy", gin.H{"aggression_level": 11})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(t, admin, http.MethodPost, "/admin/treasury/policy", gin.H{"daily_cap": 800, "aggression_level": 7})
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 800, body["treasury"].(map[string]any)["daily_cap"])

	w, body = s.do(t, admin, http.MethodPost, "/admin/economy/settings", gin.H{"bot_purchases_enabled": true})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, body["settings"].(map[string]any)["bot_purchases_enabled"])
}

func TestAdminBots(t *testing.T) {
	s := newTestServer(t)
	admin := s.admin(t)

	w, body := s.do(t, admin, http.MethodPost, "/admin/bots", gin.H{"username": "fxbot", "purpose": "engagement"})
	require.Equal(t, http.StatusCreated, w.Code)
	bot := body["bot"].(map[string]any)
	require.Equal(t, false, bot["is_active"])
	id := strconv.Itoa(int(bot["id"].(float64)))

	w, _ = s.do(t, admin, http.MethodPost, "/admin/bots", gin.H{"username": "fxbot", "purpose": "engagement"})
	require.Equal(t, http.StatusConflict, w.Code)

	w, _ = s.do(t, admin, http.MethodPost, "/admin/bots", gin.H{"username": "other", "purpose": "engagement", "trust_level": 9})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(t, admin, http.MethodPost, "/admin/bots/"+id+"/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, body["bot"].(map[string]any)["is_active"])

	w, body = s.do(t, admin, http.MethodPut, "/admin/bots/"+id, gin.H{"max_likes_per_day": 3})
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 3, body["bot"].(map[string]any)["max_likes_per_day"])

	w, body = s.do(t, admin, http.MethodGet, "/admin/bots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body["bots"], 1)
	require.EqualValues(t, services.MaxBotFleet, body["fleet_limit"])

	w, _ = s.do(t, admin, http.MethodDelete, "/admin/bots/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, admin, http.MethodGet, "/admin/bots/"+id, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, admin, http.MethodGet, "/admin/bots/abc", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRunEngine(t *testing.T) {
	s := newTestServer(t)
	admin := s.admin(t)

	w, body := s.do(t, admin, http.MethodPost, "/admin/bots/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "run-1", body["report"].(map[string]any)["run_id"])
	require.Equal(t, 1, s.runner.calls)

	s.runner.err = bots.ErrTickInProgress
	w, _ = s.do(t, admin, http.MethodPost, "/admin/bots/run", nil)
	require.Equal(t, http.StatusConflict, w.Code)

	w, body = s.do(t, admin, http.MethodGet, "/admin/bots/analytics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1000, body["analytics"].(map[string]any)["treasury_balance"])
}

func TestForumAndDashboard(t *testing.T) {
	s := newTestServer(t)
	alice := testutil.CreateUser(t, s.db, "alice", 0)

	w, _ := s.do(t, alice, http.MethodPost, "/threads", gin.H{"title": "", "content": "x"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, body := s.do(t, alice, http.MethodPost, "/threads", gin.H{"title": "USDJPY", "content": "intervention soon"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.EqualValues(t, services.CoinsThreadCreate, body["coins_earned"])
	threadID := strconv.Itoa(int(body["thread"].(map[string]any)["id"].(float64)))

	w, _ = s.do(t, alice, http.MethodPost, "/threads/999/replies", gin.H{"content": "hi"})
	require.Equal(t, http.StatusNotFound, w.Code)

	w, body = s.do(t, alice, http.MethodPost, "/threads/"+threadID+"/replies", gin.H{"content": "follow-up"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.EqualValues(t, services.CoinsReplyCreate, body["coins_earned"])

	w, body = s.do(t, alice, http.MethodGet, "/dashboard/vault", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 15, body["coins"])
	require.EqualValues(t, 1, body["summary"].(map[string]any)["locked"])

	w, body = s.do(t, alice, http.MethodPost, "/dashboard/vault/claim", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, false, body["success"])
	require.Equal(t, "no unlocked vault coins", body["message"])

	w, body = s.do(t, alice, http.MethodPost, "/dashboard/badges/thread_starter/claim", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, false, body["success"])
	require.Equal(t, "not eligible yet (1/25)", body["message"])

	w, body = s.do(t, alice, http.MethodGet, "/dashboard/badges", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body["badges"], len(services.BadgeCatalog()))

	w, body = s.do(t, alice, http.MethodGet, "/dashboard/retention", nil)
	require.Equal(t, http.StatusOK, w.Code)
	score := body["score"].(map[string]any)
	require.EqualValues(t, 1+2+1, score["real_score"])
	require.EqualValues(t, 0, score["bot_boost"])
	require.Equal(t, "bronze", body["loyalty"].(map[string]any)["tier"])
}

func TestNotificationsEndpoints(t *testing.T) {
	s := newTestServer(t)
	alice := testutil.CreateUser(t, s.db, "alice", 0)
	bob := testutil.CreateUser(t, s.db, "bob", 0)
	note := models.Notification{UserID: alice.ID, Type: models.NotificationTypeSystem, Reason: "welcome"}
	require.NoError(t, s.db.Create(&note).Error)
	path := "/notifications/" + strconv.Itoa(int(note.ID)) + "/read"

	w, body := s.do(t, alice, http.MethodGet, "/dashboard/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, body["unread"])

	w, _ = s.do(t, bob, http.MethodPost, path, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, alice, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, alice, http.MethodPost, "/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, body = s.do(t, alice, http.MethodGet, "/dashboard/notifications", nil)
	require.EqualValues(t, 0, body["unread"])
}
