// Package testutil provides an in-memory database seeded like production.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"yoforex/internal/config"
	"yoforex/internal/db"
	"yoforex/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a private in-memory SQLite database with every table
// migrated and the treasury/settings singletons seeded from eco.
func NewTestDB(t *testing.T, eco config.EconomyConfig) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	if err := db.Seed(gdb, eco); err != nil {
		t.Fatalf("failed to seed test database: %v", err)
	}
	return gdb
}

// DefaultEconomy is the production default economy with the wallet cap off.
func DefaultEconomy() config.EconomyConfig {
	eco := config.Default().Economy
	eco.WalletCap = 0
	return eco
}

// CreateUser inserts a regular user with the given balance.
func CreateUser(t *testing.T, gdb *gorm.DB, username string, coins int64) *models.User {
	t.Helper()
	u := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Role:     "user",
		Coins:    coins,
	}
	if err := gdb.Create(u).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return u
}
