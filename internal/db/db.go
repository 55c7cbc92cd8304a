package db

import (
	"time"

	"yoforex/internal/config"
	"yoforex/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Init opens the postgres connection, migrates and seeds the singletons.
func Init(cfg *config.Config) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	zap.L().Info("database connection established")

	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	zap.L().Info("database migration completed")

	if err := Seed(gdb, cfg.Economy); err != nil {
		return nil, err
	}
	return gdb, nil
}

// Models lists every table owned by the economy core and its collaborators.
func Models() []any {
	return []any{
		&models.User{},
		&models.UserFollow{},
		&models.ActivityDay{},
		&models.Thread{},
		&models.Reply{},
		&models.Content{},
		&models.ContentPurchase{},
		&models.CoinTransaction{},
		&models.Notification{},
		&models.Treasury{},
		&models.TreasuryLog{},
		&models.EconomySetting{},
		&models.VaultCoin{},
		&models.UserBadge{},
		&models.Bot{},
		&models.BotAction{},
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// Seed creates the treasury and economy settings rows once.
// Existing rows are left untouched so admin changes survive restarts.
func Seed(db *gorm.DB, eco config.EconomyConfig) error {
	now := time.Now()
	treasury := models.Treasury{
		ID:              models.TreasuryID,
		Balance:         eco.TreasuryBalance,
		DailyCap:        eco.DailyCap,
		AggressionLevel: eco.AggressionLevel,
		LastResetAt:     &now,
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&treasury).Error; err != nil {
		return err
	}

	setting := models.EconomySetting{
		ID:                  models.EconomySettingID,
		BotPurchasesEnabled: eco.BotPurchasesEnabled,
		WalletCap:           eco.WalletCap,
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&setting).Error; err != nil {
		return err
	}
	zap.L().Info("economy singletons ready",
		zap.Int64("treasury_balance", eco.TreasuryBalance),
		zap.Int64("daily_cap", eco.DailyCap))
	return nil
}
