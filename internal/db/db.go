package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"guildquest/internal/chat"
	"guildquest/internal/config"
	"guildquest/internal/guild"
	"guildquest/internal/quest"
	"guildquest/internal/review"
	"guildquest/internal/user"
)

var DB *gorm.DB

// Models lists every table the service owns, in dependency order.
func Models() []any {
	return []any{
		&user.User{},
		&guild.Guild{},
		&guild.Member{},
		&guild.QuestMasterTerm{},
		&quest.Quest{},
		&review.Submission{},
		&review.Rating{},
		&review.RewardGrant{},
		&chat.Message{},
	}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
}

// Init connects to Postgres, migrates and installs the connection as DB.
func Init(cfg *config.Config) error {
	if cfg.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is not set")
	}
	conn, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), gormConfig())
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	if err := Migrate(conn); err != nil {
		return err
	}
	DB = conn
	return nil
}

// OpenSQLite opens a SQLite database, e.g. "file::memory:?cache=shared", and migrates it.
// A single connection keeps in-memory databases shared and writes serialised.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	conn, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := Migrate(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// Close releases the pool behind DB.
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
