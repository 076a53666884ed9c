package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/llmcouncil/backend/internal/model"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"k8s.io/klog/v2"
)

func InitDB(dbType, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch dbType {
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		// 使用 github.com/glebarez/sqlite 驱动
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	klog.V(6).Infof("database initialized: type=%s", dbType)
	return db, nil
}

// Migrate 建表，测试中也直接调用
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Conversation{}, &model.Message{}, &model.TurnAnalysis{}); err != nil {
		return fmt.Errorf("migrate conversations: %w", err)
	}
	if err := db.AutoMigrate(&model.Persona{}, &model.LeaderboardEntry{}, &model.TurnUsage{}); err != nil {
		return fmt.Errorf("migrate council tables: %w", err)
	}
	return nil
}

func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create sqlite dir %s: %w", dir, err)
		}
	}
	return nil
}
