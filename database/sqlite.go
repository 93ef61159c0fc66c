package database

import (
	"fmt"
	"sync/atomic"

	"github.com/sahilchouksey/exam-prep-api/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var memoryDBSeq atomic.Int64

// OpenSQLite opens a SQLite database for local runs and tests.
// Use ":memory:" for a throwaway database private to the returned store.
func OpenSQLite(path string) (*GORMStore, error) {
	dsn := path
	if path == ":memory:" {
		dsn = fmt.Sprintf("file:memdb%d?mode=memory&cache=shared&_foreign_keys=on", memoryDBSeq.Add(1))
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: newGormLogger(utils.L(), logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}

	// A single connection keeps an in-memory database alive and serialises writers
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	utils.L().Info("opened SQLite database", "path", path)
	return &GORMStore{db: db}, nil
}
