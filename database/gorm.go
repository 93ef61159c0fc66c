package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sahilchouksey/exam-prep-api/config"
	"github.com/sahilchouksey/exam-prep-api/model"
	"github.com/sahilchouksey/exam-prep-api/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GORMStore owns the connection pool
type GORMStore struct {
	db *gorm.DB
}

// StartGORM opens the database selected by DB_DRIVER: Postgres by default,
// or a SQLite file at DB_PATH
func StartGORM() (*GORMStore, error) {
	env, err := config.Get()
	if err != nil {
		return nil, err
	}

	if env.DB_DRIVER == "sqlite" {
		return OpenSQLite(env.DB_PATH)
	}
	return OpenPostgres(env)
}

// OpenPostgres connects with the DB_* settings and sizes the pool
func OpenPostgres(env *config.EnviornmentVariable) (*GORMStore, error) {
	level := gormlogger.Warn
	if env.IsProduction() {
		level = gormlogger.Error
	}

	db, err := gorm.Open(postgres.Open(postgresDSN(env)), &gorm.Config{
		Logger:      newGormLogger(utils.L(), level),
		PrepareStmt: true,
		NowFunc:     func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		utils.L().Error("unable to connect to PostgreSQL", "host", env.DB_HOST, "error", err)
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	utils.L().Info("connected to PostgreSQL", "host", env.DB_HOST, "db", env.DB_NAME)
	return &GORMStore{db: db}, nil
}

func postgresDSN(env *config.EnviornmentVariable) string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		env.DB_HOST, env.DB_USER_NAME, env.DB_PASSWORD, env.DB_NAME, env.DB_PORT, env.DB_SSL_MODE,
	)
}

// Models lists every table the service owns, in migration order
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.Exam{},
		&model.ExamSection{},
		&model.ExamQuestion{},
		&model.IngestionLog{},
		&model.CronJobLog{},
		&model.RevokedToken{},
	}
}

// Init creates or updates every table in Models
func (s *GORMStore) Init() error {
	models := Models()
	if err := s.db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	utils.L().Info("schema migrated", "tables", len(models))
	return nil
}

func (s *GORMStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GORMStore) DB() *gorm.DB {
	return s.db
}

// HealthCheck pings the pool
func (s *GORMStore) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
