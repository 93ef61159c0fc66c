package database

import (
	"context"

	"gorm.io/gorm"
)

// Storage is the persistence handle passed around the service
type Storage interface {
	Init() error
	Close() error
	HealthCheck(ctx context.Context) error
	DB() *gorm.DB
}

var _ Storage = (*GORMStore)(nil)
