package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Document is the row shape used by the postgres backend.
type Document struct {
	Name      string    `gorm:"primaryKey;size:255"`
	Body      []byte    `gorm:"type:bytea;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName pins the table name.
func (Document) TableName() string { return "portal_documents" }

// PostgresBackend stores documents in a single postgres table through gorm.
type PostgresBackend struct {
	db *gorm.DB
}

// NewPostgresBackend connects to dsn and migrates the documents table.
func NewPostgresBackend(dsn string) (*PostgresBackend, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	return NewPostgresBackendFromDB(db)
}

// NewPostgresBackendFromDB wraps an existing gorm handle.
func NewPostgresBackendFromDB(db *gorm.DB) (*PostgresBackend, error) {
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}
	return &PostgresBackend{db: db}, nil
}

func (b *PostgresBackend) Driver() string { return "postgres" }

func (b *PostgresBackend) Load(ctx context.Context, name string) ([]byte, error) {
	var doc Document
	err := b.db.WithContext(ctx).Where("name = ?", name).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	return doc.Body, nil
}

func (b *PostgresBackend) Save(ctx context.Context, name string, data []byte) error {
	doc := Document{Name: name, Body: data, UpdatedAt: time.Now().UTC()}
	return b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
	}).Create(&doc).Error
}

func (b *PostgresBackend) Ping(ctx context.Context) error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (b *PostgresBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
