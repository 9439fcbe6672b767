package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/emihleChallotteBooi/editingList/internal/models"
)

// ListDocument is the SQL row behind one list.
type ListDocument struct {
	ListID    string `gorm:"primaryKey"`
	RoomID    string `gorm:"index;not null"`
	Items     string `gorm:"type:text;not null"`
	Version   int64  `gorm:"not null"`
	UpdatedBy string
	UpdatedAt time.Time `gorm:"index"`
}

func (ListDocument) TableName() string { return "list_documents" }

// OpenSQL opens a gorm connection for driver "postgres" or "sqlite".
func OpenSQL(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// SQLStore persists lists through gorm.
type SQLStore struct {
	DB *gorm.DB
}

// NewSQLStore migrates the schema and returns a ready store.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&ListDocument{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SQLStore{DB: db}, nil
}

// GetDocument returns the list most recently edited in roomID, or an empty document.
func (s *SQLStore) GetDocument(ctx context.Context, roomID string) (models.Document, error) {
	var row ListDocument
	err := s.DB.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("updated_at desc").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return emptyDocument(roomID), nil
	}
	if err != nil {
		return models.Document{}, err
	}
	doc, err := row.document()
	if err != nil {
		return models.Document{}, err
	}
	doc.RoomID = roomID
	return doc, nil
}

func (s *SQLStore) ApplyUpdate(ctx context.Context, userID, listID string, update models.Update) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ListDocument
		err := tx.First(&row, "list_id = ?", listID).Error
		isNew := errors.Is(err, gorm.ErrRecordNotFound)
		if err != nil && !isNew {
			return err
		}

		current, err := decodeItems(row.Items)
		if err != nil {
			return err
		}
		items, err := ApplyToItems(current, update)
		if err != nil {
			return err
		}
		encoded, err := encodeItems(items)
		if err != nil {
			return err
		}

		row.ListID = listID
		row.RoomID = update.RoomID
		row.Items = encoded
		row.Version++
		row.UpdatedBy = userID
		row.UpdatedAt = update.ServerTimestamp
		if isNew {
			return tx.Create(&row).Error
		}
		return tx.Save(&row).Error
	})
}

func (r ListDocument) document() (models.Document, error) {
	items, err := decodeItems(r.Items)
	if err != nil {
		return models.Document{}, err
	}
	updatedAt := r.UpdatedAt
	return models.Document{
		RoomID:    r.RoomID,
		ListID:    r.ListID,
		Items:     items,
		Version:   r.Version,
		UpdatedBy: r.UpdatedBy,
		UpdatedAt: &updatedAt,
	}, nil
}
