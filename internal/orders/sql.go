package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// orderRow is the relational shape: a few indexed columns plus the full record as JSON.
type orderRow struct {
	ID            int64     `gorm:"primaryKey;autoIncrement:false"`
	Version       int64     `gorm:"not null"`
	PaymentMethod string    `gorm:"index"`
	CreatedAt     time.Time `gorm:"autoCreateTime:false;index"`
	Payload       []byte    `gorm:"not null"`
}

func (orderRow) TableName() string { return "orders" }

// SQLBackend stores orders through gorm.
type SQLBackend struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) a SQLite database at path and migrates it.
func OpenSQLite(path string) (*SQLBackend, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return NewSQLBackend(db)
}

// NewSQLBackend migrates the orders table on db.
func NewSQLBackend(db *gorm.DB) (*SQLBackend, error) {
	if err := db.AutoMigrate(&orderRow{}); err != nil {
		return nil, fmt.Errorf("migrate orders: %w", err)
	}
	return &SQLBackend{db: db}, nil
}

func toRow(o Order) (orderRow, error) {
	payload, err := json.Marshal(o)
	if err != nil {
		return orderRow{}, fmt.Errorf("marshal order: %w", err)
	}
	return orderRow{
		ID:            o.ID,
		Version:       o.Version,
		PaymentMethod: string(o.PaymentMethod),
		CreatedAt:     o.CreatedAt,
		Payload:       payload,
	}, nil
}

func fromRow(r orderRow) (Order, error) {
	var o Order
	if err := json.Unmarshal(r.Payload, &o); err != nil {
		return Order{}, fmt.Errorf("unmarshal order %d: %w", r.ID, err)
	}
	return o, nil
}

func (b *SQLBackend) Load(ctx context.Context, id int64) (*Order, error) {
	var row orderRow
	err := b.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o, err := fromRow(row)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (b *SQLBackend) Insert(ctx context.Context, o Order) error {
	row, err := toRow(o)
	if err != nil {
		return err
	}
	res := b.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errExists
	}
	return nil
}

func (b *SQLBackend) Replace(ctx context.Context, o Order, prevVersion int64) error {
	row, err := toRow(o)
	if err != nil {
		return err
	}
	res := b.db.WithContext(ctx).Model(&orderRow{}).
		Where("id = ? AND version = ?", o.ID, prevVersion).
		Updates(map[string]any{
			"version":        row.Version,
			"payment_method": row.PaymentMethod,
			"payload":        row.Payload,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errVersionMismatch
	}
	return nil
}

func (b *SQLBackend) Remove(ctx context.Context, id int64) (bool, error) {
	res := b.db.WithContext(ctx).Delete(&orderRow{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (b *SQLBackend) Scan(ctx context.Context) ([]Order, error) {
	var rows []orderRow
	if err := b.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Order, 0, len(rows))
	for _, r := range rows {
		o, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}
