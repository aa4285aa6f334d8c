package portfolio

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// record is the persisted row shape. Positions are stored as a JSONB
// document keyed by symbol; quantities round-trip as exact decimals.
type record struct {
	AccountID string          `gorm:"column:account_id;primaryKey"`
	Cash      decimal.Decimal `gorm:"column:cash;type:numeric"`
	Positions []byte          `gorm:"column:positions;type:jsonb"`
}

func (record) TableName() string { return "portfolios" }

// PostgresStore persists portfolios in Postgres via gorm.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("opening portfolio database: %w", err)
	}
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("migrating portfolio schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) All(ctx context.Context) ([]*Portfolio, error) {
	var records []record
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("loading portfolios: %w", err)
	}

	portfolios := make([]*Portfolio, 0, len(records))
	for _, r := range records {
		positions := make(map[string]decimal.Decimal)
		if len(r.Positions) > 0 {
			if err := json.Unmarshal(r.Positions, &positions); err != nil {
				return nil, fmt.Errorf("decoding positions for account %s: %w", r.AccountID, err)
			}
		}
		portfolios = append(portfolios, &Portfolio{
			AccountID: r.AccountID,
			Cash:      r.Cash,
			Positions: positions,
		})
	}
	return portfolios, nil
}

func (s *PostgresStore) Save(ctx context.Context, p *Portfolio) error {
	positions, err := json.Marshal(p.Positions)
	if err != nil {
		return fmt.Errorf("encoding positions for account %s: %w", p.AccountID, err)
	}
	r := record{AccountID: p.AccountID, Cash: p.Cash, Positions: positions}
	if err := s.db.WithContext(ctx).Save(&r).Error; err != nil {
		return fmt.Errorf("saving portfolio for account %s: %w", p.AccountID, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
