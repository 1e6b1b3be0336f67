package repositories

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"MarginTradeBot/internal/models"
)

type CandleRepository struct {
	db *gorm.DB
}

// NewCandleRepository creates a new instance of CandleRepository
func NewCandleRepository(db *gorm.DB) *CandleRepository {
	return &CandleRepository{db: db}
}

// SaveCandles inserts finalized candles in batches. Re-fetched bars for
// the same (symbol, interval, open_time) are ignored so bootstrap and
// stream overlap stays harmless.
func (r *CandleRepository) SaveCandles(candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "interval"}, {Name: "open_time"}},
		DoNothing: true,
	}).CreateInBatches(candles, 200).Error
}

// FindRange retrieves candles for a symbol and interval within a time
// range, oldest first.
func (r *CandleRepository) FindRange(symbol, interval string, start, end time.Time) ([]models.Candle, error) {
	var candles []models.Candle
	err := r.db.Where("symbol = ? AND interval = ? AND open_time BETWEEN ? AND ?",
		models.NormalizeSymbol(symbol), interval, start, end).
		Order("open_time ASC").
		Find(&candles).Error
	return candles, err
}

// Latest returns the most recent candle for a symbol and interval, or
// nil when none exists.
func (r *CandleRepository) Latest(symbol, interval string) (*models.Candle, error) {
	var candle models.Candle
	err := r.db.Where("symbol = ? AND interval = ?", models.NormalizeSymbol(symbol), interval).
		Order("open_time DESC").
		First(&candle).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &candle, nil
}
