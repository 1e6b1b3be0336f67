package repositories

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"MarginTradeBot/internal/models"
)

type TradeLogRepository struct {
	db *gorm.DB
}

// NewTradeLogRepository creates a new instance of TradeLogRepository
func NewTradeLogRepository(db *gorm.DB) *TradeLogRepository {
	return &TradeLogRepository{db: db}
}

// Record appends one journal entry. The journal is append-only; entries
// are never updated or deleted.
func (r *TradeLogRepository) Record(entry models.TradeLog) error {
	if entry.Symbol == "" {
		return errors.New("trade log symbol cannot be empty")
	}
	return r.db.Create(&entry).Error
}

// FindBySymbol retrieves the journal for one symbol, oldest first.
func (r *TradeLogRepository) FindBySymbol(symbol string) ([]models.TradeLog, error) {
	var entries []models.TradeLog
	err := r.db.Where("symbol = ?", models.NormalizeSymbol(symbol)).
		Order("timestamp ASC").
		Find(&entries).Error
	return entries, err
}

// FindSince retrieves all entries at or after the given time.
func (r *TradeLogRepository) FindSince(since time.Time) ([]models.TradeLog, error) {
	var entries []models.TradeLog
	err := r.db.Where("timestamp >= ?", since).
		Order("timestamp ASC").
		Find(&entries).Error
	return entries, err
}

// RealizedPnL sums the realized pnl of closes at or after the given time.
func (r *TradeLogRepository) RealizedPnL(since time.Time) (float64, error) {
	var total float64
	err := r.db.Model(&models.TradeLog{}).
		Where("action = ? AND timestamp >= ?", models.TradeActionClose, since).
		Select("COALESCE(SUM(pn_l), 0)").
		Scan(&total).Error
	return total, err
}
