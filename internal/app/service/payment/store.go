package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/payflow/internal/models"
	"github.com/fatflowers/payflow/pkg/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrConcurrentModification signals that another writer advanced the record
// between our read and our write. Expected under webhook/scheduler races;
// callers treat it as "someone else already finalized this payment".
var ErrConcurrentModification = errors.New("payment was modified concurrently")

// ErrPaymentNotFound is returned when no payment matches the lookup.
var ErrPaymentNotFound = errors.New("payment not found")

// Store persists payment records. UpdateGuarded is the only write path for
// state changes and implements the optimistic version CAS.
type Store interface {
	Create(ctx context.Context, p *models.Payment) error
	Get(ctx context.Context, id string) (*models.Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	// UpdateGuarded writes p conditioned on the version the caller read.
	// On success the stored version is readVersion+1. A row that moved
	// underneath yields ErrConcurrentModification.
	UpdateGuarded(ctx context.Context, p *models.Payment, readVersion int64) error
	// ListStatusOlderThan returns payments in the given status created
	// before cutoff, oldest first.
	ListStatusOlderThan(ctx context.Context, status types.PaymentStatus, cutoff time.Time, limit int) ([]*models.Payment, error)
	Scan(ctx context.Context, req *ScanRequest) ([]*models.Payment, int64, error)
}

// ScanRequest is the admin listing request (filters follow pkg/types).
type ScanRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Create(ctx context.Context, p *models.Payment) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (s *gormStore) Get(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *gormStore) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	var p models.Payment
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *gormStore) UpdateGuarded(ctx context.Context, p *models.Payment, readVersion int64) error {
	res := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND version = ?", p.ID, readVersion).
		Updates(map[string]any{
			"status":               p.Status,
			"external_payment_key": p.ExternalPaymentKey,
			"failure_message":      p.FailureMessage,
			"version":              readVersion + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update payment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConcurrentModification
	}
	p.Version = readVersion + 1
	return nil
}

func (s *gormStore) ListStatusOlderThan(ctx context.Context, status types.PaymentStatus, cutoff time.Time, limit int) ([]*models.Payment, error) {
	var rows []*models.Payment
	q := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", status, cutoff).
		Order("created_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return rows, nil
}

// filtersAnd combines multiple CommonFilter into a single clause.Expression.
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

func (s *gormStore) Scan(ctx context.Context, req *ScanRequest) ([]*models.Payment, int64, error) {
	if req == nil {
		return nil, 0, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.Payment{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	var rows []*models.Payment
	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	if req.SortBy != "" {
		q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: req.SortBy}, Desc: req.SortOrder != "asc"}}})
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}
	return rows, total, nil
}
