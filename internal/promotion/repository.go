package promotion

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kasir-be/internal/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const selectColumns = `id, name, description, promotion_type, status, start_date, end_date,
	markup_percentage, target_margin, rules, configuration`

type Repository interface {
	GetByID(ctx context.Context, id int64) (*Promotion, error)
	ListActive(ctx context.Context, now time.Time) ([]*Promotion, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Promotion, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM promotions WHERE id = $1`, id)

	p, err := scanPromotion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPromotionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get promotion %d: %w", id, err)
	}
	return p, nil
}

// ListActive returns promotions whose status and window allow them at now.
// Rows with an undecodable rule are skipped and logged.
func (r *repository) ListActive(ctx context.Context, now time.Time) ([]*Promotion, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "ListActive"),
	)

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM promotions
		WHERE status = 'active'
			AND (start_date IS NULL OR start_date <= $1)
			AND (end_date IS NULL OR end_date >= $1)
		ORDER BY id`, now)
	if err != nil {
		return nil, fmt.Errorf("list active promotions: %w", err)
	}
	defer rows.Close()

	var promos []*Promotion
	for rows.Next() {
		p, err := scanPromotion(rows)
		if errors.Is(err, ErrInvalidRule) || errors.Is(err, ErrUnknownType) {
			log.Warn("skipping promotion with invalid rule", zap.Error(err))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("scan promotion: %w", err)
		}
		promos = append(promos, p)
	}
	return promos, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

// scanPromotion treats NULL dates as an open window bound and NULL
// markup or margin as zero.
func scanPromotion(s scanner) (*Promotion, error) {
	var (
		p                    Promotion
		description          sql.NullString
		rawType, rawStatus   string
		start, end           sql.NullTime
		markup, margin       decimal.NullDecimal
		rules, configuration []byte
	)
	if err := s.Scan(
		&p.ID, &p.Name, &description, &rawType, &rawStatus,
		&start, &end, &markup, &margin,
		&rules, &configuration,
	); err != nil {
		return nil, err
	}
	if description.Valid {
		p.Description = &description.String
	}
	if start.Valid {
		p.StartDate = start.Time
	}
	if end.Valid {
		p.EndDate = end.Time
	}
	if markup.Valid {
		p.MarkupPercentage = markup.Decimal
	}
	if margin.Valid {
		p.TargetMargin = margin.Decimal
	}
	p.Status = Status(rawStatus)

	t, err := ParseType(rawType)
	if err != nil {
		return nil, fmt.Errorf("promotion %d: %w", p.ID, err)
	}
	p.Type = t

	rule, err := DecodeRule(t, rules, configuration)
	if err != nil {
		return nil, fmt.Errorf("promotion %d: %w", p.ID, err)
	}
	p.Rule = rule
	return &p, nil
}
