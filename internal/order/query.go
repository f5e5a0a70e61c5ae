package order

import (
	"context"
	"strings"
	"time"

	"kasir-be/internal/logger"
	"kasir-be/internal/utils"

	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxStatsDays     = 366
)

func (s *service) GetOrder(ctx context.Context, rawID string) (*Order, error) {
	const op = "get order"

	id, ok := utils.ParseID(rawID)
	if !ok {
		return nil, newError(KindNotFound, op, ErrNotFound)
	}

	o, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		err = classify(op, err)
		if KindOf(err) != KindNotFound {
			logger.FromCtx(ctx).Error("failed to get order", zap.Int64("order_id", id), zap.Error(err))
		}
		return nil, err
	}
	return o, nil
}

func (s *service) GetOrderByCode(ctx context.Context, code string) (*Order, error) {
	const op = "get order by code"

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, newError(KindNotFound, op, ErrNotFound)
	}

	o, err := s.Repo.GetByCode(ctx, code)
	if err != nil {
		return nil, classify(op, err)
	}
	return o, nil
}

func (s *service) ListOrders(ctx context.Context, f ListFilter) (*ListResult, error) {
	const op = "list orders"

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ListOrders"),
	)

	/* ---------- INPUT NORMALIZATION ---------- */

	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	} else if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	f.Search = strings.TrimSpace(f.Search)

	if f.Status != nil && !f.Status.Valid() {
		return nil, validationError(op, "unknown payment status %q", *f.Status)
	}
	if f.StartDate != nil {
		start := startOfDay(*f.StartDate, s.cfg.Location)
		f.StartDate = &start
	}
	if f.EndDate != nil {
		end := endOfDay(*f.EndDate, s.cfg.Location)
		f.EndDate = &end
	}
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		return nil, validationError(op, "startDate is after endDate")
	}

	orders, total, err := s.Repo.List(ctx, f)
	if err != nil {
		log.Error("failed to list orders", zap.Error(err))
		return nil, classify(op, err)
	}

	log.Debug("list orders success", zap.Int("count", len(orders)), zap.Int("total", total))
	return &ListResult{Orders: orders, Total: total, Limit: f.Limit, Page: f.Page}, nil
}

func (s *service) ListOrdersByDateRange(ctx context.Context, from, to time.Time) ([]*Order, error) {
	const op = "list orders by date range"

	start := startOfDay(from, s.cfg.Location)
	end := endOfDay(to, s.cfg.Location)
	if start.After(end) {
		return nil, validationError(op, "from is after to")
	}

	orders, err := s.Repo.ListByDateRange(ctx, start, end)
	if err != nil {
		return nil, classify(op, err)
	}
	return orders, nil
}

func (s *service) GetStats(ctx context.Context, r StatsRange) (*Stats, error) {
	const op = "get stats"

	var from, to time.Time
	switch {
	case r.Date != nil:
		from = startOfDay(*r.Date, s.cfg.Location)
		to = from.AddDate(0, 0, 1)
	default:
		days := r.Days
		if days == 0 {
			days = 1
		}
		if days < 0 || days > maxStatsDays {
			return nil, validationError(op, "days must be between 1 and %d", maxStatsDays)
		}
		today := startOfDay(s.cfg.Now(), s.cfg.Location)
		from = today.AddDate(0, 0, -(days - 1))
		to = today.AddDate(0, 0, 1)
	}

	stats, err := s.Repo.Stats(ctx, from, to)
	if err != nil {
		return nil, classify(op, err)
	}
	return stats, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// endOfDay expands a date to its last representable instant.
func endOfDay(t time.Time, loc *time.Location) time.Time {
	return startOfDay(t, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
