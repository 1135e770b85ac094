package db

import (
	"context"
	"time"
)

// Направления оценки (eval_type)
const (
	EvalBuyerRatesSupplier   = false // покупатель оценивает продавца
	EvalSupplierRatesAccount = true  // продавец оценивает покупателя
)

// OrderEvaluation (Оценка заказа; не более одной на пару заказ+направление)
type OrderEvaluation struct {
	OrderID   int       `db:"order_id" json:"orderId"`
	EvalType  bool      `db:"eval_type" json:"evalType"`
	Rate      int       `db:"rate" json:"rate"`
	Comment   string    `db:"comment" json:"comment,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// RateStatistics (Сводка оценок субъекта)
type RateStatistics struct {
	AverageRate float64 `db:"average_rate" json:"averageRate"`
	Count       int     `db:"count" json:"count"`
}

func (s *Storage) CreateOrderEvaluation(ctx context.Context, e *OrderEvaluation) error {
	query := `
        INSERT INTO order_evaluations (order_id, eval_type, rate, comment, created_at)
        VALUES ($1, $2, $3, $4, NOW())
        RETURNING created_at`
	return s.db.QueryRowContext(ctx, query, e.OrderID, e.EvalType, e.Rate, e.Comment).
		Scan(&e.CreatedAt)
}

func (s *Storage) GetOrderEvaluation(ctx context.Context, orderID int, evalType bool) (*OrderEvaluation, error) {
	e := &OrderEvaluation{}
	query := `SELECT * FROM order_evaluations WHERE order_id = $1 AND eval_type = $2`
	err := s.db.GetContext(ctx, e, query, orderID, evalType)
	return e, err
}

func (s *Storage) EvaluationExists(ctx context.Context, orderID int, evalType bool) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM order_evaluations WHERE order_id = $1 AND eval_type = $2`
	err := s.db.GetContext(ctx, &count, query, orderID, evalType)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RateStats агрегирует оценки по всем заказам субъекта как покупателя
// либо как продавца. Отсутствие оценок - не ошибка: Count = 0.
func (s *Storage) RateStats(ctx context.Context, subjectID string, asSupplier bool) (RateStatistics, error) {
	column := "account_id"
	if asSupplier {
		column = "supplier_id"
	}
	stats := RateStatistics{}
	query := `
        SELECT COALESCE(AVG(e.rate), 0) AS average_rate, COUNT(1) AS count
        FROM order_evaluations e
        JOIN orders o ON e.order_id = o.order_id
        WHERE o.` + column + ` = lower($1)`
	err := s.db.GetContext(ctx, &stats, query, subjectID)
	return stats, err
}
