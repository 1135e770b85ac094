package db

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// Negotiation (Торг по заказу целиком: встречный срок выполнения).
// Одна активная запись на пару (order_id, supplier_id).
type Negotiation struct {
	OrderID                   int       `db:"order_id" json:"orderId"`
	SupplierID                string    `db:"supplier_id" json:"supplierId"`
	OrderMaxDurationByMinutes int       `db:"order_max_duration_by_minutes" json:"orderMaxDurationByMinutes"`
	OrderLimitEdit            int       `db:"order_limit_edit" json:"orderLimitEdit"`
	CreatedAt                 time.Time `db:"created_at" json:"createdAt"`
	Expired                   time.Time `db:"expired" json:"expired"`
}

// NegotiationDetail (Торг по строке: встречная цена и количество).
// Строчные предложения одного продавца создаются пакетом и делят один
// срок действия Expired.
type NegotiationDetail struct {
	OrderDetailID        int       `db:"order_detail_id" json:"orderDetailId"`
	SupplierID           string    `db:"supplier_id" json:"supplierId"`
	OrderDetailQuantity  int       `db:"order_detail_quantity" json:"orderDetailQuantity"`
	OrderDetailUnitPrice float64   `db:"order_detail_unit_price" json:"orderDetailUnitPrice"`
	CreatedAt            time.Time `db:"created_at" json:"createdAt"`
	Expired              time.Time `db:"expired" json:"expired"`
}

// GetNegotiation возвращает (nil, nil), если у продавца нет активного
// торга по заказу.
func (s *Storage) GetNegotiation(ctx context.Context, orderID int, supplierID string) (*Negotiation, error) {
	n := &Negotiation{}
	query := `SELECT * FROM negotiations WHERE order_id = $1 AND supplier_id = lower($2)`
	err := s.db.GetContext(ctx, n, query, orderID, supplierID)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Storage) GetNegotiationDetails(ctx context.Context, orderID int, supplierID string) ([]NegotiationDetail, error) {
	details := []NegotiationDetail{}
	query := `
        SELECT nd.* FROM negotiation_details nd
        JOIN order_details d ON nd.order_detail_id = d.order_detail_id
        WHERE d.order_id = $1 AND nd.supplier_id = lower($2)
        ORDER BY nd.order_detail_id ASC`
	err := s.db.SelectContext(ctx, &details, query, orderID, supplierID)
	return details, err
}

// markNegotiating переводит открытый заказ (статус 1) в Negotiating.
// Заказы в других статусах не трогаются.
func markNegotiating(ctx context.Context, tx *sqlx.Tx, orderID int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET process_status_id = $2 WHERE order_id = $1 AND process_status_id = $3`,
		orderID, StatusNegotiating, StatusPending)
	return err
}

// UpsertNegotiation - повторная подача того же продавца перезаписывает
// запись на месте: обновляются срок, дедлайн и время создания. В той же
// транзакции открытый заказ переходит в Negotiating.
func (s *Storage) UpsertNegotiation(ctx context.Context, n *Negotiation) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO negotiations
            (order_id, supplier_id, order_max_duration_by_minutes, order_limit_edit, created_at, expired)
        VALUES
            ($1, lower($2), $3, $4, NOW(), $5)
        ON CONFLICT (order_id, supplier_id) DO UPDATE
        SET order_max_duration_by_minutes = EXCLUDED.order_max_duration_by_minutes,
            order_limit_edit = EXCLUDED.order_limit_edit,
            created_at = NOW(),
            expired = EXCLUDED.expired`
	if _, err := tx.ExecContext(ctx, query,
		n.OrderID, n.SupplierID, n.OrderMaxDurationByMinutes, n.OrderLimitEdit, n.Expired); err != nil {
		return err
	}
	if err := markNegotiating(ctx, tx, n.OrderID); err != nil {
		return err
	}

	return tx.Commit()
}

// UpsertNegotiationDetails пишет пакет строчных предложений одной
// транзакцией с общим сроком действия.
func (s *Storage) UpsertNegotiationDetails(ctx context.Context, orderID int, supplierID string, expired time.Time, items []NegotiationDetail) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO negotiation_details
            (order_detail_id, supplier_id, order_detail_quantity, order_detail_unit_price, created_at, expired)
        VALUES
            ($1, lower($2), $3, $4, NOW(), $5)
        ON CONFLICT (order_detail_id, supplier_id) DO UPDATE
        SET order_detail_quantity = EXCLUDED.order_detail_quantity,
            order_detail_unit_price = EXCLUDED.order_detail_unit_price,
            created_at = NOW(),
            expired = EXCLUDED.expired`
	for _, item := range items {
		if _, err := tx.ExecContext(ctx, query,
			item.OrderDetailID, supplierID, item.OrderDetailQuantity,
			item.OrderDetailUnitPrice, expired); err != nil {
			return err
		}
	}
	if err := markNegotiating(ctx, tx, orderID); err != nil {
		return err
	}

	return tx.Commit()
}

// ResolveNegotiation закрывает торг продавца по заказу одной
// транзакцией. При согласии заказ переходит в Accepted, продавец
// назначается, если не был назначен, и перенимаются ещё не истёкшие
// предложения (срок заказа, цена и количество строк). Независимо от
// исхода все записи торга этого продавца удаляются разом; торг других
// продавцов не затрагивается.
func (s *Storage) ResolveNegotiation(ctx context.Context, orderID int, supplierID string, isAccept bool) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Повторное чтение под блокировкой: параллельная переподача
	// предложения не должна перемешаться с перенятием значений.
	n := &Negotiation{}
	hasNegotiation := true
	err = tx.GetContext(ctx, n,
		`SELECT * FROM negotiations WHERE order_id = $1 AND supplier_id = lower($2) FOR UPDATE`,
		orderID, supplierID)
	if IsNotFound(err) {
		hasNegotiation = false
	} else if err != nil {
		return err
	}

	details := []NegotiationDetail{}
	if err := tx.SelectContext(ctx, &details, `
        SELECT nd.* FROM negotiation_details nd
        JOIN order_details d ON nd.order_detail_id = d.order_detail_id
        WHERE d.order_id = $1 AND nd.supplier_id = lower($2)
        FOR UPDATE OF nd`, orderID, supplierID); err != nil {
		return err
	}

	if !hasNegotiation && len(details) == 0 {
		return ErrNotFound
	}

	now := time.Now().UTC()

	if isAccept {
		if _, err := tx.ExecContext(ctx, `
            UPDATE orders
            SET supplier_id = CASE WHEN supplier_id = '' THEN lower($2) ELSE supplier_id END,
                process_status_id = $3
            WHERE order_id = $1`,
			orderID, supplierID, StatusAccepted); err != nil {
			return err
		}

		if hasNegotiation && n.Expired.After(now) {
			if _, err := tx.ExecContext(ctx,
				`UPDATE orders SET max_duration_by_minutes = $2 WHERE order_id = $1`,
				orderID, n.OrderMaxDurationByMinutes); err != nil {
				return err
			}
		}

		for _, item := range details {
			if !item.Expired.After(now) {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE order_details SET unit_price = $2, quantity = $3 WHERE order_detail_id = $1`,
				item.OrderDetailID, item.OrderDetailUnitPrice, item.OrderDetailQuantity); err != nil {
				return err
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM negotiations WHERE order_id = $1 AND supplier_id = lower($2)`,
		orderID, supplierID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
        DELETE FROM negotiation_details
        WHERE supplier_id = lower($2)
          AND order_detail_id IN (SELECT order_detail_id FROM order_details WHERE order_id = $1)`,
		orderID, supplierID); err != nil {
		return err
	}

	return tx.Commit()
}
