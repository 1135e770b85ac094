package db

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// Статусы жизненного цикла заказа (process_status_id)
const (
	StatusPending            = 1 // открыт, исполнитель не выбран
	StatusAssignedNegotiable = 2 // исполнитель назначен, но ещё не принял
	StatusNegotiating        = 3 // идёт торг
	StatusAccepted           = 4 // исполнитель принял заказ
	StatusUnderReview        = 5 // есть загруженный результат, ждёт проверки
	StatusRevisionRequested  = 6 // покупатель вернул на доработку
	StatusCompleted          = 7 // завершён
	StatusFailed             = 8 // отозван или ошибочен
)

// Границы бизнес-правил заказа
const (
	MinCompletionMinutes = 180         // минимум 3 часа на выполнение
	MaxCompletionMinutes = 7 * 24 * 60 // максимум 7 дней
	DefaultCommission    = 5.0         // комиссия по умолчанию, %
)

// ReviewFreshnessWindow - окно, в течение которого покупатель должен
// проверить загруженный результат; после него строка считается
// разрешённой при подсчёте завершения заказа.
const ReviewFreshnessWindow = 6 * time.Hour

// Account (Аккаунт покупателя; account_id - это email в нижнем регистре)
type Account struct {
	AccountID   string    `db:"account_id" json:"accountId"`
	DisplayName string    `db:"display_name" json:"displayName"`
	SecretKey   string    `db:"secret_key" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

func (s *Storage) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	a := &Account{}
	query := `SELECT * FROM account WHERE account_id = lower($1)`
	err := s.db.GetContext(ctx, a, query, accountID)
	return a, err
}

// Supplier (Продавец; supplier_id совпадает с account_id аккаунта)
type Supplier struct {
	SupplierID  string    `db:"supplier_id" json:"supplierId"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

func (s *Storage) SupplierExists(ctx context.Context, supplierID string) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM supplier WHERE supplier_id = lower($1)`
	err := s.db.GetContext(ctx, &count, query, supplierID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Category (Категория; дерево через parent_category_id)
type Category struct {
	CategoryID       int    `db:"category_id" json:"categoryId"`
	CategoryName     string `db:"category_name" json:"categoryName"`
	Description      string `db:"description" json:"description"`
	ParentCategoryID *int   `db:"parent_category_id" json:"parentCategoryId,omitempty"`
}

func (s *Storage) GetCategories(ctx context.Context) ([]Category, error) {
	categories := []Category{}
	query := `SELECT * FROM category ORDER BY category_id ASC`
	err := s.db.SelectContext(ctx, &categories, query)
	return categories, err
}

func (s *Storage) ChildCategories(ctx context.Context, categoryID int) ([]int, error) {
	ids := []int{}
	query := `SELECT category_id FROM category WHERE parent_category_id = $1`
	err := s.db.SelectContext(ctx, &ids, query, categoryID)
	return ids, err
}

// CategoryHasChildren проверяет, является ли категория листовой.
// Только листовые категории допустимы у строк заказа.
func (s *Storage) CategoryHasChildren(ctx context.Context, categoryID int) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM category WHERE parent_category_id = $1`
	err := s.db.GetContext(ctx, &count, query, categoryID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CategoryDescendants возвращает все транзитивные подкатегории,
// не включая саму категорию.
func (s *Storage) CategoryDescendants(ctx context.Context, categoryID int) ([]int, error) {
	return walkDescendants(func(id int) ([]int, error) {
		return s.ChildCategories(ctx, id)
	}, categoryID)
}

// walkDescendants - обход дерева в ширину по списку смежности.
// Дерево конечно и ациклично по построению схемы, trace защищает
// от повторного раскрытия одного узла.
func walkDescendants(children func(int) ([]int, error), root int) ([]int, error) {
	result, err := children(root)
	if err != nil {
		return nil, err
	}
	trace := map[int]bool{}

	for i := 0; i < len(result); i++ {
		if trace[result[i]] {
			continue
		}
		trace[result[i]] = true

		next, err := children(result[i])
		if err != nil {
			return nil, err
		}
		result = append(result, next...)
	}

	return result, nil
}

// Теги заказа. Общий словарь тегов, тег хранится в нижнем регистре.

func (s *Storage) GetOrderTags(ctx context.Context, orderID int) ([]string, error) {
	tags := []string{}
	query := `SELECT tag_id FROM order_tag WHERE order_id = $1 ORDER BY tag_id ASC`
	err := s.db.SelectContext(ctx, &tags, query, orderID)
	return tags, err
}

func (s *Storage) OrderTagExists(ctx context.Context, orderID int, tag string) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM order_tag WHERE order_id = $1 AND tag_id = lower($2)`
	err := s.db.GetContext(ctx, &count, query, orderID, tag)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AttachOrderTag добавляет тег заказу, при необходимости создавая
// запись в общем словаре тегов.
func (s *Storage) AttachOrderTag(ctx context.Context, orderID int, tag string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tag (tag_id) VALUES (lower($1)) ON CONFLICT (tag_id) DO NOTHING`, tag); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO order_tag (order_id, tag_id) VALUES ($1, lower($2))`, orderID, tag); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Storage) DetachOrderTag(ctx context.Context, orderID int, tag string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM order_tag WHERE order_id = $1 AND tag_id = lower($2)`, orderID, tag)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
