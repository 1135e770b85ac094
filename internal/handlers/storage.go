package handlers

import (
	"context"
	"time"

	"bestsv/db"
)

type StorageInterface interface {
	GetAccount(ctx context.Context, accountID string) (*db.Account, error)
	SupplierExists(ctx context.Context, supplierID string) (bool, error)

	GetCategories(ctx context.Context) ([]db.Category, error)
	CategoryHasChildren(ctx context.Context, categoryID int) (bool, error)
	CategoryDescendants(ctx context.Context, categoryID int) ([]int, error)

	CreateOrderWithDetails(ctx context.Context, o *db.Order, details []db.OrderDetail) error
	GetOrder(ctx context.Context, orderID int) (*db.Order, error)
	GetOrderDetail(ctx context.Context, orderDetailID int) (*db.OrderDetail, error)
	GetOrderDetails(ctx context.Context, orderID int) ([]db.OrderDetail, error)
	GetOrders(ctx context.Context, f db.OrderFilter) ([]db.Order, error)
	CountOrders(ctx context.Context, accountID string, asSupplier bool) (int, error)
	SoftDeleteOrder(ctx context.Context, orderID int) error
	ClaimOrder(ctx context.Context, orderID int, supplierID string) error
	SetOrderDescriptionFile(ctx context.Context, orderID int, fileRef string) error
	SetOrderDetailFile(ctx context.Context, orderDetailID, orderID int, fileRef string, uploadedAt time.Time) error
	CountDetailEdits(ctx context.Context, orderDetailID int) (int, error)
	ApplyReviewDecision(ctx context.Context, orderDetailID, orderID int, isAccept bool, requirement string, limitEdit int) (int, error)

	GetNegotiation(ctx context.Context, orderID int, supplierID string) (*db.Negotiation, error)
	GetNegotiationDetails(ctx context.Context, orderID int, supplierID string) ([]db.NegotiationDetail, error)
	UpsertNegotiation(ctx context.Context, n *db.Negotiation) error
	UpsertNegotiationDetails(ctx context.Context, orderID int, supplierID string, expired time.Time, items []db.NegotiationDetail) error
	ResolveNegotiation(ctx context.Context, orderID int, supplierID string, isAccept bool) error

	CreateOrderEvaluation(ctx context.Context, e *db.OrderEvaluation) error
	GetOrderEvaluation(ctx context.Context, orderID int, evalType bool) (*db.OrderEvaluation, error)
	EvaluationExists(ctx context.Context, orderID int, evalType bool) (bool, error)
	RateStats(ctx context.Context, subjectID string, asSupplier bool) (db.RateStatistics, error)

	GetOrderTags(ctx context.Context, orderID int) ([]string, error)
	OrderTagExists(ctx context.Context, orderID int, tagID string) (bool, error)
	AttachOrderTag(ctx context.Context, orderID int, tagID string) error
	DetachOrderTag(ctx context.Context, orderID int, tagID string) error
}
