package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/Skotchmaster/sweet_shop/internal/events"
	"github.com/Skotchmaster/sweet_shop/internal/metrics"
	"github.com/Skotchmaster/sweet_shop/internal/models"
	"github.com/Skotchmaster/sweet_shop/internal/repo"
	"github.com/Skotchmaster/sweet_shop/internal/transport"
	"github.com/Skotchmaster/sweet_shop/internal/util"
	"github.com/Skotchmaster/sweet_shop/pkg/logging"
)

// SearchIndex mirrors sweets into a full-text engine. The database stays
// authoritative; index writes are best effort.
type SearchIndex interface {
	IndexSweet(ctx context.Context, s *models.Sweet) error
	DeleteSweet(ctx context.Context, id uint) error
	Reindex(ctx context.Context, sweets []models.Sweet) (int, error)
	Search(ctx context.Context, query string, from, size int) (int64, []models.Sweet, error)
}

type InventoryService struct {
	Repo    *repo.GormRepo
	Events  events.Publisher
	Index   SearchIndex
	Metrics *metrics.Metrics
}

func (s *InventoryService) GetSweet(ctx context.Context, id uint) (*models.Sweet, error) {
	sweet, err := s.Repo.GetSweet(ctx, id)
	if err != nil {
		return nil, notFound(err, id)
	}
	return sweet, nil
}

// ListSweets returns every sweet when page and size are both zero, one page otherwise.
func (s *InventoryService) ListSweets(ctx context.Context, page, size int) (int64, []models.Sweet, error) {
	if page == 0 && size == 0 {
		return s.Repo.GetSweets(ctx, 0, 0)
	}
	if page < 0 || size < 0 {
		return 0, nil, fmt.Errorf("page/size: %w", ErrValidation)
	}
	offset, limit := util.Calculate(page, size)
	return s.Repo.GetSweets(ctx, offset, limit)
}

func (s *InventoryService) SearchSweets(ctx context.Context, f repo.SweetFilter) ([]models.Sweet, error) {
	if f.MinPrice != nil && !validPrice(*f.MinPrice) {
		return nil, fmt.Errorf("minPrice: %w", ErrValidation)
	}
	if f.MaxPrice != nil && !validPrice(*f.MaxPrice) {
		return nil, fmt.Errorf("maxPrice: %w", ErrValidation)
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return nil, fmt.Errorf("minPrice > maxPrice: %w", ErrValidation)
	}
	return s.Repo.SearchSweets(ctx, f)
}

// TextSearch runs a fuzzy query against the search index. Without an index it
// degrades to a substring match on name.
func (s *InventoryService) TextSearch(ctx context.Context, q string, page, size int) (int64, []models.Sweet, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return 0, nil, fmt.Errorf("q: %w", ErrValidation)
	}

	from, limit := util.Calculate(page, size)
	if s.Index == nil {
		items, err := s.Repo.SearchSweets(ctx, repo.SweetFilter{Name: q})
		if err != nil {
			return 0, nil, err
		}
		total := len(items)
		if from > total {
			from = total
		}
		end := min(from+limit, total)
		return int64(total), items[from:end], nil
	}

	return s.Index.Search(ctx, q, from, limit)
}

func (s *InventoryService) CreateSweet(ctx context.Context, req transport.CreateSweetRequest) (*models.Sweet, error) {
	sweet := &models.Sweet{
		Name:     strings.TrimSpace(req.Name),
		Price:    req.Price,
		Quantity: req.Quantity,
		Category: strings.TrimSpace(req.Category),
	}
	if err := validateSweet(sweet); err != nil {
		return nil, err
	}

	created, err := s.Repo.CreateSweet(ctx, sweet)
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, events.TypeSweetCreated, created, 0, 0)
	return created, nil
}

func (s *InventoryService) UpdateSweet(ctx context.Context, id uint, req transport.UpdateSweetRequest) (*models.Sweet, error) {
	if req.Empty() {
		return nil, fmt.Errorf("empty update: %w", ErrValidation)
	}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		req.Name = &trimmed
	}
	if req.Category != nil {
		trimmed := strings.TrimSpace(*req.Category)
		req.Category = &trimmed
	}

	candidate := models.Sweet{Name: "-", Category: "-"}
	if req.Name != nil {
		candidate.Name = *req.Name
	}
	if req.Category != nil {
		candidate.Category = *req.Category
	}
	if req.Price != nil {
		candidate.Price = *req.Price
	}
	if req.Quantity != nil {
		candidate.Quantity = *req.Quantity
	}
	if err := validateSweet(&candidate); err != nil {
		return nil, err
	}

	updated, err := s.Repo.PatchSweet(ctx, req, id)
	if err != nil {
		return nil, notFound(err, id)
	}

	s.afterWrite(ctx, events.TypeSweetUpdated, updated, 0, 0)
	return updated, nil
}

func (s *InventoryService) DeleteSweet(ctx context.Context, id uint) error {
	if err := s.Repo.DeleteSweet(ctx, id); err != nil {
		return notFound(err, id)
	}

	if s.Index != nil {
		ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
		defer cancel()
		if err := s.Index.DeleteSweet(ictx, id); err != nil {
			logging.FromContext(ctx).Warn("search_index_failed", "op", "delete", "sweet_id", id, "error", err)
		}
	}

	publish(ctx, s.Events, s.Metrics, events.TopicSweets, key(id), events.NewSweetEvent(events.TypeSweetDeleted, id))
	return nil
}

func (s *InventoryService) Purchase(ctx context.Context, id uint, qty int, userID uint) (*models.Sweet, error) {
	if qty < 1 || qty > transport.MaxStockDelta {
		return nil, fmt.Errorf("quantity must be between 1 and %d: %w", transport.MaxStockDelta, ErrValidation)
	}

	sweet, err := s.Repo.PurchaseSweet(ctx, id, qty)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrInsufficientStock):
			s.Metrics.ObservePurchase("insufficient_stock", qty)
			return nil, fmt.Errorf("sweet %d: %w", id, ErrInsufficientStock)
		case errors.Is(err, gorm.ErrRecordNotFound):
			s.Metrics.ObservePurchase("not_found", qty)
			return nil, fmt.Errorf("sweet %d: %w", id, ErrNotFound)
		default:
			s.Metrics.ObservePurchase("error", qty)
			return nil, err
		}
	}

	s.Metrics.ObservePurchase("ok", qty)
	s.afterWrite(ctx, events.TypeSweetPurchased, sweet, -qty, userID)
	return sweet, nil
}

func (s *InventoryService) Restock(ctx context.Context, id uint, qty int, userID uint) (*models.Sweet, error) {
	if qty < 1 || qty > transport.MaxStockDelta {
		return nil, fmt.Errorf("quantity must be between 1 and %d: %w", transport.MaxStockDelta, ErrValidation)
	}

	sweet, err := s.Repo.RestockSweet(ctx, id, qty)
	if err != nil {
		return nil, notFound(err, id)
	}

	s.Metrics.ObserveRestock(qty)
	s.afterWrite(ctx, events.TypeSweetRestocked, sweet, qty, userID)
	return sweet, nil
}

// Reindex pushes every stored sweet to the search index.
func (s *InventoryService) Reindex(ctx context.Context) (int, error) {
	if s.Index == nil {
		return 0, nil
	}
	_, items, err := s.Repo.GetSweets(ctx, 0, 0)
	if err != nil {
		return 0, err
	}
	return s.Index.Reindex(ctx, items)
}

func (s *InventoryService) afterWrite(ctx context.Context, typ string, sweet *models.Sweet, delta int, userID uint) {
	if s.Index != nil {
		ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
		if err := s.Index.IndexSweet(ictx, sweet); err != nil {
			logging.FromContext(ctx).Warn("search_index_failed", "op", typ, "sweet_id", sweet.ID, "error", err)
		}
		cancel()
	}

	ev := events.NewSweetEvent(typ, sweet.ID)
	ev.Name = sweet.Name
	ev.Category = sweet.Category
	ev.Price = sweet.Price
	ev.Quantity = sweet.Quantity
	ev.Delta = delta
	ev.UserID = userID
	publish(ctx, s.Events, s.Metrics, events.TopicSweets, key(sweet.ID), ev)
}

func validateSweet(s *models.Sweet) error {
	switch {
	case s.Name == "":
		return fmt.Errorf("name is required: %w", ErrValidation)
	case s.Category == "":
		return fmt.Errorf("category is required: %w", ErrValidation)
	case !validPrice(s.Price):
		return fmt.Errorf("price must be a non-negative number: %w", ErrValidation)
	case s.Quantity < 0 || s.Quantity > transport.MaxQuantity:
		return fmt.Errorf("quantity must be between 0 and %d: %w", transport.MaxQuantity, ErrValidation)
	}
	return nil
}

func validPrice(p float64) bool {
	return p >= 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}

func notFound(err error, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("sweet %d: %w", id, ErrNotFound)
	}
	return err
}

func key(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
