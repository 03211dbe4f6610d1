package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/sweet_shop/internal/models"
	"github.com/Skotchmaster/sweet_shop/internal/transport"
)

var ErrInsufficientStock = errors.New("insufficient stock")

type SweetFilter struct {
	Name     string
	Category string
	MinPrice *float64
	MaxPrice *float64
}

func (r *GormRepo) GetSweet(ctx context.Context, id uint) (*models.Sweet, error) {
	sweet := models.Sweet{}
	if err := r.DB.WithContext(ctx).First(&sweet, id).Error; err != nil {
		return nil, err
	}
	return &sweet, nil
}

// GetSweets returns sweets ordered by id. A non-positive limit returns every row.
func (r *GormRepo) GetSweets(ctx context.Context, offset, limit int) (int64, []models.Sweet, error) {
	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.Sweet{}).Count(&total).Error; err != nil {
		return 0, nil, err
	}

	q := r.DB.WithContext(ctx).Model(&models.Sweet{}).Order("id ASC")
	if limit > 0 {
		q = q.Offset(offset).Limit(limit)
	}

	items := make([]models.Sweet, 0)
	if err := q.Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

func (r *GormRepo) SearchSweets(ctx context.Context, f SweetFilter) ([]models.Sweet, error) {
	q := r.DB.WithContext(ctx).Model(&models.Sweet{})

	if name := strings.TrimSpace(f.Name); name != "" {
		q = q.Where("LOWER(name) LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(name))+"%")
	}
	if category := strings.TrimSpace(f.Category); category != "" {
		q = q.Where("LOWER(category) = ?", strings.ToLower(category))
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}

	items := make([]models.Sweet, 0)
	if err := q.Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormRepo) CreateSweet(ctx context.Context, sweet *models.Sweet) (*models.Sweet, error) {
	if err := r.DB.WithContext(ctx).Create(sweet).Error; err != nil {
		return nil, err
	}
	return sweet, nil
}

func (r *GormRepo) PatchSweet(ctx context.Context, req transport.UpdateSweetRequest, id uint) (*models.Sweet, error) {
	var sweet models.Sweet
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sweet, id).Error; err != nil {
			return err
		}

		if req.Name != nil {
			sweet.Name = *req.Name
		}
		if req.Price != nil {
			sweet.Price = *req.Price
		}
		if req.Quantity != nil {
			sweet.Quantity = *req.Quantity
		}
		if req.Category != nil {
			sweet.Category = *req.Category
		}

		return tx.Save(&sweet).Error
	})
	if err != nil {
		return nil, err
	}
	return &sweet, nil
}

func (r *GormRepo) DeleteSweet(ctx context.Context, id uint) error {
	res := r.DB.WithContext(ctx).Delete(&models.Sweet{}, id)
	if res.Error != nil {
		return res.Error
	}

	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

// PurchaseSweet takes qty units out of stock with a single conditional
// UPDATE. It returns ErrInsufficientStock when the row exists but holds less
// than qty.
func (r *GormRepo) PurchaseSweet(ctx context.Context, id uint, qty int) (*models.Sweet, error) {
	var sweet models.Sweet
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Sweet{}).
			Where("id = ? AND quantity >= ?", id, qty).
			Update("quantity", gorm.Expr("quantity - ?", qty))
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			if err := tx.First(&sweet, id).Error; err != nil {
				return err
			}
			return ErrInsufficientStock
		}

		return tx.First(&sweet, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &sweet, nil
}

func (r *GormRepo) RestockSweet(ctx context.Context, id uint, qty int) (*models.Sweet, error) {
	var sweet models.Sweet
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Sweet{}).
			Where("id = ?", id).
			Update("quantity", gorm.Expr("quantity + ?", qty))
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return tx.First(&sweet, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &sweet, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
