package transport

import "github.com/Skotchmaster/sweet_shop/internal/models"

// Stock limits. The validate tags below repeat these values.
const (
	MaxQuantity   = 1_000_000_000
	MaxStockDelta = 1_000_000
)

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=1,max=72"`
	Name     string `json:"name" validate:"max=255"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt int64        `json:"expiresAt"`
	User      *models.User `json:"user"`
}

type CreateSweetRequest struct {
	Name     string  `json:"name" validate:"required,max=255"`
	Price    float64 `json:"price" validate:"gte=0"`
	Quantity int     `json:"quantity" validate:"gte=0,lte=1000000000"`
	Category string  `json:"category" validate:"required,max=255"`
}

// UpdateSweetRequest carries a partial update; nil fields are left unchanged.
type UpdateSweetRequest struct {
	Name     *string  `json:"name" validate:"omitnil,min=1,max=255"`
	Price    *float64 `json:"price" validate:"omitnil,gte=0"`
	Quantity *int     `json:"quantity" validate:"omitnil,gte=0,lte=1000000000"`
	Category *string  `json:"category" validate:"omitnil,min=1,max=255"`
}

func (r UpdateSweetRequest) Empty() bool {
	return r.Name == nil && r.Price == nil && r.Quantity == nil && r.Category == nil
}

type StockRequest struct {
	Quantity int `json:"quantity" validate:"required,gte=1,lte=1000000"`
}

type SweetResponse struct {
	Message string        `json:"message"`
	Sweet   *models.Sweet `json:"sweet,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type SearchResponse struct {
	Total  int64          `json:"total"`
	Sweets []models.Sweet `json:"sweets"`
}
