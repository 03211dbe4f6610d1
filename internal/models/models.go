package models

import "time"

type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

func AllRoles() []string {
	return []string{string(RoleAdmin), string(RoleUser)}
}

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:255" json:"name"`
	Email        string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         Role      `gorm:"size:16;not null" json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"-"`
}

type Sweet struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null;index" json:"name"`
	Price     float64   `gorm:"not null;check:chk_sweets_price,price >= 0" json:"price"`
	Quantity  int       `gorm:"not null;default:0;check:chk_sweets_quantity,quantity >= 0" json:"quantity"`
	Category  string    `gorm:"size:255;not null;index" json:"category"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func All() []any {
	return []any{&User{}, &Sweet{}}
}
