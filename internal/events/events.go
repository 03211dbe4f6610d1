package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeSweetCreated   = "sweet_created"
	TypeSweetUpdated   = "sweet_updated"
	TypeSweetDeleted   = "sweet_deleted"
	TypeSweetPurchased = "sweet_purchased"
	TypeSweetRestocked = "sweet_restocked"
	TypeUserRegistered = "user_registered"
)

type SweetEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	SweetID    uint      `json:"sweetID"`
	Name       string    `json:"name,omitempty"`
	Category   string    `json:"category,omitempty"`
	Price      float64   `json:"price,omitempty"`
	Quantity   int       `json:"quantity"`
	Delta      int       `json:"delta,omitempty"`
	UserID     uint      `json:"userID,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

type UserEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserID     uint      `json:"userID"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	OccurredAt time.Time `json:"occurredAt"`
}

func NewSweetEvent(typ string, sweetID uint) SweetEvent {
	return SweetEvent{ID: uuid.NewString(), Type: typ, SweetID: sweetID, OccurredAt: time.Now().UTC()}
}

func NewUserEvent(typ string, userID uint, email, role string) UserEvent {
	return UserEvent{ID: uuid.NewString(), Type: typ, UserID: userID, Email: email, Role: role, OccurredAt: time.Now().UTC()}
}
