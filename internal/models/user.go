package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	UserTypeClient   = "client"
	UserTypeMerchant = "merchant"
	UserTypeAdmin    = "admin"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Name           string
	Email          string
	Type           string
	Photo          *string // nil if user has no photo
	HashedPassword string
}
