package users

import (
	"time"
)

// Role distinguishes the two marketplace roles a user can declare.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleExecutor Role = "EXECUTOR"
)

// Valid reports whether the role is one of the declared marketplace roles.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleExecutor
}

// User is the internal identity created on first successful authentication.
// The Telegram id is the unique external key; the two rating fields hold the
// last recomputed reputation means per role-partition.
type User struct {
	ID               string    `gorm:"column:id;primaryKey;size:36;not null" json:"id"`
	TelegramID       string    `gorm:"column:tg_id;size:32;not null;uniqueIndex" json:"tgId"`
	Username         string    `gorm:"column:username;size:190" json:"username"`
	Role             *Role     `gorm:"column:role;size:16" json:"role"`
	RatingAsExecutor float64   `gorm:"column:rating_as_executor;not null;default:0" json:"ratingAsExec"`
	RatingAsCustomer float64   `gorm:"column:rating_as_customer;not null;default:0" json:"ratingAsCust"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

// TableName exposes the table backing marketplace users.
func (User) TableName() string {
	return "users"
}
