package models

import (
	"time"
)

type User struct {
	UserID         int        `gorm:"primaryKey;column:user_id" json:"user_id"`
	Email          string     `gorm:"column:email;unique" json:"email"`
	HashedPassword string     `gorm:"column:hashed_password" json:"-"`
	FullName       string     `gorm:"column:full_name" json:"full_name"`
	IsAdmin        bool       `gorm:"column:is_admin" json:"is_admin"`
	CreateAt       *time.Time `gorm:"column:create_at" json:"create_at"`
	UpdateAt       *time.Time `gorm:"column:update_at" json:"update_at"`
	DeleteAt       *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`

	// Relations
	Applications []CreditApplication `gorm:"foreignKey:OwnerID" json:"applications,omitempty"`
}

// TableName overrides
func (User) TableName() string {
	return "users"
}
