package models

import "time"

// UserProfile 用户资料（由外部认证服务维护，本服务只读推荐归属）
type UserProfile struct {
	ID         string    `gorm:"primarykey;type:varchar(64)" json:"id"`
	Email      string    `gorm:"type:varchar(255);index" json:"email"`
	ReferredBy string    `gorm:"type:varchar(32);index" json:"referred_by,omitempty"`
	Role       string    `gorm:"type:varchar(16);not null;default:'user'" json:"role"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName 指定表名
func (UserProfile) TableName() string {
	return "profiles"
}
