package models

import (
	"time"
)

type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Username     string     `gorm:"not null" json:"username"`
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	Role         string     `gorm:"size:20;default:'user';not null" json:"role"` // user, admin
	Coins        int64      `gorm:"default:0;not null" json:"coins"`             // 主余额，只能通过 coins + ? 修改
	IsBot        bool       `gorm:"default:false;index" json:"is_bot"`           // bot 身份账号
	LastActiveAt *time.Time `gorm:"index" json:"last_active_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}

// UserFollow is a follow edge; bots create these from their identity user.
type UserFollow struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	FollowerID  uint      `gorm:"not null;uniqueIndex:idx_follower_following" json:"follower_id"`
	FollowingID uint      `gorm:"not null;index;uniqueIndex:idx_follower_following" json:"following_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// ActivityDayLayout is the format of ActivityDay.Day.
const ActivityDayLayout = "2006-01-02"

// ActivityDay marks one local calendar day on which a user was active.
type ActivityDay struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_user_day" json:"user_id"`
	Day       string    `gorm:"size:10;not null;index;uniqueIndex:idx_user_day" json:"day"`
	CreatedAt time.Time `json:"created_at"`
}
