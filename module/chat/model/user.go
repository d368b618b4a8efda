package model

import (
	"fmt"
	"strconv"
	"strings"
)

// UserID 外部用户库的主键，本服务只读
type UserID int64

func ParseUserID(s string) (UserID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse user id %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("parse user id %q: must be positive", s)
	}
	return UserID(n), nil
}

func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

func (id UserID) Valid() bool { return id > 0 }

// User 只携带展示用字段
type User struct {
	ID             UserID `db:"user_id"`         // 用户ID
	Name           string `db:"name"`            // 显示名，可为空
	Email          string `db:"email"`           // 邮箱
	ProfilePicture string `db:"profile_picture"` // 头像路径，可为空
}

func (u *User) TableName() string {
	return "users"
}

// DisplayName 名字为空时回落为 "User <id>"
func (u User) DisplayName() string {
	if n := strings.TrimSpace(u.Name); n != "" {
		return n
	}
	return "User " + u.ID.String()
}

func (u User) Avatar(fallback string) string {
	if p := strings.TrimSpace(u.ProfilePicture); p != "" {
		return p
	}
	return fallback
}

// NormalizeEmail 比较邮箱前统一去空白、转小写
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SameEmail 大小写不敏感比较
func SameEmail(a, b string) bool {
	na := NormalizeEmail(a)
	return na != "" && na == NormalizeEmail(b)
}
