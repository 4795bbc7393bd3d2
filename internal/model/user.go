package model

// User 是可登录的用户，角色决定 SQL 查询中的受限列。
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
}
