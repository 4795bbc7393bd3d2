package repository

import (
	"errors"
	"querybot-go/internal/config"
	"querybot-go/internal/model"
	"strings"
)

// ErrUserNotFound 表示用户名不存在。
var ErrUserNotFound = errors.New("user not found")

// UserRepository 接口定义了用户数据的读取操作。
type UserRepository interface {
	FindByUsername(username string) (*model.User, error)
	FindAll() ([]model.User, error)
}

// configUserRepository 从配置文件加载用户，进程运行期间只读。
type configUserRepository struct {
	users map[string]model.User
	order []string
}

// NewUserRepository 根据 auth.users 配置创建 UserRepository。
func NewUserRepository(users []config.UserConfig) UserRepository {
	r := &configUserRepository{users: make(map[string]model.User, len(users))}
	for _, u := range users {
		name := strings.TrimSpace(u.Username)
		if name == "" {
			continue
		}
		if _, dup := r.users[name]; !dup {
			r.order = append(r.order, name)
		}
		r.users[name] = model.User{
			Username:     name,
			PasswordHash: u.PasswordHash,
			Role:         model.Role(strings.ToLower(u.Role)),
		}
	}
	return r
}

// FindByUsername 根据用户名查找一个用户。
func (r *configUserRepository) FindByUsername(username string) (*model.User, error) {
	u, ok := r.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// FindAll 按配置顺序返回所有用户。
func (r *configUserRepository) FindAll() ([]model.User, error) {
	out := make([]model.User, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.users[name])
	}
	return out, nil
}
