package service

import (
	"context"
	"errors"
	"fmt"
	"querybot-go/internal/model"
	"querybot-go/internal/repository"
	"querybot-go/internal/session"
	"querybot-go/pkg/hash"
	"querybot-go/pkg/log"
	"querybot-go/pkg/token"
)

var (
	// ErrInvalidCredentials 表示用户名或密码错误。
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrSessionNotFound 表示 token 指向的会话已关闭或服务已重启。
	ErrSessionNotFound = errors.New("session not found")

	// ErrUnknownRole 表示用户配置的角色没有对应的列策略。
	ErrUnknownRole = errors.New("role has no column policy")
)

// LoginResult 是登录成功后返回给客户端的内容。
type LoginResult struct {
	Token     string     `json:"token"`
	SessionID string     `json:"sessionId"`
	Username  string     `json:"username"`
	Role      model.Role `json:"role"`
}

// AuthService 处理登录、登出以及 token 到会话的解析。
type AuthService struct {
	users    repository.UserRepository
	jwt      *token.JWTManager
	sessions *session.Manager
	corpus   *CorpusService
	policy   *model.RolePolicy
}

// NewAuthService 创建 AuthService。角色不在 policy 中的用户无法登录。
func NewAuthService(users repository.UserRepository, jwt *token.JWTManager, sessions *session.Manager, corpus *CorpusService, policy *model.RolePolicy) *AuthService {
	return &AuthService{users: users, jwt: jwt, sessions: sessions, corpus: corpus, policy: policy}
}

// Login 校验密码，为用户创建新会话并签发 token。
func (s *AuthService) Login(username, password string) (*LoginResult, error) {
	user, err := s.users.FindByUsername(username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !hash.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !s.policy.Known(user.Role) {
		log.Warnf("[AuthService] 用户 %s 的角色 %q 未在 roles 中配置，拒绝登录", user.Username, user.Role)
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, user.Role)
	}

	sess := s.sessions.Create(user.Username, user.Role)
	tok, err := s.jwt.GenerateToken(sess.ID, user.Username, string(user.Role))
	if err != nil {
		_ = s.sessions.Close(context.Background(), sess.ID)
		return nil, err
	}
	log.Infof("[AuthService] 用户 %s 登录成功", user.Username)
	return &LoginResult{Token: tok, SessionID: sess.ID, Username: user.Username, Role: user.Role}, nil
}

// Resolve 验证 token 并返回对应的会话。
func (s *AuthService) Resolve(tokenString string) (*session.Session, *token.CustomClaims, error) {
	claims, err := s.jwt.VerifyToken(tokenString)
	if err != nil {
		return nil, nil, err
	}
	sess, ok := s.sessions.Get(claims.SessionID)
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	return sess, claims, nil
}

// Logout 关闭会话并删除其归档文档。
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if s.corpus != nil {
		s.corpus.Forget(ctx, sessionID)
	}
	return s.sessions.Close(ctx, sessionID)
}
