package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// 可编辑模板的角色
const (
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

// ErrForbiddenRole token 有效但角色无编辑权限
var ErrForbiddenRole = errors.New("role is not allowed to edit templates")

// EditorClaims 编辑者 JWT 声明
type EditorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// EditorTokenValidator HS256 共享密钥校验器
type EditorTokenValidator struct {
	secret []byte
	now    func() time.Time
}

// NewEditorTokenValidator 创建校验器
func NewEditorTokenValidator(secret string) *EditorTokenValidator {
	return &EditorTokenValidator{secret: []byte(secret), now: time.Now}
}

// IssueToken 签发编辑者 token
func (v *EditorTokenValidator) IssueToken(subject, role string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := EditorClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// ValidateToken 校验签名、有效期与角色
func (v *EditorTokenValidator) ValidateToken(tokenString string) (*EditorClaims, error) {
	claims := &EditorClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	switch claims.Role {
	case RoleEditor, RoleAdmin:
		return claims, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrForbiddenRole, claims.Role)
	}
}

// BearerToken 从 Authorization 头取出 token
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// EditorAuthMiddleware 编辑权限中间件
// onError 负责写回错误响应,validator 为空时直接放行
func EditorAuthMiddleware(validator *EditorTokenValidator, onError func(c *gin.Context, status int, message, detail string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if validator == nil {
			c.Next()
			return
		}

		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			onError(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			onError(c, http.StatusUnauthorized, "unauthorized", err.Error())
			c.Abort()
			return
		}

		c.Set("user_id", claims.Subject)
		c.Set("role", claims.Role)
		c.Next()
	}
}
