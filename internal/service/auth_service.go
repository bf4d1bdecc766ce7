package service

import (
	"fmt"

	"github.com/examguard/examguard-backend/internal/config"
	"github.com/examguard/examguard-backend/internal/model"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT payload issued by the platform's auth boundary.
// This service only consumes tokens; issuing them belongs to the wider
// platform.
type Claims struct {
	UserID int        `json:"user_id"`
	Role   model.Role `json:"role"`
	jwt.RegisteredClaims
}

// AuthService resolves the authenticated caller from a bearer token.
type AuthService struct {
	secret []byte
}

// NewAuthService creates an AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{secret: []byte(cfg.JWTSecret)}
}

// ValidateToken parses and verifies a JWT, returning the caller principal.
func (s *AuthService) ValidateToken(tokenStr string) (model.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return model.Principal{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return model.Principal{}, fmt.Errorf("invalid token")
	}

	switch claims.Role {
	case model.RoleStudent, model.RoleTeacher, model.RoleAdmin:
	default:
		return model.Principal{}, fmt.Errorf("unknown role %q", claims.Role)
	}
	return model.Principal{ID: claims.UserID, Role: claims.Role}, nil
}
