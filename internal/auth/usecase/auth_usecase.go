package usecase

import (
	"errors"
	"fmt"
	"strings"
	"time"

	authdomain "raid-mail-agent/internal/auth/domain"
	authdto "raid-mail-agent/internal/auth/dto"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthUsecase issues and validates operator bearer tokens
type AuthUsecase interface {
	IssueToken(operator string) (*authdto.TokenResponse, error)
	ValidateToken(tokenString string) (*authdomain.Operator, error)
}

type authUsecase struct {
	secret []byte
	expiry time.Duration
}

func NewAuthUsecase(secret string, expiry time.Duration) (AuthUsecase, error) {
	if len(secret) < 16 {
		return nil, errors.New("OPERATOR_JWT_SECRET must be at least 16 characters")
	}
	if expiry <= 0 {
		expiry = 12 * time.Hour
	}
	return &authUsecase{secret: []byte(secret), expiry: expiry}, nil
}

func (u *authUsecase) IssueToken(operator string) (*authdto.TokenResponse, error) {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return nil, errors.New("operator name is required")
	}

	now := time.Now()
	expiresAt := now.Add(u.expiry)
	claims := jwt.MapClaims{
		"operator": operator,
		"token_id": uuid.New().String(),
		"exp":      expiresAt.Unix(),
		"iat":      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(u.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &authdto.TokenResponse{AccessToken: signed, ExpiresAt: time.Unix(expiresAt.Unix(), 0)}, nil
}

func (u *authUsecase) ValidateToken(tokenString string) (*authdomain.Operator, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return u.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	name, ok := claims["operator"].(string)
	if !ok || name == "" {
		return nil, errors.New("invalid token claims")
	}
	tokenID, _ := claims["token_id"].(string)

	operator := &authdomain.Operator{Name: name, TokenID: tokenID}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		operator.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		operator.ExpiresAt = exp.Time
	}
	return operator, nil
}
