package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ulma/ulma/internal/config"
	"github.com/ulma/ulma/internal/models"
)

const accessTokenType = "access"

type JWTService struct {
	secretKey    []byte
	accessExpiry time.Duration
	logger       *logrus.Logger
}

func NewJWTService(cfg *config.JWTConfig, logger *logrus.Logger) (*JWTService, error) {
	secretKey := []byte(cfg.SecretKey)
	if len(secretKey) < 32 {
		return nil, fmt.Errorf("secret key must be at least 32 bytes")
	}

	return &JWTService{
		secretKey:    secretKey,
		accessExpiry: cfg.AccessExpiry,
		logger:       logger,
	}, nil
}

type Claims struct {
	UserID string `json:"uid"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

// GenerateAccessToken issues a bearer token for the given login id.
func (s *JWTService) GenerateAccessToken(userID string) (*models.TokenPair, error) {
	now := time.Now()

	claims := &Claims{
		UserID: userID,
		Type:   accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessExpiry)),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign access token")
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return &models.TokenPair{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.accessExpiry.Seconds()),
	}, nil
}

func (s *JWTService) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Type != accessTokenType {
		return nil, fmt.Errorf("token is not an access token")
	}

	return claims, nil
}
