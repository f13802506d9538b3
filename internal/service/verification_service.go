package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/ulma/ulma/internal/config"
	"github.com/ulma/ulma/internal/models"
)

// PhoneRegistry tells whether a phone number already belongs to an account.
type PhoneRegistry interface {
	ExistsByPhone(ctx context.Context, phoneNumber string) (bool, error)
}

// VerificationService issues and checks signup phone codes. Codes are stored
// hashed in Redis for the verification window; a verified number is remembered
// until signup completes or the signup window passes.
type VerificationService struct {
	client *redis.Client
	users  PhoneRegistry
	cfg    *config.VerificationConfig
	logger *logrus.Logger
}

func NewVerificationService(client *redis.Client, users PhoneRegistry, cfg *config.VerificationConfig, logger *logrus.Logger) *VerificationService {
	return &VerificationService{
		client: client,
		users:  users,
		cfg:    cfg,
		logger: logger,
	}
}

func codeKey(phoneNumber string) string {
	return fmt.Sprintf("verification:%s", phoneNumber)
}

func verifiedKey(phoneNumber string) string {
	return fmt.Sprintf("verified:%s", phoneNumber)
}

// SendCode issues a new code for phoneNumber, replacing any previous one.
// SMS delivery is not wired; the code is logged.
func (s *VerificationService) SendCode(ctx context.Context, phoneNumber string) (string, error) {
	registered, err := s.users.ExistsByPhone(ctx, phoneNumber)
	if err != nil {
		return "", err
	}
	if registered {
		return "", ErrPhoneRegistered
	}

	code, err := s.generateCode(s.cfg.CodeLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash code: %w", err)
	}

	now := time.Now()
	data := models.VerificationData{
		CodeHash:  string(hashed),
		Phone:     phoneNumber,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.Window),
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal verification data: %w", err)
	}

	if err := s.client.Set(ctx, codeKey(phoneNumber), dataJSON, s.cfg.Window).Err(); err != nil {
		s.logger.WithError(err).Error("Failed to store verification code in Redis")
		return "", fmt.Errorf("failed to store verification code: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"phone": phoneNumber,
		"code":  code,
	}).Info("Verification code issued (logged for development)")

	return code, nil
}

// VerifyCode checks code for phoneNumber. A wrong code counts as an attempt;
// the code is dropped once MaxAttempts is reached.
func (s *VerificationService) VerifyCode(ctx context.Context, phoneNumber, code string) error {
	key := codeKey(phoneNumber)

	dataJSON, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrCodeNotFound
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to get verification code from Redis")
		return fmt.Errorf("failed to get verification code: %w", err)
	}

	var data models.VerificationData
	if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
		return fmt.Errorf("failed to unmarshal verification data: %w", err)
	}

	if time.Now().After(data.ExpiresAt) {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			s.logger.WithError(err).Warn("Failed to delete expired verification code")
		}
		return ErrCodeNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(data.CodeHash), []byte(code)); err != nil {
		data.Attempts++
		if data.Attempts >= s.cfg.MaxAttempts {
			if err := s.client.Del(ctx, key).Err(); err != nil {
				s.logger.WithError(err).Error("Failed to delete exhausted verification code")
			}
			s.logger.WithField("phone", phoneNumber).Warn("Verification attempts exhausted")
			return ErrCodeMismatch
		}
		updated, err := json.Marshal(data)
		if err != nil {
			s.logger.WithError(err).Error("Failed to marshal verification data")
			return ErrCodeMismatch
		}
		if err := s.client.Set(ctx, key, updated, time.Until(data.ExpiresAt)).Err(); err != nil {
			s.logger.WithError(err).WithField("attempts", data.Attempts).Error("Failed to record verification attempt")
		}
		return ErrCodeMismatch
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.Set(ctx, verifiedKey(phoneNumber), "1", s.cfg.SignupWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to mark phone number verified")
		return fmt.Errorf("failed to mark phone verified: %w", err)
	}
	return nil
}

func (s *VerificationService) IsVerified(ctx context.Context, phoneNumber string) (bool, error) {
	n, err := s.client.Exists(ctx, verifiedKey(phoneNumber)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check verification: %w", err)
	}
	return n == 1, nil
}

// ClearVerified forgets a verified number once it was used for signup.
func (s *VerificationService) ClearVerified(ctx context.Context, phoneNumber string) error {
	return s.client.Del(ctx, verifiedKey(phoneNumber)).Err()
}

func (s *VerificationService) generateCode(length int) (string, error) {
	code := ""
	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		code += num.String()
	}
	return code, nil
}
