package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/ulma/ulma/internal/models"
	"github.com/ulma/ulma/internal/repository"
)

const minPasswordLength = 8

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByLoginID(ctx context.Context, loginID string) (*models.User, error)
}

// VerifiedPhones is the part of VerificationService signup depends on.
type VerifiedPhones interface {
	IsVerified(ctx context.Context, phoneNumber string) (bool, error)
	ClearVerified(ctx context.Context, phoneNumber string) error
}

type SignupInput struct {
	LoginID     string
	Password    string
	Name        string
	BirthDate   string
	PhoneNumber string
}

type AccountService struct {
	users    UserStore
	verified VerifiedPhones
	logger   *logrus.Logger
}

func NewAccountService(users UserStore, verified VerifiedPhones, logger *logrus.Logger) *AccountService {
	return &AccountService{
		users:    users,
		verified: verified,
		logger:   logger,
	}
}

// Signup creates an account for a phone number verified within the signup
// window.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	in.LoginID = strings.TrimSpace(in.LoginID)
	if in.LoginID == "" {
		return nil, &InputError{Message: "loginId is required"}
	}
	if len(in.Password) < minPasswordLength {
		return nil, &InputError{Message: fmt.Sprintf("password must be at least %d characters", minPasswordLength)}
	}
	if in.PhoneNumber == "" {
		return nil, &InputError{Message: "phoneNumber is required"}
	}

	ok, err := s.verified.IsVerified(ctx, in.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPhoneNotVerified
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		UserID:       in.LoginID,
		PhoneNumber:  in.PhoneNumber,
		Name:         strings.TrimSpace(in.Name),
		BirthDate:    in.BirthDate,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, ErrAccountExists
		}
		return nil, err
	}

	if err := s.verified.ClearVerified(ctx, in.PhoneNumber); err != nil {
		s.logger.WithError(err).WithField("phone", in.PhoneNumber).Warn("Failed to clear verified marker")
	}

	s.logger.WithField("user_id", user.UserID).Info("Account created")
	return user, nil
}

func (s *AccountService) Login(ctx context.Context, loginID, password string) (*models.User, error) {
	user, err := s.users.GetByLoginID(ctx, strings.TrimSpace(loginID))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
