package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"parkingnear/internal/domain"
	"parkingnear/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 50
	minPasswordLength = 6
)

type UserService struct {
	repo       domain.Repository
	logger     *zerolog.Logger
	bcryptCost int
}

var _ domain.UserService = (*UserService)(nil)

func NewUserService(repo domain.Repository, logger *zerolog.Logger) *UserService {
	return &UserService{
		repo:       repo,
		logger:     logger,
		bcryptCost: bcrypt.DefaultCost,
	}
}

func (s *UserService) Register(ctx context.Context, username, password, fullName, userType string) (int64, error) {
	username = strings.TrimSpace(username)
	fullName = strings.TrimSpace(fullName)
	userType = strings.ToUpper(strings.TrimSpace(userType))

	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return 0, validationErr("username must be %d to %d characters", minUsernameLength, maxUsernameLength)
	}
	if len(password) < minPasswordLength {
		return 0, validationErr("password must be at least %d characters", minPasswordLength)
	}
	if !models.IsUserType(userType) {
		return 0, validationErr("unknown user type %q", userType)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return 0, validationErr("password cannot be hashed")
	}

	user := &models.User{
		Username:     username,
		PasswordHash: string(hash),
		FullName:     fullName,
		UserType:     userType,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return 0, storeErr(s.logger, "register user", err)
	}

	s.logger.Info().Int64("user_id", user.ID).Str("user_type", userType).Msg("User registered")
	return user.ID, nil
}

// Verify checks credentials. Unknown user and wrong password look the same
// to the caller.
func (s *UserService) Verify(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid credentials", domain.ErrNotFound)
		}
		return nil, storeErr(s.logger, "verify user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("%w: invalid credentials", domain.ErrNotFound)
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, storeErr(s.logger, fmt.Sprintf("get user %d", id), err)
	}
	return user, nil
}

func (s *UserService) SetTelegramChat(ctx context.Context, userID, chatID int64) error {
	if chatID == 0 {
		return validationErr("telegram chat id is required")
	}
	err := s.repo.UpdateUserTelegramChat(ctx, userID, chatID)
	return storeErr(s.logger, fmt.Sprintf("set telegram chat of user %d", userID), err)
}
