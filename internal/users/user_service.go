package users

import (
	"context"
	"errors"

	"github.com/realmgate/realmgate/model"
	"golang.org/x/crypto/bcrypt"
)

var ErrBadCredentials = errors.New("bad credentials")

type UserService struct {
	userRepo UserRepository
}

// VerifyPassword checks a password against the stored hash. It does
// not consult lockout state; callers run the brute-force check around
// it.
func (s *UserService) VerifyPassword(user *model.User, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return ErrBadCredentials
	}
	return nil
}

func (s *UserService) GetByID(ctx context.Context, userID uint) (*model.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

func (s *UserService) GetByUsername(ctx context.Context, realmID uint, username string) (*model.User, error) {
	return s.userRepo.GetByUsername(ctx, realmID, username)
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

func NewUserService(userRepo UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}
