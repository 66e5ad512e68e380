package services

import (
	"context"

	"places-server/models"
	"places-server/store"
	"places-server/utils/errors"

	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	store      store.Store
	tokens     *TokenIssuer
	bcryptCost int
}

func NewUserService(st store.Store, tokens *TokenIssuer) *UserService {
	return &UserService{
		store:      st,
		tokens:     tokens,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// GetUsers lists every user without password hashes.
func (s *UserService) GetUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, errors.Storage("Fetching users failed, please try again later.", err)
	}
	if len(users) == 0 {
		return nil, errors.NotFound("Could not find any users.")
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}
