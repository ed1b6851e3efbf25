package memstorage

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/signet-auth/signet-api/internal/domain/user"
	"github.com/signet-auth/signet-api/internal/ierr"
)

// UserRepository holds the operator accounts allowed to manage
// organizations. Seeded from config at startup; not part of the key
// validation path.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*user.User
}

func NewUserRepository(adminUsername, adminPassword string) *UserRepository {
	repo := &UserRepository{users: make(map[string]*user.User)}

	if adminUsername != "" && adminPassword != "" {
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
		admin := &user.User{
			ID:           uuid.New(),
			Username:     adminUsername,
			PasswordHash: string(hashedPassword),
			Role:         "admin",
		}
		repo.users[strings.ToLower(admin.Username)] = admin
	}

	return repo
}

var _ user.Repository = (*UserRepository)(nil)

func (r *UserRepository) FindByUsername(_ context.Context, username string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[strings.ToLower(username)]
	if !ok {
		return nil, ierr.ErrUserNotFound
	}

	userCopy := *u
	return &userCopy, nil
}

func CheckPassword(hashedPassword, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	return err == nil
}
