package repository

import (
	"github.com/prperemyshlev/interview-auth/pkg/database"
)

// Repositories holds all repository interfaces
type Repositories struct {
	User       UserRepository
	Permission PermissionRepository
}

// NewRepositories creates all repositories
func NewRepositories(db *database.Postgres) *Repositories {
	return &Repositories{
		User:       NewUserRepository(db),
		Permission: NewPermissionRepository(db),
	}
}
