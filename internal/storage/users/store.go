package users

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("user not found")

// User is one registered account. PasswordHash is a bcrypt hash, never the
// plaintext credential.
type User struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"uniqueIndex;size:80;not null"`
	Email        string `gorm:"uniqueIndex;size:120;not null"`
	PasswordHash string `gorm:"size:200;not null"`
	CreatedAt    time.Time
}

// Store persists user accounts in SQLite.
type Store struct {
	db *gorm.DB
}

// New migrates the users table and returns the store.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, errors.Wrap(err, "migrate users table")
	}
	return &Store{db: db}, nil
}

// Create inserts a new user and returns it with its assigned id.
func (s *Store) Create(ctx context.Context, username, email, passwordHash string) (*User, error) {
	user := &User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, errors.Wrap(err, "create user")
	}
	return user, nil
}

// ByEmail looks a user up by email.
func (s *Store) ByEmail(ctx context.Context, email string) (*User, error) {
	return s.first(ctx, "email = ?", email)
}

// ByUsername looks a user up by username.
func (s *Store) ByUsername(ctx context.Context, username string) (*User, error) {
	return s.first(ctx, "username = ?", username)
}

func (s *Store) first(ctx context.Context, query string, arg any) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).First(&user, query, arg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load user")
	}
	return &user, nil
}
