package credentials

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/layer-3/loginguard/core"
	"github.com/layer-3/loginguard/ports"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// User is the persisted principal record
type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"size:64;uniqueIndex;not null"`
	Email        string `gorm:"size:255"`
	PasswordHash string `gorm:"size:255;not null"`
	Role         string `gorm:"size:32;not null;default:user"`
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) toPrincipal() *core.Principal {
	return &core.Principal{
		ID:           strconv.FormatUint(uint64(u.ID), 10),
		Username:     u.Username,
		Email:        u.Email,
		Role:         u.Role,
		PasswordHash: u.PasswordHash,
		LastLoginAt:  u.LastLoginAt,
		CreatedAt:    u.CreatedAt,
	}
}

// GormStore implements ports.CredentialStore on a relational database
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenSQLite opens a sqlite database with duplicate-key errors translated
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	return &GormStore{db: db, now: time.Now}, nil
}

// Migrate creates or updates the users table
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&User{}); err != nil {
		return fmt.Errorf("failed to migrate users: %w", err)
	}
	return nil
}

func (s *GormStore) FindByIdentity(ctx context.Context, identity string) (*core.Principal, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(identity)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user.toPrincipal(), nil
}

func (s *GormStore) TouchLastAuthenticated(ctx context.Context, id string) error {
	userID, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid user id %q", core.ErrValidation, id)
	}
	res := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Update("last_login_at", s.now().UTC())
	if res.Error != nil {
		return fmt.Errorf("failed to update last login: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// Create inserts principal and fills in its ID and CreatedAt
func (s *GormStore) Create(ctx context.Context, principal *core.Principal) error {
	role := principal.Role
	if role == "" {
		role = core.RoleUser
	}
	user := User{
		Username:     strings.TrimSpace(principal.Username),
		Email:        principal.Email,
		PasswordHash: principal.PasswordHash,
		Role:         role,
	}
	err := s.db.WithContext(ctx).Create(&user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", core.ErrIdentityTaken, user.Username)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	created := user.toPrincipal()
	principal.ID = created.ID
	principal.Role = created.Role
	principal.CreatedAt = created.CreatedAt
	return nil
}

// EnsurePrincipal creates the given account unless the identity already
// exists. It reports whether an account was created.
func EnsurePrincipal(ctx context.Context, store ports.CredentialStore, hasher ports.SecretHasher, principal core.Principal, secret string) (bool, error) {
	existing, err := store.FindByIdentity(ctx, principal.Username)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	hash, err := hasher.Hash(secret)
	if err != nil {
		return false, err
	}
	principal.PasswordHash = hash
	if err := store.Create(ctx, &principal); err != nil {
		if errors.Is(err, core.ErrIdentityTaken) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

var _ ports.CredentialStore = (*GormStore)(nil)
