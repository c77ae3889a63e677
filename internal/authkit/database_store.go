package authkit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("database_store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("database_store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("database_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("database_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("database_store.unsupported_no_scheme")
)

// DatabaseStore persists accounts, role assignments, and refresh tokens using GORM.
type DatabaseStore struct {
	db          *gorm.DB
	driverLabel string
}

// Driver exposes the selected database driver label.
func (store *DatabaseStore) Driver() string {
	return store.driverLabel
}

type applicationUserRecord struct {
	ID              string `gorm:"column:id;primaryKey"`
	Fullname        string `gorm:"column:fullname;not null"`
	Email           string `gorm:"column:email;not null"`
	NormalizedEmail string `gorm:"column:normalized_email;uniqueIndex;not null"`
	PasswordHash    string `gorm:"column:password_hash;not null"`
	CreatedAtUnix   int64  `gorm:"column:created_at_unix;not null"`
}

func (applicationUserRecord) TableName() string {
	return "application_users"
}

type systemRoleRecord struct {
	ID   uint   `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;uniqueIndex;not null"`
}

func (systemRoleRecord) TableName() string {
	return "system_roles"
}

type userRoleRecord struct {
	UserID string `gorm:"column:user_id;primaryKey"`
	RoleID uint   `gorm:"column:role_id;index;not null"`
}

func (userRoleRecord) TableName() string {
	return "user_roles"
}

type refreshTokenRecord struct {
	UserID        string `gorm:"column:user_id;primaryKey"`
	TokenHash     string `gorm:"column:token_hash;uniqueIndex;not null"`
	UpdatedAtUnix int64  `gorm:"column:updated_at_unix;not null"`
}

func (refreshTokenRecord) TableName() string {
	return "refresh_token_infos"
}

// NewDatabaseStore opens databaseURL (postgres:// or sqlite://) and migrates the schema.
func NewDatabaseStore(ctx context.Context, databaseURL string) (*DatabaseStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database_store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("database_store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&applicationUserRecord{}, &systemRoleRecord{}, &userRoleRecord{}, &refreshTokenRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("database_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseStore{
		db:          gormDB,
		driverLabel: driverLabel,
	}, nil
}

// Close releases the underlying connection pool.
func (store *DatabaseStore) Close() error {
	sqlDB, err := store.db.DB()
	if err != nil {
		return fmt.Errorf("database_store.close.%s: %w", store.driverLabel, err)
	}
	return sqlDB.Close()
}

// CreateUser inserts the account and its role assignment in one transaction.
func (store *DatabaseStore) CreateUser(ctx context.Context, registration UserRegistration) (StoredUser, string, error) {
	record := applicationUserRecord{
		ID:              uuid.NewString(),
		Fullname:        registration.Fullname,
		Email:           registration.Email,
		NormalizedEmail: normalizeEmail(registration.Email),
		PasswordHash:    registration.PasswordHash,
		CreatedAtUnix:   time.Now().UTC().Unix(),
	}
	var assignedRole string
	txErr := store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&applicationUserRecord{}).Where("normalized_email = ?", record.NormalizedEmail).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrUserAlreadyRegistered
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		adminRole := systemRoleRecord{Name: registration.AdminRole}
		adminInsert := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&adminRole)
		if adminInsert.Error != nil {
			return adminInsert.Error
		}
		role := adminRole
		if adminInsert.RowsAffected == 0 {
			role = systemRoleRecord{}
			if err := tx.Where(systemRoleRecord{Name: registration.DefaultRole}).FirstOrCreate(&role).Error; err != nil {
				return err
			}
		}
		assignedRole = role.Name
		return tx.Create(&userRoleRecord{UserID: record.ID, RoleID: role.ID}).Error
	})
	if txErr != nil {
		if errors.Is(txErr, ErrUserAlreadyRegistered) {
			return StoredUser{}, "", ErrUserAlreadyRegistered
		}
		return StoredUser{}, "", fmt.Errorf("database_store.create_user.%s: %w", store.driverLabel, txErr)
	}
	return record.toStoredUser(), assignedRole, nil
}

// FindUserByEmail matches email case-insensitively.
func (store *DatabaseStore) FindUserByEmail(ctx context.Context, email string) (StoredUser, error) {
	var record applicationUserRecord
	err := store.db.WithContext(ctx).Where("normalized_email = ?", normalizeEmail(email)).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return StoredUser{}, ErrUserNotFound
		}
		return StoredUser{}, fmt.Errorf("database_store.find_user_by_email.%s: %w", store.driverLabel, err)
	}
	return record.toStoredUser(), nil
}

// FindUserByID returns the account with the given id.
func (store *DatabaseStore) FindUserByID(ctx context.Context, applicationUserID string) (StoredUser, error) {
	var record applicationUserRecord
	err := store.db.WithContext(ctx).Where("id = ?", applicationUserID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return StoredUser{}, ErrUserNotFound
		}
		return StoredUser{}, fmt.Errorf("database_store.find_user_by_id.%s: %w", store.driverLabel, err)
	}
	return record.toStoredUser(), nil
}

// FindUserRole returns the name of the role assigned to the account.
func (store *DatabaseStore) FindUserRole(ctx context.Context, applicationUserID string) (string, error) {
	var role systemRoleRecord
	err := store.db.WithContext(ctx).
		Model(&systemRoleRecord{}).
		Joins("JOIN user_roles ON user_roles.role_id = system_roles.id").
		Where("user_roles.user_id = ?", applicationUserID).
		Take(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrRoleNotFound
		}
		return "", fmt.Errorf("database_store.find_user_role.%s: %w", store.driverLabel, err)
	}
	return role.Name, nil
}

// Upsert overwrites the user's refresh token record in place or inserts it.
func (store *DatabaseStore) Upsert(ctx context.Context, applicationUserID string, tokenOpaque string) error {
	if strings.TrimSpace(tokenOpaque) == "" {
		return fmt.Errorf("refresh_store.upsert.%s: %w", store.driverLabel, ErrRefreshTokenEmptyOpaque)
	}
	record := refreshTokenRecord{
		UserID:        applicationUserID,
		TokenHash:     HashRefreshToken(tokenOpaque),
		UpdatedAtUnix: time.Now().UTC().Unix(),
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token_hash", "updated_at_unix"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("refresh_store.upsert.%s: %w", store.driverLabel, err)
	}
	return nil
}

// FindUserByToken locates a refresh token by its opaque value.
func (store *DatabaseStore) FindUserByToken(ctx context.Context, tokenOpaque string) (string, error) {
	if strings.TrimSpace(tokenOpaque) == "" {
		return "", fmt.Errorf("refresh_store.find.%s: %w", store.driverLabel, ErrRefreshTokenEmptyOpaque)
	}
	var record refreshTokenRecord
	err := store.db.WithContext(ctx).Where("token_hash = ?", HashRefreshToken(tokenOpaque)).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("refresh_store.find.%s: %w", store.driverLabel, ErrRefreshTokenNotFound)
		}
		return "", fmt.Errorf("refresh_store.find.%s: %w", store.driverLabel, err)
	}
	return record.UserID, nil
}

// Rotate replaces the user's token with a conditional update keyed on the previous hash,
// so of two racing rotations exactly one matches the row.
func (store *DatabaseStore) Rotate(ctx context.Context, applicationUserID string, previousOpaque string, nextOpaque string) error {
	if strings.TrimSpace(previousOpaque) == "" || strings.TrimSpace(nextOpaque) == "" {
		return fmt.Errorf("refresh_store.rotate.%s: %w", store.driverLabel, ErrRefreshTokenEmptyOpaque)
	}
	result := store.db.WithContext(ctx).Model(&refreshTokenRecord{}).
		Where("user_id = ? AND token_hash = ?", applicationUserID, HashRefreshToken(previousOpaque)).
		Updates(map[string]any{
			"token_hash":      HashRefreshToken(nextOpaque),
			"updated_at_unix": time.Now().UTC().Unix(),
		})
	if result.Error != nil {
		return fmt.Errorf("refresh_store.rotate.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("refresh_store.rotate.%s: %w", store.driverLabel, ErrRefreshTokenNotFound)
	}
	return nil
}

// Delete removes the user's refresh token record.
func (store *DatabaseStore) Delete(ctx context.Context, applicationUserID string) error {
	result := store.db.WithContext(ctx).Where("user_id = ?", applicationUserID).Delete(&refreshTokenRecord{})
	if result.Error != nil {
		return fmt.Errorf("refresh_store.delete.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("refresh_store.delete.%s: %w", store.driverLabel, ErrRefreshTokenNotFound)
	}
	return nil
}

func (record applicationUserRecord) toStoredUser() StoredUser {
	return StoredUser{
		ID:           record.ID,
		Fullname:     record.Fullname,
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
	}
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("database_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("database_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("database_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("database_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
