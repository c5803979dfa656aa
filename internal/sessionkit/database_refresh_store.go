package sessionkit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("refresh_store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("refresh_store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("refresh_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("refresh_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("refresh_store.unsupported_no_scheme")
)

// DatabaseRefreshTokenStore persists refresh credentials using GORM.
type DatabaseRefreshTokenStore struct {
	db          *gorm.DB
	driverLabel string
}

// Driver exposes the selected database driver label.
func (store *DatabaseRefreshTokenStore) Driver() string {
	return store.driverLabel
}

type refreshCredentialRow struct {
	TokenID       string `gorm:"column:token_id;primaryKey"`
	PrincipalID   string `gorm:"column:principal_id;index;not null"`
	TokenHash     string `gorm:"column:token_hash;uniqueIndex;not null"`
	ExpiresUnix   int64  `gorm:"column:expires_unix;index;not null"`
	RevokedAtUnix int64  `gorm:"column:revoked_at_unix;not null;default:0"`
	IssuedAtUnix  int64  `gorm:"column:issued_at_unix;not null"`
	UserAgent     string `gorm:"column:user_agent;not null;default:''"`
	SourceIP      string `gorm:"column:source_ip;not null;default:''"`
}

func (refreshCredentialRow) TableName() string {
	return "refresh_credentials"
}

// NewDatabaseRefreshTokenStore constructs a GORM-backed store from a
// postgres:// or sqlite:// URL.
func NewDatabaseRefreshTokenStore(ctx context.Context, databaseURL string) (*DatabaseRefreshTokenStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("refresh_store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("refresh_store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&refreshCredentialRow{}); migrateErr != nil {
		return nil, fmt.Errorf("refresh_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseRefreshTokenStore{
		db:          gormDB,
		driverLabel: driverLabel,
	}, nil
}

// Create inserts a new refresh credential row.
func (store *DatabaseRefreshTokenStore) Create(ctx context.Context, record RefreshRecord) error {
	if strings.TrimSpace(record.TokenHash) == "" {
		return fmt.Errorf("refresh_store.create.%s: %w", store.driverLabel, ErrRefreshRecordEmptyHash)
	}
	row := refreshCredentialRow{
		TokenID:       record.TokenID,
		PrincipalID:   record.PrincipalID,
		TokenHash:     record.TokenHash,
		ExpiresUnix:   record.ExpiresUnix,
		RevokedAtUnix: record.RevokedAtUnix,
		IssuedAtUnix:  record.IssuedAtUnix,
		UserAgent:     record.UserAgent,
		SourceIP:      record.SourceIP,
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("refresh_store.create.%s: %w", store.driverLabel, err)
	}
	return nil
}

// Consume claims the live row matching the hash. The guarded UPDATE is the
// atomic step: the second of two concurrent rotations affects zero rows and
// reports the record as gone.
func (store *DatabaseRefreshTokenStore) Consume(ctx context.Context, tokenHash string, now time.Time) (RefreshRecord, error) {
	if strings.TrimSpace(tokenHash) == "" {
		return RefreshRecord{}, fmt.Errorf("refresh_store.consume.%s: %w", store.driverLabel, ErrRefreshRecordEmptyHash)
	}
	var row refreshCredentialRow
	findErr := store.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Take(&row).Error
	if findErr != nil {
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			return RefreshRecord{}, fmt.Errorf("refresh_store.consume.%s: %w", store.driverLabel, ErrRefreshRecordNotFound)
		}
		return RefreshRecord{}, fmt.Errorf("refresh_store.consume.%s: %w", store.driverLabel, findErr)
	}
	result := store.db.WithContext(ctx).Model(&refreshCredentialRow{}).
		Where("token_hash = ? AND revoked_at_unix = 0 AND expires_unix > ?", tokenHash, now.Unix()).
		Update("revoked_at_unix", now.Unix())
	if result.Error != nil {
		return RefreshRecord{}, fmt.Errorf("refresh_store.consume.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return RefreshRecord{}, fmt.Errorf("refresh_store.consume.%s: %w", store.driverLabel, ErrRefreshRecordNotFound)
	}
	row.RevokedAtUnix = now.Unix()
	return recordFromRow(row), nil
}

// Revoke marks the row matching the hash revoked; zero affected rows is a
// no-op success.
func (store *DatabaseRefreshTokenStore) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	result := store.db.WithContext(ctx).Model(&refreshCredentialRow{}).
		Where("token_hash = ? AND revoked_at_unix = 0", tokenHash).
		Update("revoked_at_unix", now.Unix())
	if result.Error != nil {
		return fmt.Errorf("refresh_store.revoke.%s: %w", store.driverLabel, result.Error)
	}
	return nil
}

// RevokeAllForPrincipal marks every live row owned by the principal revoked.
func (store *DatabaseRefreshTokenStore) RevokeAllForPrincipal(ctx context.Context, principalID string, now time.Time) error {
	result := store.db.WithContext(ctx).Model(&refreshCredentialRow{}).
		Where("principal_id = ? AND revoked_at_unix = 0", principalID).
		Update("revoked_at_unix", now.Unix())
	if result.Error != nil {
		return fmt.Errorf("refresh_store.revoke_all.%s: %w", store.driverLabel, result.Error)
	}
	return nil
}

// DeleteExpired purges expired or revoked rows and returns the count removed.
func (store *DatabaseRefreshTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := store.db.WithContext(ctx).
		Where("expires_unix <= ? OR revoked_at_unix <> 0", now.Unix()).
		Delete(&refreshCredentialRow{})
	if result.Error != nil {
		return 0, fmt.Errorf("refresh_store.cleanup.%s: %w", store.driverLabel, result.Error)
	}
	return result.RowsAffected, nil
}

func recordFromRow(row refreshCredentialRow) RefreshRecord {
	return RefreshRecord{
		TokenID:       row.TokenID,
		PrincipalID:   row.PrincipalID,
		TokenHash:     row.TokenHash,
		ExpiresUnix:   row.ExpiresUnix,
		RevokedAtUnix: row.RevokedAtUnix,
		IssuedAtUnix:  row.IssuedAtUnix,
		UserAgent:     row.UserAgent,
		SourceIP:      row.SourceIP,
	}
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("refresh_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("refresh_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("refresh_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("refresh_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
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
