package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultCredentialKey is the fixed name the credential is stored under.
const DefaultCredentialKey = "gemini_api_key"

// Credential is a persisted named secret. Only one row is ever used.
type Credential struct {
	Name      string    `gorm:"column:name;primaryKey;size:64"`
	Value     string    `gorm:"column:value;type:text"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName overrides the default table name.
func (Credential) TableName() string {
	return "credentials"
}

// CredentialRepository stores the credential in postgres through gorm.
type CredentialRepository struct {
	retryPolicy
	db  *gorm.DB
	key string
	now func() time.Time
}

// NewCredentialRepository creates a repository bound to key.
func NewCredentialRepository(db *gorm.DB, key string, logger *zap.Logger) *CredentialRepository {
	if key == "" {
		key = DefaultCredentialKey
	}
	return &CredentialRepository{
		retryPolicy: defaultRetryPolicy(logger.Named("credential_repository")),
		db:          db,
		key:         key,
		now:         time.Now,
	}
}

// AutoMigrate ensures the schema is available.
func (r *CredentialRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&Credential{})
}

// Load returns the stored value, or "" when nothing has been saved yet.
func (r *CredentialRepository) Load(ctx context.Context) (string, error) {
	var row Credential
	err := r.executeWithRetry(ctx, "repository.credential.load", func() error {
		return r.db.WithContext(ctx).First(&row, "name = ?", r.key).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.Value, nil
}

// Save upserts the value under the repository key.
func (r *CredentialRepository) Save(ctx context.Context, value string) error {
	row := &Credential{Name: r.key, Value: value, UpdatedAt: r.now().UTC()}
	return r.executeWithRetry(ctx, "repository.credential.save", func() error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(row).Error
	})
}
