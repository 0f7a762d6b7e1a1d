package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/greesoft/canteen/core/setting"
)

type settingRepository struct {
	db *sqlx.DB
}

var _ setting.Repository = (*settingRepository)(nil) // interface compliance check

func NewSettingRepository(db *sqlx.DB) *settingRepository {
	return &settingRepository{db: db}
}

func (repo settingRepository) GetSetting(ctx context.Context, name string) (setting.Setting, error) {
	var s setting.Setting
	b := psql.Select("id, name, value, created_at, updated_at").From("settings").Where(sq.Eq{"name": name})
	if err := get(ctx, repo.db, &s, b); err != nil {
		return setting.Setting{}, trapNoRowsErr(err, setting.ErrNotFound, "finding setting")
	}
	return s, nil
}

func (repo settingRepository) CreateSetting(ctx context.Context, s setting.Setting) (setting.Setting, error) {
	b := psql.Insert("settings").
		Columns("name", "value", "created_at", "updated_at").
		Values(s.Name, s.Value, s.CreatedAt, s.UpdatedAt).
		Suffix("RETURNING id")
	if err := get(ctx, repo.db, &s.ID, b); err != nil {
		if isUniqueViolation(err) {
			return setting.Setting{}, setting.ErrAmountExists
		}
		return setting.Setting{}, errors.Wrap(err, "inserting setting")
	}
	return s, nil
}

func (repo settingRepository) SaveSetting(ctx context.Context, s setting.Setting) (setting.Setting, error) {
	b := psql.Insert("settings").
		Columns("name", "value", "created_at", "updated_at").
		Values(s.Name, s.Value, s.CreatedAt, s.UpdatedAt).
		Suffix("ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at " +
			"RETURNING id, name, value, created_at, updated_at")
	var saved setting.Setting
	if err := get(ctx, repo.db, &saved, b); err != nil {
		return setting.Setting{}, errors.Wrap(err, "saving setting")
	}
	return saved, nil
}
