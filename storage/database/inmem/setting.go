package inmemdb

import (
	"context"

	"github.com/greesoft/canteen/core/setting"
)

type settingRepository struct {
	db *DB
}

var _ setting.Repository = (*settingRepository)(nil) // interface compliance check

func NewSettingRepository(db *DB) *settingRepository {
	return &settingRepository{db: db}
}

func (repo *settingRepository) GetSetting(_ context.Context, name string) (setting.Setting, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.settings[name]; ok {
		return s, nil
	}
	return setting.Setting{}, setting.ErrNotFound
}

func (repo *settingRepository) CreateSetting(_ context.Context, s setting.Setting) (setting.Setting, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.settings[s.Name]; ok {
		return setting.Setting{}, setting.ErrAmountExists
	}
	s.ID = repo.db.nextID("settings")
	repo.db.settings[s.Name] = s
	return s, nil
}

func (repo *settingRepository) SaveSetting(_ context.Context, s setting.Setting) (setting.Setting, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if orig, ok := repo.db.settings[s.Name]; ok {
		s.ID = orig.ID
		s.CreatedAt = orig.CreatedAt
	} else {
		s.ID = repo.db.nextID("settings")
	}
	repo.db.settings[s.Name] = s
	return s, nil
}
