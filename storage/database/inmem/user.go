package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckEmailUniqueness(_ context.Context, email string, excludedIDs ...int) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.db.users {
		if strings.EqualFold(usr.Email, email) && !isExcluded(usr.ID, excludedIDs) {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, u := range repo.db.users {
		if strings.EqualFold(u.Email, usr.Email) {
			return user.User{}, user.ErrEmailExists
		}
	}
	usr.ID = repo.db.nextID("users")
	repo.db.users[usr.ID] = usr
	return usr, nil
}

func compareUsers(a, b user.User, field string) int {
	switch field {
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "role":
		return strings.Compare(a.Role, b.Role)
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	case "last_login":
		return compareTimes(a.LastLogin.Time, b.LastLogin.Time)
	default:
		return strings.Compare(a.Name, b.Name)
	}
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		if filter != nil {
			if filter.Search != "" && !contains(usr.Name, filter.Search) && !contains(usr.Email, filter.Search) && !contains(usr.Phone, filter.Search) {
				continue
			}
			if len(filter.Roles) > 0 && !hasString(filter.Roles, usr.Role) {
				continue
			}
			if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
				continue
			}
		}
		users = append(users, usr)
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "name", Ascending: true}}
	}
	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareUsers(users[i], users[j], ord.Field)
			if c == 0 {
				continue
			}
			return (c < 0) == ord.Ascending
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != 0 {
		if usr, ok := repo.db.users[filter.ID]; ok {
			return usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	if filter.Email != "" {
		for _, usr := range repo.db.users {
			if strings.EqualFold(usr.Email, filter.Email) {
				return usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	for _, u := range repo.db.users {
		if u.ID != usr.ID && strings.EqualFold(u.Email, usr.Email) {
			return user.User{}, user.ErrEmailExists
		}
	}
	repo.db.users[usr.ID] = usr
	return usr, nil
}

// DeleteUsersByID also removes their codes and unassigns their classes, as the database cascades do.
func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, id := range ids {
		delete(repo.db.users, id)
		delete(repo.db.otps, id)
		for cid, cls := range repo.db.classes {
			if cls.SupervisorID.Valid && cls.SupervisorID.Int == id {
				cls.SupervisorID.Valid = false
				cls.SupervisorID.Int = 0
				repo.db.classes[cid] = cls
			}
		}
	}
	return nil
}

func (repo *userRepository) SaveOTP(_ context.Context, otp user.OTP) (user.OTP, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for userID, pending := range repo.db.otps {
		if userID != otp.UserID && pending.Code == otp.Code {
			return user.OTP{}, user.ErrOTPCodeTaken
		}
	}
	if prev, ok := repo.db.otps[otp.UserID]; ok {
		otp.ID = prev.ID
	} else {
		otp.ID = repo.db.nextID("otp_codes")
	}
	repo.db.otps[otp.UserID] = otp
	return otp, nil
}

func (repo *userRepository) GetOTPByUserID(_ context.Context, userID int) (user.OTP, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if otp, ok := repo.db.otps[userID]; ok {
		return otp, nil
	}
	return user.OTP{}, user.ErrOTPNotFound
}

func (repo *userRepository) GetOTPByCode(_ context.Context, code string) (user.OTP, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var found *user.OTP
	for _, otp := range repo.db.otps {
		if otp.Code == code && (found == nil || otp.CreatedAt.After(found.CreatedAt)) {
			otp := otp
			found = &otp
		}
	}
	if found == nil {
		return user.OTP{}, user.ErrOTPNotFound
	}
	return *found, nil
}

func (repo *userRepository) DeleteOTP(_ context.Context, userID int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.otps, userID)
	return nil
}
