package sqlxrepos

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/user"
)

const otpCodeKey = "otp_codes_code_key"

const userColumns = "id, name, email, role, phone, gender, is_active, password_hash, created_at, updated_at, last_login"

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedIDs ...int) error {
	b := psql.Select("count(*)").From("users").Where(sq.Eq{"lower(email)": strings.ToLower(email)})
	if len(excludedIDs) > 0 {
		b = b.Where(sq.NotEq{"id": excludedIDs})
	}
	var cnt int
	if err := get(ctx, repo.db, &cnt, b); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if cnt > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	b := psql.Insert("users").
		Columns("name", "email", "role", "phone", "gender", "is_active", "password_hash", "created_at", "updated_at", "last_login").
		Values(usr.Name, usr.Email, usr.Role, usr.Phone, usr.Gender, usr.IsActive, usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt, usr.LastLogin).
		Suffix("RETURNING id")
	if err := get(ctx, repo.db, &usr.ID, b); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	b := psql.Select(userColumns).From("users")
	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			b = b.Where(sq.Or{sq.ILike{"name": val}, sq.ILike{"email": val}, sq.ILike{"phone": val}})
		}
		if len(filter.Roles) > 0 {
			b = b.Where(sq.Eq{"role": filter.Roles})
		}
		if filter.IsActive != nil {
			b = b.Where(sq.Eq{"is_active": *filter.IsActive})
		}
	}
	b = orderBy(b, "", ordering, "name ASC", "id ASC")

	users := make([]user.User, 0)
	if err := selectAll(ctx, repo.db, &users, b); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	b := psql.Select(userColumns).From("users")
	switch {
	case filter.ID != 0:
		b = b.Where(sq.Eq{"id": filter.ID})
	case filter.Email != "":
		b = b.Where(sq.Eq{"lower(email)": strings.ToLower(filter.Email)})
	default:
		return user.User{}, user.ErrNotFound
	}

	var usr user.User
	if err := get(ctx, repo.db, &usr, b); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return usr, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	b := psql.Update("users").SetMap(map[string]interface{}{
		"name":          usr.Name,
		"email":         usr.Email,
		"role":          usr.Role,
		"phone":         usr.Phone,
		"gender":        usr.Gender,
		"is_active":     usr.IsActive,
		"password_hash": usr.PasswordHash,
		"updated_at":    usr.UpdatedAt,
		"last_login":    usr.LastLogin,
	}).Where(sq.Eq{"id": usr.ID})

	n, err := exec(ctx, repo.db, b)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids ...int) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := exec(ctx, repo.db, psql.Delete("users").Where(sq.Eq{"id": ids}))
	return errors.Wrap(err, "deleting users")
}

func (repo userRepository) SaveOTP(ctx context.Context, otp user.OTP) (user.OTP, error) {
	b := psql.Insert("otp_codes").
		Columns("user_id", "code", "expires_at", "created_at").
		Values(otp.UserID, otp.Code, otp.ExpiresAt, otp.CreatedAt).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET code = EXCLUDED.code, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at RETURNING id")
	if err := get(ctx, repo.db, &otp.ID, b); err != nil {
		if isUniqueViolation(err, otpCodeKey) {
			return user.OTP{}, user.ErrOTPCodeTaken
		}
		return user.OTP{}, errors.Wrap(err, "saving code")
	}
	return otp, nil
}

func (repo userRepository) getOTP(ctx context.Context, where sq.Sqlizer) (user.OTP, error) {
	b := psql.Select("id, user_id, code, expires_at, created_at").From("otp_codes").Where(where).
		OrderBy("created_at DESC").Limit(1)
	var otp user.OTP
	if err := get(ctx, repo.db, &otp, b); err != nil {
		return user.OTP{}, trapNoRowsErr(err, user.ErrOTPNotFound, "finding code")
	}
	return otp, nil
}

func (repo userRepository) GetOTPByUserID(ctx context.Context, userID int) (user.OTP, error) {
	return repo.getOTP(ctx, sq.Eq{"user_id": userID})
}

func (repo userRepository) GetOTPByCode(ctx context.Context, code string) (user.OTP, error) {
	return repo.getOTP(ctx, sq.Eq{"code": code})
}

func (repo userRepository) DeleteOTP(ctx context.Context, userID int) error {
	_, err := exec(ctx, repo.db, psql.Delete("otp_codes").Where(sq.Eq{"user_id": userID}))
	return errors.Wrap(err, "deleting code")
}
