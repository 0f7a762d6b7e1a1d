package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/greesoft/canteen/core"
)

// Roles
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleTeacher    = "TEACHER"
)

// Genders
const (
	GenderMale   = "male"
	GenderFemale = "female"
)

var (
	AdminRoles = []string{RoleSuperAdmin, RoleAdmin}
	AllRoles   = []string{RoleSuperAdmin, RoleAdmin, RoleTeacher}

	rolePriorities = map[string]int{
		// Admins: 30 - 21
		RoleSuperAdmin: 30,
		RoleAdmin:      21,

		// Teachers: 20 - 11
		RoleTeacher: 11,
	}

	Roles = []Role{
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Super Admin", Value: RoleSuperAdmin},
	}
)

// NormalizeRole maps legacy spellings ("Teacher", "super-admin") to a role constant.
func NormalizeRole(role string) string {
	role = strings.ToUpper(core.CleanString(role))
	return strings.NewReplacer("-", "_", " ", "_").Replace(role)
}

func RolePriority(role string) int {
	return rolePriorities[NormalizeRole(role)]
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           int       `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	Role         string    `json:"role" db:"role"`
	Phone        string    `json:"phone" db:"phone"`
	Gender       string    `json:"gender" db:"gender"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	PasswordHash []byte    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"` // UTC
	LastLogin    null.Time `json:"last_login" db:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsSuperAdmin() bool { return u.Role == RoleSuperAdmin }
func (u *User) IsAdmin() bool      { return u.Role == RoleSuperAdmin || u.Role == RoleAdmin }
func (u *User) IsTeacher() bool    { return u.Role == RoleTeacher }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name     string `json:"name" validate:"required,notblank"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required"`
	Gender   string `json:"gender" validate:"required,gender"`
	Role     string `json:"role" validate:"required,role"`
	Password string `json:"password" validate:"required"`
}

func (nu *NewUser) Clean() {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Phone = core.CleanString(nu.Phone)
	nu.Gender = core.CleanString(nu.Gender, true /* lower */)
	nu.Role = NormalizeRole(nu.Role)
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nu.Clean()
	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name     string `json:"name"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone"`
	Gender   string `json:"gender" validate:"omitempty,gender"`
	Role     string `json:"role" validate:"omitempty,role"`
	IsActive *bool  `json:"is_active"`
	Password string `json:"password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc *Service) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}
	if phone := core.CleanString(uu.Phone); phone != "" {
		uu.Phone = phone
	} else {
		uu.Phone = origUsr.Phone
	}
	if gender := core.CleanString(uu.Gender, true /* lower */); gender != "" {
		uu.Gender = gender
	} else {
		uu.Gender = origUsr.Gender
	}
	if role := NormalizeRole(uu.Role); role != "" {
		uu.Role = role
	} else {
		uu.Role = origUsr.Role
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Email, origUsr.ID)
}

// ResetUserPassword confirms a password reset with the emailed code.
type ResetUserPassword struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Code     string `json:"code" validate:"required,numeric,len=5"`
	Password string `json:"password" validate:"required"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error {
	rp.Email = core.CleanString(rp.Email, true /* lower */)
	rp.Code = core.CleanString(rp.Code)
	return validate.Struct(rp)
}

type QueryFilter struct {
	Search   string   `query:"search"`
	Roles    []string `query:"role"`
	IsActive *bool    `query:"is_active"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf == nil || (qf.Search == "" && qf.Roles == nil && qf.IsActive == nil)
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	roles := make([]string, 0, len(qf.Roles))
	for _, r := range qf.Roles {
		if r = NormalizeRole(r); r != "" {
			roles = append(roles, r)
		}
	}
	if len(roles) > 0 {
		qf.Roles = roles
	} else {
		qf.Roles = nil
	}
}

// GetFilter selects a single User by ID or Email (first non-zero wins).
type GetFilter struct {
	ID    int
	Email string
}

// OTP is a one-time password reset code. A user has at most one.
type OTP struct {
	ID        int       `db:"id"`
	UserID    int       `db:"user_id"`
	Code      string    `db:"code"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

func (o OTP) IsExpired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}
