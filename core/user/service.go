package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/greesoft/canteen/core"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("user not found")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrOTPNotFound        = core.NewValidationError(errors.New("invalid code"))
	ErrOTPExpired         = core.NewValidationError(errors.New("code has expired"))
	ErrOTPCodeTaken       = errors.New("code already pending for another user")
	ErrInvalidCredentials = core.NewValidationError(errors.New("invalid credentials"))
	ErrAccountDeactivated = core.NewForbiddenError("account deactivated")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedIDs ...int) error
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Email or User.Phone.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...int) error

		SaveOTP(ctx context.Context, otp OTP) (OTP, error) // replaces the user's previous code
		GetOTPByUserID(ctx context.Context, userID int) (OTP, error)
		GetOTPByCode(ctx context.Context, code string) (OTP, error)
		DeleteOTP(ctx context.Context, userID int) error
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
	}
}

// CheckUniqueness returns a ValidationError on the email field when another user owns it.
func (svc *Service) CheckUniqueness(ctx context.Context, email string, excludedIDs ...int) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, excludedIDs...); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
		}
		return errors.Wrap(err, "checking email uniqueness")
	}
	return nil
}

// Create expects a validated NewUser.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := core.NowFunc().UTC()
	usr := User{
		Name:      nu.Name,
		Email:     nu.Email,
		Role:      NormalizeRole(nu.Role),
		Phone:     nu.Phone,
		Gender:    nu.Gender,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	return usr, errors.Wrap(err, "creating user")
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryUsers(ctx, filter, core.CleanOrderings(ordering, "name", "email", "role", "created_at", "last_login"))
}

func (svc *Service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

// GetTeacher returns ErrNotFound unless the user is a teacher.
func (svc *Service) GetTeacher(ctx context.Context, id int) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !usr.IsTeacher() {
		return User{}, ErrNotFound
	}
	return usr, nil
}

// GetAdmin returns ErrNotFound unless the user is an admin.
func (svc *Service) GetAdmin(ctx context.Context, id int) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !usr.IsAdmin() {
		return User{}, ErrNotFound
	}
	return usr, nil
}

// Update expects a validated UpdateUser.
func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	usr.Email = uu.Email
	usr.Phone = uu.Phone
	usr.Gender = uu.Gender
	usr.Role = uu.Role
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = core.NowFunc().UTC()
	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = null.TimeFrom(core.NowFunc().UTC())
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) Delete(ctx context.Context, ids ...int) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}

// Authenticate checks the credentials of an active user.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}
	usr, err = svc.SetLastLogin(ctx, usr)
	return usr, errors.Wrap(err, "setting lastLogin")
}

// RequestPasswordReset emails a fresh one-time code to the user owning email.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrAccountDeactivated
	}

	otp, err := svc.saveUniqueOTP(ctx, usr.ID)
	if err != nil {
		return err
	}
	svc.sendPasswordResetMail(usr, otp)
	return nil
}

// saveUniqueOTP stores a code no other user holds, so a code alone identifies its owner.
func (svc *Service) saveUniqueOTP(ctx context.Context, userID int) (OTP, error) {
	for attempt := 0; attempt < otpMaxAttempts; attempt++ {
		code, err := generateOTPFunc()
		if err != nil {
			return OTP{}, errors.Wrap(err, "generating code")
		}
		pending, err := svc.repo.GetOTPByCode(ctx, code)
		switch {
		case err == nil && pending.UserID != userID:
			continue
		case err != nil && errors.Cause(err) != ErrOTPNotFound:
			return OTP{}, errors.Wrap(err, "checking code")
		}

		now := core.NowFunc().UTC()
		otp, err := svc.repo.SaveOTP(ctx, OTP{
			UserID:    userID,
			Code:      code,
			ExpiresAt: now.Add(svc.otpExpiry()),
			CreatedAt: now,
		})
		if errors.Cause(err) == ErrOTPCodeTaken {
			continue // lost a race for the same code
		}
		if err != nil {
			return OTP{}, errors.Wrap(err, "saving code")
		}
		return otp, nil
	}
	return OTP{}, errors.Errorf("no free code after %d attempts", otpMaxAttempts)
}

func (svc *Service) otpExpiry() time.Duration {
	if svc.conf == nil || svc.conf.Canteen.OTPExpiry <= 0 {
		return 10 * time.Minute
	}
	return svc.conf.Canteen.OTPExpiry
}

func (svc *Service) sendPasswordResetMail(usr User, otp OTP) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password reset code",
		TemplateName: "password_reset_otp",
		TemplateData: map[string]interface{}{
			"Name":      usr.Name,
			"Code":      otp.Code,
			"ExpiresIn": svc.otpExpiry().String(),
		},
	})
}

// ResetPassword sets a new password when the code matches and has not expired. The code is then consumed.
func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	var otp OTP
	var err error
	if data.Email != "" {
		usr, uErr := svc.GetByEmail(ctx, data.Email)
		if uErr != nil {
			if errors.Cause(uErr) == ErrNotFound {
				return ErrOTPNotFound
			}
			return errors.Wrap(uErr, "finding user by email")
		}
		otp, err = svc.repo.GetOTPByUserID(ctx, usr.ID)
	} else {
		otp, err = svc.repo.GetOTPByCode(ctx, data.Code)
	}
	if err != nil {
		return err
	}
	if err = VerifyOTP(otp, data.Code); err != nil {
		return err
	}

	usr, err := svc.GetByID(ctx, otp.UserID)
	if err != nil {
		return errors.Wrap(err, "finding user by ID")
	}
	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = core.NowFunc().UTC()
	if _, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "updating user")
	}
	return errors.Wrap(svc.repo.DeleteOTP(ctx, usr.ID), "deleting code")
}
