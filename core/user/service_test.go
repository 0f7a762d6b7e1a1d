package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/user"
	emailsvc "github.com/greesoft/canteen/services/email"
	inmemdb "github.com/greesoft/canteen/storage/database/inmem"
	testutil "github.com/greesoft/canteen/tests"
)

func setup(t *testing.T) (*user.Service, user.Repository) {
	conf := core.NewTestConfig()
	repo := inmemdb.NewUserRepository(inmemdb.NewDB())
	return user.NewService(repo, emailsvc.NewConsoleServiceMock(conf), conf), repo
}

func TestNewUser_Validate(t *testing.T) {
	ctx := context.Background()
	svc, repo := setup(t)
	validate, _ := testutil.NewValidator()
	testutil.CreateUser(t, repo, "Awe", "awe@test.cd", "pwd", user.RoleTeacher, true)

	valid := user.NewUser{Name: " Bob ", Email: " Bob@Test.cd", Phone: "0810000001", Gender: "Male", Role: "teacher", Password: "k7#Qz!pw2"}
	tests := []struct {
		name    string
		nu      user.NewUser
		wantErr bool
	}{
		{name: "valid", nu: valid},
		{name: "email taken", nu: user.NewUser{Name: "Awe", Email: "AWE@test.cd", Phone: "1", Gender: "male", Role: "TEACHER", Password: "k7#Qz!pw2"}, wantErr: true},
		{name: "invalid role", nu: user.NewUser{Name: "Cid", Email: "cid@test.cd", Phone: "1", Gender: "male", Role: "cook", Password: "k7#Qz!pw2"}, wantErr: true},
		{name: "invalid gender", nu: user.NewUser{Name: "Cid", Email: "cid@test.cd", Phone: "1", Gender: "x", Role: "admin", Password: "k7#Qz!pw2"}, wantErr: true},
		{name: "weak password", nu: user.NewUser{Name: "Cid", Email: "cid@test.cd", Phone: "1", Gender: "male", Role: "admin", Password: "12345678"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nu.Validate(ctx, validate, svc)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}

	nu := valid
	require.NoError(t, nu.Validate(ctx, validate, svc))
	assert.Equal(t, "Bob", nu.Name)
	assert.Equal(t, "bob@test.cd", nu.Email)
	assert.Equal(t, user.RoleTeacher, nu.Role)
	assert.Equal(t, user.GenderMale, nu.Gender)

	usr, err := svc.Create(ctx, nu)
	require.NoError(t, err)
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword("k7#Qz!pw2"))

	_, err = svc.GetTeacher(ctx, usr.ID)
	assert.NoError(t, err)
	_, err = svc.GetAdmin(ctx, usr.ID)
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()
	svc, repo := setup(t)
	testutil.CreateUser(t, repo, "Awe", "awe@test.cd", "k7#Qz!pw2", user.RoleTeacher, true)
	testutil.CreateUser(t, repo, "Off", "off@test.cd", "k7#Qz!pw2", user.RoleTeacher, false)

	tests := []struct {
		name    string
		email   string
		pwd     string
		wantErr error
	}{
		{name: "unknown email", email: "nobody@test.cd", pwd: "k7#Qz!pw2", wantErr: user.ErrInvalidCredentials},
		{name: "wrong password", email: "awe@test.cd", pwd: "nope", wantErr: user.ErrInvalidCredentials},
		{name: "deactivated", email: "off@test.cd", pwd: "k7#Qz!pw2", wantErr: user.ErrAccountDeactivated},
		{name: "ok", email: " AWE@test.cd ", pwd: "k7#Qz!pw2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := svc.Authenticate(ctx, tt.email, tt.pwd)
			assert.Equal(t, tt.wantErr, errors.Cause(err))
			if tt.wantErr == nil {
				assert.True(t, usr.LastLogin.Valid)
			}
		})
	}
}

func TestService_PasswordReset(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
	testutil.FreezeTime(t, now)
	svc, repo := setup(t)
	usr := testutil.CreateUser(t, repo, "Awe", "awe@test.cd", "k7#Qz!pw2", user.RoleTeacher, true)
	testutil.CreateUser(t, repo, "Off", "off@test.cd", "k7#Qz!pw2", user.RoleTeacher, false)

	assert.Equal(t, user.ErrNotFound, errors.Cause(svc.RequestPasswordReset(ctx, "nobody@test.cd")))
	assert.Equal(t, user.ErrAccountDeactivated, errors.Cause(svc.RequestPasswordReset(ctx, "off@test.cd")))

	require.NoError(t, svc.RequestPasswordReset(ctx, "awe@test.cd"))
	first, err := repo.GetOTPByUserID(ctx, usr.ID)
	require.NoError(t, err)
	require.NoError(t, svc.RequestPasswordReset(ctx, "awe@test.cd"))
	otp, err := repo.GetOTPByUserID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Len(t, otp.Code, 5)
	assert.True(t, otp.ExpiresAt.After(now))
	if first.Code != otp.Code {
		_, err = repo.GetOTPByCode(ctx, first.Code)
		assert.Error(t, err, "a new code replaces the previous one")
	}

	wrong := "00000"
	if otp.Code == wrong {
		wrong = "99999"
	}
	err = svc.ResetPassword(ctx, user.ResetUserPassword{Email: "awe@test.cd", Code: wrong, Password: "n3w!Secret"})
	assert.Equal(t, user.ErrOTPNotFound, errors.Cause(err))

	err = svc.ResetPassword(ctx, user.ResetUserPassword{Email: "nobody@test.cd", Code: otp.Code, Password: "n3w!Secret"})
	assert.Equal(t, user.ErrOTPNotFound, errors.Cause(err))

	t.Run("expired", func(t *testing.T) {
		testutil.FreezeTime(t, otp.ExpiresAt)
		err := svc.ResetPassword(ctx, user.ResetUserPassword{Code: otp.Code, Password: "n3w!Secret"})
		assert.Equal(t, user.ErrOTPExpired, errors.Cause(err))
	})

	require.NoError(t, svc.ResetPassword(ctx, user.ResetUserPassword{Email: "awe@test.cd", Code: otp.Code, Password: "n3w!Secret"}))
	usr, err = svc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword("n3w!Secret"))

	// consumed
	err = svc.ResetPassword(ctx, user.ResetUserPassword{Code: otp.Code, Password: "an0ther!Pwd"})
	assert.Error(t, err)
}

func TestService_PasswordResetCodesAreUnique(t *testing.T) {
	ctx := context.Background()
	svc, repo := setup(t)
	alice := testutil.CreateUser(t, repo, "Alice", "alice@test.cd", "k7#Qz!pw2", user.RoleTeacher, true)
	bob := testutil.CreateUser(t, repo, "Bob", "bob@test.cd", "k7#Qz!pw2", user.RoleAdmin, true)
	cid := testutil.CreateUser(t, repo, "Cid", "cid@test.cd", "k7#Qz!pw2", user.RoleTeacher, true)

	codes := []string{"12345", "12345", "23456"}
	restore := user.SetOTPGenerator(func() (string, error) {
		code := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		return code, nil
	})
	defer restore()

	require.NoError(t, svc.RequestPasswordReset(ctx, "bob@test.cd"))
	require.NoError(t, svc.RequestPasswordReset(ctx, "alice@test.cd"))
	bobOTP, err := repo.GetOTPByUserID(ctx, bob.ID)
	require.NoError(t, err)
	aliceOTP, err := repo.GetOTPByUserID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "12345", bobOTP.Code)
	assert.Equal(t, "23456", aliceOTP.Code, "a code pending for bob is never handed to alice")

	_, err = repo.SaveOTP(ctx, user.OTP{UserID: alice.ID, Code: "12345", ExpiresAt: aliceOTP.ExpiresAt})
	assert.Equal(t, user.ErrOTPCodeTaken, errors.Cause(err))

	require.NoError(t, svc.ResetPassword(ctx, user.ResetUserPassword{Code: aliceOTP.Code, Password: "AliceNew#9x"}))
	alice, err = svc.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.NoError(t, alice.CheckPassword("AliceNew#9x"))
	bob, err = svc.GetByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.NoError(t, bob.CheckPassword("k7#Qz!pw2"), "bob keeps his password")

	t.Run("no free code", func(t *testing.T) {
		codes = []string{"12345"}
		assert.Error(t, svc.RequestPasswordReset(ctx, "cid@test.cd"))
		_, err := repo.GetOTPByUserID(ctx, cid.ID)
		assert.Equal(t, user.ErrOTPNotFound, errors.Cause(err))
	})
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	svc, repo := setup(t)
	validate, _ := testutil.NewValidator()
	awe := testutil.CreateUser(t, repo, "Awe", "awe@test.cd", "k7#Qz!pw2", user.RoleTeacher, true)
	testutil.CreateUser(t, repo, "Bob", "bob@test.cd", "k7#Qz!pw2", user.RoleTeacher, true)

	uu := user.UpdateUser{Email: "BOB@test.cd"}
	var verr *core.ValidationError
	require.True(t, errors.As(uu.Validate(ctx, awe, validate, svc), &verr))
	assert.Equal(t, "email", verr.Fields[0].Field)

	uu = user.UpdateUser{Name: "Awe Awe", Role: "admin", IsActive: core.BoolPtr(false)}
	require.NoError(t, uu.Validate(ctx, awe, validate, svc))
	updated, err := svc.Update(ctx, awe, uu)
	require.NoError(t, err)
	assert.Equal(t, "Awe Awe", updated.Name)
	assert.Equal(t, "awe@test.cd", updated.Email, "unchanged")
	assert.Equal(t, user.RoleAdmin, updated.Role)
	assert.False(t, updated.IsActive)
	assert.NoError(t, updated.CheckPassword("k7#Qz!pw2"), "password unchanged")

	users, err := svc.Query(ctx, &user.QueryFilter{Roles: []string{"teacher"}}, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Bob", users[0].Name)

	require.NoError(t, svc.Delete(ctx, awe.ID))
	_, err = svc.GetByID(ctx, awe.ID)
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}
