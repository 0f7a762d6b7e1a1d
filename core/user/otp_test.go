package user

import (
	"bytes"
	"crypto/rand"
	"testing"
	"time"

	"github.com/greesoft/canteen/core"
)

func TestGenerateOTP(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GenerateOTP()
		if err != nil {
			t.Fatalf("GenerateOTP() error = %v", err)
		}
		if len(code) != 5 || code[0] == '0' {
			t.Fatalf("GenerateOTP() = %q; want 5 digits", code)
		}
	}

	randReader = bytes.NewReader(nil) // exhausted
	defer func() { randReader = rand.Reader }()
	if _, err := GenerateOTP(); err == nil {
		t.Error("GenerateOTP() error = nil on a failing reader")
	}
}

func TestVerifyOTP(t *testing.T) {
	now := time.Now().UTC()
	origNow := core.NowFunc
	core.NowFunc = func() time.Time { return now }
	defer func() { core.NowFunc = origNow }()

	otp := OTP{UserID: 1, Code: "12345", ExpiresAt: now.Add(time.Minute)}
	expired := OTP{UserID: 1, Code: "12345", ExpiresAt: now}

	tests := []struct {
		name    string
		otp     OTP
		code    string
		wantErr error
	}{
		{name: "no code", otp: otp, wantErr: ErrOTPNotFound},
		{name: "wrong code", otp: otp, code: "54321", wantErr: ErrOTPNotFound},
		{name: "prefix", otp: otp, code: "1234", wantErr: ErrOTPNotFound},
		{name: "expired", otp: expired, code: "12345", wantErr: ErrOTPExpired},
		{name: "valid", otp: otp, code: "12345"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := VerifyOTP(tt.otp, tt.code); err != tt.wantErr {
				t.Errorf("VerifyOTP() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckPasswordPolicy(t *testing.T) {
	tests := []struct {
		name  string
		pwd   string
		uName string
		email string
		want  string
	}{
		{name: "too short", pwd: "abc123", want: pwdMinLenTag},
		{name: "whitespace", pwd: "abc 12345", want: pwdNoSpaceTag},
		{name: "all numeric", pwd: "1234567890", want: pwdNotAllNumTag},
		{name: "similar to name", pwd: "johndoe1", uName: "John Doe", want: pwdAttrSimTag},
		{name: "similar to email", pwd: "janedoe99", email: "janedoe@test.cd", want: pwdAttrSimTag},
		{name: "ok", pwd: "k7#Qz!pw2", uName: "John Doe", email: "john@test.cd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checkPasswordPolicy(tt.pwd, tt.uName, tt.email); got != tt.want {
				t.Errorf("checkPasswordPolicy() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		role string
		want string
	}{
		{role: "Teacher", want: RoleTeacher},
		{role: " admin ", want: RoleAdmin},
		{role: "super-admin", want: RoleSuperAdmin},
		{role: "Super Admin", want: RoleSuperAdmin},
		{role: "", want: ""},
	}
	for _, tt := range tests {
		if got := NormalizeRole(tt.role); got != tt.want {
			t.Errorf("NormalizeRole(%q) = %q, want %q", tt.role, got, tt.want)
		}
	}
	if RolePriority("admin") <= RolePriority(RoleTeacher) {
		t.Error("admins must outrank teachers")
	}
}
