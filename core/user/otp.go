package user

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"strconv"

	"github.com/greesoft/canteen/core"
)

const (
	otpMin         = 10000
	otpRange       = 90000 // codes are 5 digits: 10000 - 99999
	otpMaxAttempts = 20
)

var (
	randReader      = rand.Reader // mockable
	generateOTPFunc = GenerateOTP // mockable
)

// GenerateOTP returns a random 5-digit numeric code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(randReader, big.NewInt(otpRange))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+otpMin, 10), nil
}

// VerifyOTP checks that code matches otp and that otp has not expired.
func VerifyOTP(otp OTP, code string) error {
	if code == "" || subtle.ConstantTimeCompare([]byte(otp.Code), []byte(code)) == 0 {
		return ErrOTPNotFound
	}
	if otp.IsExpired(core.NowFunc()) {
		return ErrOTPExpired
	}
	return nil
}
