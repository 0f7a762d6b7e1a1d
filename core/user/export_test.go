package user

// SetOTPGenerator replaces the code generator until the returned func is called.
func SetOTPGenerator(gen func() (string, error)) (restore func()) {
	orig := generateOTPFunc
	generateOTPFunc = gen
	return func() { generateOTPFunc = orig }
}
