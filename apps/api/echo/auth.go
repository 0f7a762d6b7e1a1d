package echoapi

import (
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/user"
)

const (
	contextTokenKey = "userToken"
	contextUserKey  = "user"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role,omitempty"`
	IsTeacher    bool   `json:"is_teacher,omitempty"` // -> TEACHER PORTAL
	IsAdmin      bool   `json:"is_admin,omitempty"`   // -> ADMIN PORTAL
}

// UserID returns the ID of the user the token was issued to.
func (c Claims) UserID() (int, error) {
	return strconv.Atoi(c.Subject)
}

type authConfig struct {
	jwt                    middleware.JWTConfig
	issuer                 string
	expirationDelta        time.Duration
	refreshExpirationDelta time.Duration
}

func newAuthConfig(conf *core.Config) *authConfig {
	return &authConfig{
		jwt: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    contextTokenKey,
			Claims:        new(Claims),
		},
		issuer:                 conf.AppName,
		expirationDelta:        conf.Server.JWTExpirationDelta,
		refreshExpirationDelta: conf.Server.JWTRefreshExpirationDelta,
	}
}

// middleware requires a valid token.
func (ac *authConfig) middleware() echo.MiddlewareFunc {
	return middleware.JWTWithConfig(ac.jwt)
}

// optionalMiddleware validates the token when one is sent and lets anonymous requests through.
func (ac *authConfig) optionalMiddleware() echo.MiddlewareFunc {
	cfg := ac.jwt
	cfg.Skipper = func(ctx echo.Context) bool {
		return ctx.Request().Header.Get(echo.HeaderAuthorization) == ""
	}
	return middleware.JWTWithConfig(cfg)
}

func (ac *authConfig) userClaims(usr user.User, origIat ...int64) *Claims {
	now := core.NowFunc()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    ac.issuer,
			Subject:   strconv.Itoa(usr.ID),
			ExpiresAt: now.Add(ac.expirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Name:         usr.Name,
		Email:        usr.Email,
		Role:         usr.Role,
		IsTeacher:    usr.IsTeacher(),
		IsAdmin:      usr.IsAdmin(),
	}
}

// generateToken generates a signed JWT token string representing the user Claims.
func (ac *authConfig) generateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(ac.jwt.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(ac.jwt.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// refresh issues a new token for usr if the refresh window opened by the first login is still open.
func (ac *authConfig) refresh(claims Claims, usr user.User) (string, error) {
	if !usr.IsActive {
		return "", errAccountDeactivated
	}
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(ac.refreshExpirationDelta)
	if core.NowFunc().After(expTime) {
		return "", errRefreshExpired
	}
	token, err := ac.generateToken(ac.userClaims(usr, claims.OrigIssuedAt))
	return token, errors.Wrap(err, "generating token")
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextUser returns the user loaded by userMiddleware.
func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errUnauthorized
}
