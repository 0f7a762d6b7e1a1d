package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/term"
	"github.com/greesoft/canteen/core/user"
)

// userMiddleware loads the token's user into the context. Deleted or deactivated users are rejected.
// Anonymous requests (no claims) go through untouched.
func userMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return next(ctx)
			}
			id, err := claims.UserID()
			if err != nil {
				return errUnauthorized
			}
			usr, err := svc.GetByID(ctx.Request().Context(), id)
			if err != nil {
				if errors.Cause(err) == user.ErrNotFound {
					return errUnauthorized
				}
				return errors.Wrap(err, "finding context user")
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}
			ctx.Set(contextUserKey, usr)
			return next(ctx)
		}
	}
}

// adminMiddleware lets admins through, optionally restricted to roles.
func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if usr.IsAdmin() && hasRole(usr, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func hasRole(usr user.User, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		if usr.Role == role {
			return true
		}
	}
	return false
}

// requireActiveTerm rejects writes when no active term covers today.
func requireActiveTerm(svc *term.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if _, err := svc.CurrentOn(ctx.Request().Context(), core.Today()); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}
