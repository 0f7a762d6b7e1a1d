package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/class"
	"github.com/greesoft/canteen/core/user"
)

var (
	errUsrNotFoundInCtx  = errors.New("user object not found in echo.Context")
	errNoPermsToSetRoles = "not enough rights to set this role"
)

const contextObjectKey = "object"

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token         string       `json:"token"`
		ExpiresIn     int64        `json:"expires_in"` // seconds
		User          *user.User   `json:"user,omitempty"`
		AssignedClass *class.Class `json:"assigned_class"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	DestroyMultipleRequest struct {
		IDs []int `query:"id"`
	}

	// userDetail is a user along with the class they supervise.
	userDetail struct {
		user.User
		AssignedClass *class.Class `json:"assigned_class"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}

// checkRolePriority forbids setting a role above the caller's. Anonymous callers may only sign up teachers.
func checkRolePriority(ctx echo.Context, role string) error {
	allowed := user.RolePriority(user.RoleTeacher)
	if ctxUsr, err := getContextUser(ctx); err == nil {
		allowed = user.RolePriority(ctxUsr.Role)
	}
	if user.RolePriority(role) > allowed {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: errNoPermsToSetRoles})
	}
	return nil
}

// assignedClass returns the class supervised by usr, or nil.
func (s *Server) assignedClass(ctx echo.Context, usr user.User) (*class.Class, error) {
	cls, err := s.deps.ClassSvc.GetBySupervisor(ctx.Request().Context(), usr.ID)
	if err != nil {
		if errors.Cause(err) == class.ErrNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, "finding assigned class")
	}
	return &cls, nil
}

func (s *Server) userDetail(ctx echo.Context, usr user.User) (userDetail, error) {
	cls, err := s.assignedClass(ctx, usr)
	return userDetail{User: usr, AssignedClass: cls}, err
}

func (s *Server) registerAuthAPI(g *echo.Group) {
	// TODO: rate limit `/otp` & `/reset-password`
	g.POST("/signup", s.signup, s.auth.optionalMiddleware(), userMiddleware(s.deps.UserSvc))
	g.POST("/login", s.login)
	g.POST("/otp", s.requestPasswordReset)
	g.POST("/reset-password", s.resetPassword)
	g.POST("/token-refresh", s.refreshToken, s.auth.middleware(), userMiddleware(s.deps.UserSvc))
}

func (s *Server) registerUserAPI(g *echo.Group) {
	g.GET("", s.queryUsers, adminMiddleware())
	g.DELETE("", s.destroyUsers, adminMiddleware())
	g.GET("/roles", s.queryRoles)

	// detail endpoints
	dg := g.Group("/:id", s.ctxUserOrAdminMiddleware())
	dg.GET("", s.retrieveUser)
	dg.PUT("", s.updateUser)
	dg.DELETE("", s.destroyUser, adminMiddleware())
}

// Handlers

func (s *Server) signup(ctx echo.Context) error {
	var data user.NewUser
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(ctx.Request().Context(), s.deps.Validate, s.deps.UserSvc); err != nil {
		return err
	}
	if err := checkRolePriority(ctx, data.Role); err != nil {
		return err
	}

	usr, err := s.deps.UserSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (s *Server) login(ctx echo.Context) error {
	var data LoginRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}

	usr, err := s.deps.UserSvc.Authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := s.auth.generateToken(s.auth.userClaims(usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	cls, err := s.assignedClass(ctx, usr)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, LoginResponse{
		Token:         token,
		ExpiresIn:     int64(s.auth.expirationDelta.Seconds()),
		User:          &usr,
		AssignedClass: cls,
	})
}

func (s *Server) requestPasswordReset(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}

	err := s.deps.UserSvc.RequestPasswordReset(ctx.Request().Context(), data.Email)
	if cause := errors.Cause(err); !(err == nil || cause == user.ErrNotFound || cause == user.ErrAccountDeactivated) {
		// do not return errors to attackers
		s.deps.Logger.Error("requesting password reset", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with a code to reset your password.",
	})
}

func (s *Server) resetPassword(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}

	if err := s.deps.UserSvc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (s *Server) refreshToken(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	token, err := s.auth.refresh(claims, usr)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresIn: int64(s.auth.expirationDelta.Seconds())})
}

func (s *Server) queryUsers(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := s.deps.UserSvc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (s *Server) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (s *Server) retrieveUser(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	detail, err := s.userDetail(ctx, usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (s *Server) updateUser(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	var data user.UpdateUser
	if err := bindBody(ctx, &data); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !ctxUsr.IsAdmin() {
		// `IsActive`, `Role` and `Email` can only be changed by admin
		if data.IsActive != nil || data.Role != "" || data.Email != "" {
			return errHttpForbidden
		}
	}

	if err := data.Validate(ctx.Request().Context(), usr, s.deps.Validate, s.deps.UserSvc); err != nil {
		return err
	}
	if data.Role != usr.Role {
		if err := checkRolePriority(ctx, data.Role); err != nil {
			return err
		}
	}

	usr, err = s.deps.UserSvc.Update(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	detail, err := s.userDetail(ctx, usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (s *Server) destroyUser(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	// ctxUser cannot delete themselves
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if usr.ID == ctxUsr.ID {
		return errHttpForbidden
	}
	if user.RolePriority(usr.Role) > user.RolePriority(ctxUsr.Role) {
		return errHttpForbidden
	}

	if err := s.deps.UserSvc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *Server) destroyUsers(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "id", Error: "ids must be integers"})
	}
	if len(query.IDs) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}

	// ctxUser cannot delete themselves
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	for _, id := range query.IDs {
		if id == ctxUsr.ID {
			return errHttpForbidden
		}
	}
	// nor anyone above their own role
	for _, id := range query.IDs {
		usr, err := s.deps.UserSvc.GetByID(ctx.Request().Context(), id)
		if errors.Cause(err) == user.ErrNotFound {
			continue
		}
		if err != nil {
			return errors.Wrap(err, "getting user")
		}
		if user.RolePriority(usr.Role) > user.RolePriority(ctxUsr.Role) {
			return errHttpForbidden
		}
	}

	if err := s.deps.UserSvc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ctxUserOrAdminMiddleware loads the `:id` user into the context when it is the caller or the caller is an admin.
func (s *Server) ctxUserOrAdminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			id, err := pathID(ctx, "id")
			if err != nil {
				return err
			}

			if id == ctxUsr.ID || ctxUsr.IsAdmin() {
				if usr, err := s.deps.UserSvc.GetByID(ctx.Request().Context(), id); err == nil {
					ctx.Set(contextObjectKey, usr)
					return next(ctx)
				} else if errors.Cause(err) != user.ErrNotFound {
					return errors.Wrap(err, "finding user by ID")
				}
			}
			return errHttpNotFound
		}
	}
}
