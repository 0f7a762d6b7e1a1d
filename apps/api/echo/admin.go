package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/user"
)

var errNotAdminRole = "role must be an admin role"

func (s *Server) registerAdminAPI(g *echo.Group) {
	g.Use(adminMiddleware())
	g.GET("", s.queryAdmins)
	g.POST("", s.createAdmin)

	dg := g.Group("/:id", s.adminObjectMiddleware())
	dg.GET("", s.retrieveAdmin)
	dg.PATCH("", s.updateAdmin)
	dg.DELETE("", s.destroyAdmin)
}

// emailConflict turns the email uniqueness error into a 409.
func emailConflict(err error) error {
	if vErr, ok := errors.Cause(err).(*core.ValidationError); ok && vErr.Err == user.ErrEmailExists {
		return core.NewConflictError(user.ErrEmailExists.Error())
	}
	return err
}

func isAdminRole(role string) bool {
	for _, r := range user.AdminRoles {
		if r == role {
			return true
		}
	}
	return false
}

func (s *Server) queryAdmins(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Roles = user.AdminRoles
	ordering := new(Ordering)
	ordering.Bind(ctx)

	admins, err := s.deps.UserSvc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying admins")
	}
	if admins == nil {
		admins = []user.User{}
	}
	return ctx.JSON(http.StatusOK, admins)
}

func (s *Server) createAdmin(ctx echo.Context) error {
	var data user.NewUser
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if data.Role == "" {
		data.Role = user.RoleAdmin
	}
	if err := data.Validate(ctx.Request().Context(), s.deps.Validate, s.deps.UserSvc); err != nil {
		return emailConflict(err)
	}
	if !isAdminRole(data.Role) {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: errNotAdminRole})
	}
	if err := checkRolePriority(ctx, data.Role); err != nil {
		return err
	}

	usr, err := s.deps.UserSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating admin")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (s *Server) retrieveAdmin(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (s *Server) updateAdmin(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	var data user.UpdateUser
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(ctx.Request().Context(), usr, s.deps.Validate, s.deps.UserSvc); err != nil {
		return emailConflict(err)
	}
	if !isAdminRole(data.Role) {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: errNotAdminRole})
	}
	if data.Role != usr.Role {
		if err := checkRolePriority(ctx, data.Role); err != nil {
			return err
		}
	}

	usr, err := s.deps.UserSvc.Update(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "updating admin")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (s *Server) destroyAdmin(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if usr.ID == ctxUsr.ID || user.RolePriority(usr.Role) > user.RolePriority(ctxUsr.Role) {
		return errHttpForbidden
	}

	if err := s.deps.UserSvc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "deleting admin")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// adminObjectMiddleware loads the `:id` admin into the context.
func (s *Server) adminObjectMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := pathID(ctx, "id")
			if err != nil {
				return err
			}
			usr, err := s.deps.UserSvc.GetAdmin(ctx.Request().Context(), id)
			if err != nil {
				return err
			}
			ctx.Set(contextObjectKey, usr)
			return next(ctx)
		}
	}
}
