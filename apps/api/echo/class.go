package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/greesoft/canteen/core/class"
	"github.com/greesoft/canteen/core/user"
)

var errClassNotFoundInCtx = errors.New("class object not found in echo.Context")

func (s *Server) registerClassAPI(g *echo.Group) {
	g.GET("", s.queryClasses)
	g.POST("", s.createClass)

	dg := g.Group("/:id", s.classObjectMiddleware())
	dg.GET("", s.retrieveClass)
	dg.GET("/supervisor", s.classSupervisor)
	dg.PUT("", s.updateClass)
	dg.DELETE("", s.destroyClass)
}

func (s *Server) queryClasses(ctx echo.Context) error {
	filter := new(class.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []class.Class{})
	}
	classes, err := s.deps.ClassSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []class.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (s *Server) createClass(ctx echo.Context) error {
	var data class.NewClass
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(ctx.Request().Context(), s.deps.Validate, s.deps.ClassSvc); err != nil {
		return err
	}
	cls, err := s.deps.ClassSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

func (s *Server) retrieveClass(ctx echo.Context) error {
	cls, ok := ctx.Get(contextObjectKey).(class.Class)
	if !ok {
		return errors.Wrap(errClassNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, cls)
}

// classSupervisor answers the teacher supervising the class, or null.
func (s *Server) classSupervisor(ctx echo.Context) error {
	cls, ok := ctx.Get(contextObjectKey).(class.Class)
	if !ok {
		return errors.Wrap(errClassNotFoundInCtx, "retrieving object from context")
	}
	if !cls.SupervisorID.Valid {
		return ctx.JSON(http.StatusOK, nil)
	}
	usr, err := s.deps.UserSvc.GetTeacher(ctx.Request().Context(), cls.SupervisorID.Int)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return ctx.JSON(http.StatusOK, nil)
		}
		return errors.Wrap(err, "finding supervisor")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (s *Server) updateClass(ctx echo.Context) error {
	cls, ok := ctx.Get(contextObjectKey).(class.Class)
	if !ok {
		return errors.Wrap(errClassNotFoundInCtx, "retrieving object from context")
	}
	var data class.UpdateClass
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(ctx.Request().Context(), cls, s.deps.Validate, s.deps.ClassSvc); err != nil {
		return err
	}
	cls, err := s.deps.ClassSvc.Update(ctx.Request().Context(), cls, data)
	if err != nil {
		return errors.Wrap(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (s *Server) destroyClass(ctx echo.Context) error {
	cls, ok := ctx.Get(contextObjectKey).(class.Class)
	if !ok {
		return errors.Wrap(errClassNotFoundInCtx, "retrieving object from context")
	}
	if err := s.deps.ClassSvc.Delete(ctx.Request().Context(), cls.ID); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// classObjectMiddleware loads the `:id` class into the context.
func (s *Server) classObjectMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := pathID(ctx, "id")
			if err != nil {
				return err
			}
			cls, err := s.deps.ClassSvc.GetByID(ctx.Request().Context(), id)
			if err != nil {
				return err
			}
			ctx.Set(contextObjectKey, cls)
			return next(ctx)
		}
	}
}
