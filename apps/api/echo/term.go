package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/greesoft/canteen/core/term"
)

var errTermNotFoundInCtx = errors.New("term object not found in echo.Context")

func (s *Server) registerTermAPI(g *echo.Group) {
	g.GET("", s.queryTerms)
	g.GET("/active", s.activeTerm)
	g.POST("", s.createTerm, adminMiddleware())

	dg := g.Group("/:id", adminMiddleware(), s.termObjectMiddleware())
	dg.PATCH("/activate", s.activateTerm)
	dg.PATCH("/deactivate", s.deactivateTerm)
	dg.PUT("", s.updateTerm)
	dg.DELETE("", s.destroyTerm)
}

func (s *Server) queryTerms(ctx echo.Context) error {
	terms, err := s.deps.TermSvc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying terms")
	}
	if terms == nil {
		terms = []term.Term{}
	}
	return ctx.JSON(http.StatusOK, terms)
}

func (s *Server) activeTerm(ctx echo.Context) error {
	t, err := s.deps.TermSvc.Active(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (s *Server) createTerm(ctx echo.Context) error {
	var data term.NewTerm
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}
	t, err := s.deps.TermSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating term")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (s *Server) activateTerm(ctx echo.Context) error {
	t, ok := ctx.Get(contextObjectKey).(term.Term)
	if !ok {
		return errors.Wrap(errTermNotFoundInCtx, "retrieving object from context")
	}
	t, err := s.deps.TermSvc.Activate(ctx.Request().Context(), t.ID)
	if err != nil {
		return errors.Wrap(err, "activating term")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (s *Server) deactivateTerm(ctx echo.Context) error {
	t, ok := ctx.Get(contextObjectKey).(term.Term)
	if !ok {
		return errors.Wrap(errTermNotFoundInCtx, "retrieving object from context")
	}
	t, err := s.deps.TermSvc.Deactivate(ctx.Request().Context(), t.ID)
	if err != nil {
		return errors.Wrap(err, "deactivating term")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (s *Server) updateTerm(ctx echo.Context) error {
	t, ok := ctx.Get(contextObjectKey).(term.Term)
	if !ok {
		return errors.Wrap(errTermNotFoundInCtx, "retrieving object from context")
	}
	var data term.UpdateTerm
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(t, s.deps.Validate); err != nil {
		return err
	}
	t, err := s.deps.TermSvc.Update(ctx.Request().Context(), t, data)
	if err != nil {
		return errors.Wrap(err, "updating term")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (s *Server) destroyTerm(ctx echo.Context) error {
	t, ok := ctx.Get(contextObjectKey).(term.Term)
	if !ok {
		return errors.Wrap(errTermNotFoundInCtx, "retrieving object from context")
	}
	if err := s.deps.TermSvc.Delete(ctx.Request().Context(), t.ID); err != nil {
		return errors.Wrap(err, "deleting term")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *Server) termObjectMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := pathID(ctx, "id")
			if err != nil {
				return err
			}
			t, err := s.deps.TermSvc.GetByID(ctx.Request().Context(), id)
			if err != nil {
				return err
			}
			ctx.Set(contextObjectKey, t)
			return next(ctx)
		}
	}
}
