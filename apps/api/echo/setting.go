package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/greesoft/canteen/core/setting"
)

func (s *Server) registerSettingAPI(g *echo.Group) {
	g.GET("/amount", s.getAmount)
	g.POST("/amount", s.createAmount, adminMiddleware())
	g.PUT("/amount", s.updateAmount, adminMiddleware())
}

func (s *Server) getAmount(ctx echo.Context) error {
	amount, err := s.deps.SettingSvc.GetAmount(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, amount)
}

func (s *Server) createAmount(ctx echo.Context) error {
	var data setting.SetAmount
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}
	amount, err := s.deps.SettingSvc.CreateAmount(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating amount")
	}
	return ctx.JSON(http.StatusCreated, amount)
}

func (s *Server) updateAmount(ctx echo.Context) error {
	var data setting.SetAmount
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}
	amount, err := s.deps.SettingSvc.UpdateAmount(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "updating amount")
	}
	return ctx.JSON(http.StatusOK, amount)
}
