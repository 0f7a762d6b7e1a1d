package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/greesoft/canteen/core/analytics"
)

func (s *Server) registerAnalyticsAPI(g *echo.Group) {
	g.GET("/admin-dashboard", s.adminDashboard)
	g.GET("/teachers/:classId", s.teacherDashboard)
	g.GET("/terms", s.termsAnalytics)
}

func (s *Server) adminDashboard(ctx echo.Context) error {
	termID, err := queryInt(ctx, "term_id")
	if err != nil {
		return err
	}
	dash, err := s.deps.AnalyticsSvc.AdminDashboard(ctx.Request().Context(), termID)
	if err != nil {
		return errors.Wrap(err, "computing admin dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (s *Server) teacherDashboard(ctx echo.Context) error {
	classID, err := pathID(ctx, "classId")
	if err != nil {
		return err
	}
	if _, err = s.deps.ClassSvc.GetByID(ctx.Request().Context(), classID); err != nil {
		return err
	}
	termID, err := queryInt(ctx, "term_id")
	if err != nil {
		return err
	}
	dash, err := s.deps.AnalyticsSvc.TeacherDashboard(ctx.Request().Context(), classID, termID)
	if err != nil {
		return errors.Wrap(err, "computing teacher dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (s *Server) termsAnalytics(ctx echo.Context) error {
	summaries, err := s.deps.AnalyticsSvc.AllTerms(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "summarizing terms")
	}
	if summaries == nil {
		summaries = []analytics.TermSummary{}
	}
	return ctx.JSON(http.StatusOK, summaries)
}
