package echoapi

import (
	"bytes"
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/class"
	"github.com/greesoft/canteen/core/user"
	reportsvc "github.com/greesoft/canteen/services/report"
)

type (
	NewTeacher struct {
		user.NewUser
		AssignedClass *int `json:"assigned_class"`
	}

	// UpdateTeacher leaves unset fields unchanged. An AssignedClass of 0 unassigns the teacher.
	UpdateTeacher struct {
		user.UpdateUser
		AssignedClass *int `json:"assigned_class"`
	}
)

func (s *Server) registerTeacherAPI(g *echo.Group) {
	g.GET("", s.queryTeachers)
	g.GET("/summary", s.teacherSummaries)
	g.GET("/summary/export", s.exportTeacherSummaries)
	g.POST("", s.createTeacher, adminMiddleware())

	dg := g.Group("/:id", s.teacherObjectMiddleware())
	dg.GET("", s.retrieveTeacher)
	dg.GET("/detail", s.teacherDetail)
	dg.GET("/records", s.teacherRecords)
	dg.GET("/class", s.teacherClass)
	dg.PATCH("", s.updateTeacher, adminMiddleware())
	dg.DELETE("", s.destroyTeacher, adminMiddleware())
}

// setAssignedClass applies an assigned_class change for the teacher.
func (s *Server) setAssignedClass(ctx context.Context, teacherID int, classID *int) error {
	if classID == nil {
		return nil
	}
	if *classID == 0 {
		return s.deps.ClassSvc.UnassignSupervisor(ctx, teacherID)
	}
	if _, err := s.deps.ClassSvc.AssignSupervisor(ctx, *classID, teacherID); err != nil {
		if errors.Cause(err) == class.ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "assigned_class", Error: "class not found"})
		}
		return err
	}
	return nil
}

func (s *Server) queryTeachers(ctx echo.Context) error {
	filter := &user.QueryFilter{Search: ctx.QueryParam("search"), Roles: []string{user.RoleTeacher}}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	teachers, err := s.deps.UserSvc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying teachers")
	}
	classes, err := s.deps.ClassSvc.Query(ctx.Request().Context(), nil)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	bySupervisor := make(map[int]class.Class, len(classes))
	for _, cls := range classes {
		if cls.SupervisorID.Valid {
			bySupervisor[cls.SupervisorID.Int] = cls
		}
	}

	details := make([]userDetail, 0, len(teachers))
	for _, t := range teachers {
		d := userDetail{User: t}
		if cls, ok := bySupervisor[t.ID]; ok {
			cls := cls
			d.AssignedClass = &cls
		}
		details = append(details, d)
	}
	return ctx.JSON(http.StatusOK, details)
}

func (s *Server) teacherSummaries(ctx echo.Context) error {
	dr, err := bindRange(ctx)
	if err != nil {
		return err
	}
	totals, err := s.deps.RecordSvc.TeacherSummaries(ctx.Request().Context(), dr)
	if err != nil {
		return errors.Wrap(err, "summarizing teachers")
	}
	return ctx.JSON(http.StatusOK, totals)
}

func (s *Server) exportTeacherSummaries(ctx echo.Context) error {
	dr, err := bindRange(ctx)
	if err != nil {
		return err
	}
	totals, err := s.deps.RecordSvc.TeacherSummaries(ctx.Request().Context(), dr)
	if err != nil {
		return errors.Wrap(err, "summarizing teachers")
	}

	var buf bytes.Buffer
	if err := reportsvc.WriteTeacherSummaries(&buf, totals); err != nil {
		return errors.Wrap(err, "exporting teacher summaries")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+reportsvc.TeacherSummariesFilename(dr))
	return ctx.Blob(http.StatusOK, reportsvc.ContentTypeXLSX, buf.Bytes())
}

func (s *Server) createTeacher(ctx echo.Context) error {
	var data NewTeacher
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	data.Role = user.RoleTeacher
	if err := data.NewUser.Validate(ctx.Request().Context(), s.deps.Validate, s.deps.UserSvc); err != nil {
		return err
	}
	if data.AssignedClass != nil && *data.AssignedClass < 1 {
		return core.NewValidationError(nil, core.FieldError{Field: "assigned_class", Error: "class not found"})
	}
	if data.AssignedClass != nil {
		if _, err := s.deps.ClassSvc.GetByID(ctx.Request().Context(), *data.AssignedClass); err != nil {
			if errors.Cause(err) == class.ErrNotFound {
				return core.NewValidationError(err, core.FieldError{Field: "assigned_class", Error: "class not found"})
			}
			return errors.Wrap(err, "finding class")
		}
	}

	usr, err := s.deps.UserSvc.Create(ctx.Request().Context(), data.NewUser)
	if err != nil {
		return errors.Wrap(err, "creating teacher")
	}
	if err = s.setAssignedClass(ctx.Request().Context(), usr.ID, data.AssignedClass); err != nil {
		// no teacher without the class they were created for
		if delErr := s.deps.UserSvc.Delete(ctx.Request().Context(), usr.ID); delErr != nil {
			s.deps.Logger.Error("removing teacher after failed assignment", errors.Wrap(delErr, "deleting user"))
		}
		return errors.Wrap(err, "assigning class")
	}
	detail, err := s.userDetail(ctx, usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, detail)
}

func (s *Server) retrieveTeacher(ctx echo.Context) error {
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

func (s *Server) teacherDetail(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	dr, err := bindRange(ctx)
	if err != nil {
		return err
	}
	detail, err := s.deps.RecordSvc.TeacherDetail(ctx.Request().Context(), usr.ID, dr)
	if err != nil {
		return errors.Wrap(err, "getting teacher detail")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (s *Server) teacherRecords(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	records, err := s.deps.RecordSvc.ByTeacher(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "querying teacher records")
	}
	return ctx.JSON(http.StatusOK, records)
}

func (s *Server) teacherClass(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	cls, err := s.deps.ClassSvc.GetBySupervisor(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "finding supervised class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (s *Server) updateTeacher(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	var data UpdateTeacher
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	data.Role = user.RoleTeacher
	if err := data.UpdateUser.Validate(ctx.Request().Context(), usr, s.deps.Validate, s.deps.UserSvc); err != nil {
		return err
	}
	if data.AssignedClass != nil && *data.AssignedClass < 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "assigned_class", Error: "class not found"})
	}

	usr, err := s.deps.UserSvc.Update(ctx.Request().Context(), usr, data.UpdateUser)
	if err != nil {
		return errors.Wrap(err, "updating teacher")
	}
	if err = s.setAssignedClass(ctx.Request().Context(), usr.ID, data.AssignedClass); err != nil {
		return err
	}
	detail, err := s.userDetail(ctx, usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (s *Server) destroyTeacher(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	if err := s.deps.UserSvc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "deleting teacher")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// teacherObjectMiddleware loads the `:id` teacher into the context.
func (s *Server) teacherObjectMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := pathID(ctx, "id")
			if err != nil {
				return err
			}
			usr, err := s.deps.UserSvc.GetTeacher(ctx.Request().Context(), id)
			if err != nil {
				return err
			}
			ctx.Set(contextObjectKey, usr)
			return next(ctx)
		}
	}
}
