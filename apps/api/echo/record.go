package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/record"
)

func (s *Server) registerRecordAPI(g *echo.Group) {
	activeTerm := requireActiveTerm(s.deps.TermSvc)

	g.GET("", s.queryRecords)
	g.POST("/generate", s.generateRecords)
	g.GET("/class/:classId", s.recordsByClass)
	g.GET("/class/:classId/students", s.studentRecordsByClass)
	g.GET("/teachers", s.teacherSubmissions)
	g.GET("/teachers/:teacherId", s.teacherSubmissionsBy)
	g.POST("/submit", s.submitRecords, activeTerm)
	g.POST("/prepaid", s.submitPrepaid, activeTerm)
	g.GET("/:id", s.retrieveRecord)
	g.PATCH("/:id/status", s.updateRecordStatus)
	g.PUT("/:id", s.updateRecord)
	g.DELETE("/:id", s.destroyRecord)
}

func (s *Server) queryRecords(ctx echo.Context) error {
	var filter record.QueryFilter
	var err error
	if filter.StudentID, err = queryInt(ctx, "student_id"); err != nil {
		return err
	}
	if filter.ClassID, err = queryInt(ctx, "class_id"); err != nil {
		return err
	}
	if filter.SubmittedBy, err = queryInt(ctx, "submitted_by"); err != nil {
		return err
	}
	if filter.TermID, err = queryInt(ctx, "term_id"); err != nil {
		return err
	}
	if filter.Range, err = bindRange(ctx); err != nil {
		return err
	}
	for _, st := range ctx.QueryParams()["status"] {
		for _, v := range strings.Split(st, ",") {
			if v = core.CleanString(v, true /* lower */); v != "" {
				filter.Statuses = append(filter.Statuses, v)
			}
		}
	}

	records, err := s.deps.RecordSvc.Query(ctx.Request().Context(), &filter)
	if err != nil {
		return errors.Wrap(err, "querying records")
	}
	if records == nil {
		records = []record.Record{}
	}
	return ctx.JSON(http.StatusOK, records)
}

func (s *Server) generateRecords(ctx echo.Context) error {
	var data record.GenerateRecords
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := s.deps.Validate.Struct(data); err != nil {
		return err
	}
	res, err := s.deps.RecordSvc.GenerateDaily(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "generating records")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (s *Server) recordsByClass(ctx echo.Context) error {
	classID, err := pathID(ctx, "classId")
	if err != nil {
		return err
	}
	date, err := queryDate(ctx, "date")
	if err != nil {
		return err
	}
	cd, err := s.deps.RecordSvc.ByClass(ctx.Request().Context(), classID, date)
	if err != nil {
		return errors.Wrap(err, "getting class records")
	}
	return ctx.JSON(http.StatusOK, cd)
}

func (s *Server) studentRecordsByClass(ctx echo.Context) error {
	classID, err := pathID(ctx, "classId")
	if err != nil {
		return err
	}
	date, err := queryDate(ctx, "date")
	if err != nil {
		return err
	}
	records, err := s.deps.RecordSvc.StudentRecordsByClass(ctx.Request().Context(), classID, date)
	if err != nil {
		return errors.Wrap(err, "getting class student records")
	}
	if records == nil {
		records = []record.Record{}
	}
	return ctx.JSON(http.StatusOK, records)
}

func (s *Server) teacherSubmissions(ctx echo.Context) error {
	date, err := queryDate(ctx, "date")
	if err != nil {
		return err
	}
	subs, err := s.deps.RecordSvc.Submissions(ctx.Request().Context(), date, 0)
	if err != nil {
		return errors.Wrap(err, "getting submissions")
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (s *Server) teacherSubmissionsBy(ctx echo.Context) error {
	teacherID, err := pathID(ctx, "teacherId")
	if err != nil {
		return err
	}
	if _, err = s.deps.UserSvc.GetTeacher(ctx.Request().Context(), teacherID); err != nil {
		return err
	}
	date, err := queryDate(ctx, "date")
	if err != nil {
		return err
	}
	subs, err := s.deps.RecordSvc.Submissions(ctx.Request().Context(), date, teacherID)
	if err != nil {
		return errors.Wrap(err, "getting teacher submissions")
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (s *Server) submitRecords(ctx echo.Context) error {
	var data record.SubmitRecords
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	records, err := s.deps.RecordSvc.Submit(ctx.Request().Context(), data, usr.ID)
	if err != nil {
		return errors.Wrap(err, "submitting records")
	}
	return ctx.JSON(http.StatusOK, records)
}

func (s *Server) submitPrepaid(ctx echo.Context) error {
	var data record.SubmitPrepaid
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	res, err := s.deps.RecordSvc.Prepay(ctx.Request().Context(), data, usr.ID)
	if err != nil {
		return errors.Wrap(err, "submitting prepaid records")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (s *Server) retrieveRecord(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	rec, err := s.deps.RecordSvc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (s *Server) updateRecordStatus(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	var data record.UpdateStatus
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	rec, err := s.deps.RecordSvc.UpdateStatus(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating record status")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (s *Server) updateRecord(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	var data record.UpdateRecord
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(s.deps.Validate); err != nil {
		return err
	}
	rec, err := s.deps.RecordSvc.Update(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (s *Server) destroyRecord(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	if err = s.deps.RecordSvc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting record")
	}
	return ctx.NoContent(http.StatusNoContent)
}
