package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/greesoft/canteen/core/record"
	"github.com/greesoft/canteen/core/student"
	"github.com/greesoft/canteen/core/term"
)

var errStudentNotFoundInCtx = errors.New("student object not found in echo.Context")

func (s *Server) registerStudentAPI(g *echo.Group) {
	g.GET("", s.queryStudents)
	g.GET("/owing", s.owingStudents)
	g.GET("/class/:classId", s.studentsByClass)
	g.POST("", s.createStudent)

	dg := g.Group("/:id", s.studentObjectMiddleware())
	dg.GET("", s.retrieveStudent)
	dg.PUT("", s.updateStudent)
	dg.DELETE("", s.destroyStudent)
}

func (s *Server) queryStudents(ctx echo.Context) error {
	filter := new(student.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []student.Student{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := s.deps.StudentSvc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (s *Server) owingStudents(ctx echo.Context) error {
	classID, err := queryInt(ctx, "class_id")
	if err != nil {
		return err
	}
	summary, err := s.deps.StudentSvc.Owings(ctx.Request().Context(), classID)
	if err != nil {
		return errors.Wrap(err, "summarizing owings")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (s *Server) studentsByClass(ctx echo.Context) error {
	classID, err := pathID(ctx, "classId")
	if err != nil {
		return err
	}
	students, err := s.deps.StudentSvc.ByClass(ctx.Request().Context(), classID)
	if err != nil {
		return errors.Wrap(err, "querying class students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

// createStudent also opens today's record for the student's class when a term is running.
func (s *Server) createStudent(ctx echo.Context) error {
	var data student.NewStudent
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}
	st, err := s.deps.StudentSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}

	if st.ClassID.Valid {
		_, err = s.deps.RecordSvc.GenerateDaily(ctx.Request().Context(), record.GenerateRecords{ClassID: st.ClassID.Int})
		if err != nil && errors.Cause(err) != term.ErrNoCurrent {
			s.deps.Logger.Error("generating records of new student", errors.Wrap(err, "generating records"))
		}
	}
	return ctx.JSON(http.StatusCreated, st)
}

func (s *Server) retrieveStudent(ctx echo.Context) error {
	st, ok := ctx.Get(contextObjectKey).(student.Student)
	if !ok {
		return errors.Wrap(errStudentNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (s *Server) updateStudent(ctx echo.Context) error {
	st, ok := ctx.Get(contextObjectKey).(student.Student)
	if !ok {
		return errors.Wrap(errStudentNotFoundInCtx, "retrieving object from context")
	}
	var data student.UpdateStudent
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}
	st, err := s.deps.StudentSvc.Update(ctx.Request().Context(), st, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (s *Server) destroyStudent(ctx echo.Context) error {
	st, ok := ctx.Get(contextObjectKey).(student.Student)
	if !ok {
		return errors.Wrap(errStudentNotFoundInCtx, "retrieving object from context")
	}
	if err := s.deps.StudentSvc.Delete(ctx.Request().Context(), st.ID); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// studentObjectMiddleware loads the `:id` student into the context.
func (s *Server) studentObjectMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := pathID(ctx, "id")
			if err != nil {
				return err
			}
			st, err := s.deps.StudentSvc.GetByID(ctx.Request().Context(), id)
			if err != nil {
				return err
			}
			ctx.Set(contextObjectKey, st)
			return next(ctx)
		}
	}
}
