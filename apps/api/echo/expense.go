package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/greesoft/canteen/core/expense"
)

var (
	errExpenseNotFoundInCtx   = errors.New("expense object not found in echo.Context")
	errReferenceNotFoundInCtx = errors.New("reference object not found in echo.Context")
)

type ExpenseList struct {
	Expenses []expense.Expense `json:"expenses"`
	Summary  expense.Summary   `json:"summary"`
}

func (s *Server) registerExpenseAPI(eg, rg *echo.Group) {
	eg.GET("", s.queryExpenses)
	eg.POST("", s.createExpense, requireActiveTerm(s.deps.TermSvc))
	edg := eg.Group("/:id", s.expenseObjectMiddleware())
	edg.GET("", s.retrieveExpense)
	edg.PUT("", s.updateExpense)
	edg.DELETE("", s.destroyExpense)

	rg.GET("", s.queryReferences)
	rg.POST("", s.createReference)
	rdg := rg.Group("/:id", s.referenceObjectMiddleware())
	rdg.GET("", s.retrieveReference)
	rdg.PUT("", s.updateReference)
	rdg.DELETE("", s.destroyReference)
}

func (s *Server) queryExpenses(ctx echo.Context) error {
	var filter expense.QueryFilter
	var err error
	if filter.TermID, err = queryInt(ctx, "term_id"); err != nil {
		return err
	}
	if filter.ReferenceID, err = queryInt(ctx, "reference_id"); err != nil {
		return err
	}
	if filter.Range, err = bindRange(ctx); err != nil {
		return err
	}

	expenses, err := s.deps.ExpenseSvc.Query(ctx.Request().Context(), &filter)
	if err != nil {
		return errors.Wrap(err, "querying expenses")
	}
	if expenses == nil {
		expenses = []expense.Expense{}
	}
	return ctx.JSON(http.StatusOK, ExpenseList{Expenses: expenses, Summary: expense.Summarize(expenses)})
}

func (s *Server) createExpense(ctx echo.Context) error {
	var data expense.NewExpense
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
	exp, err := s.deps.ExpenseSvc.Create(ctx.Request().Context(), data, usr.ID)
	if err != nil {
		return errors.Wrap(err, "creating expense")
	}
	return ctx.JSON(http.StatusCreated, exp)
}

func (s *Server) retrieveExpense(ctx echo.Context) error {
	exp, ok := ctx.Get(contextObjectKey).(expense.Expense)
	if !ok {
		return errors.Wrap(errExpenseNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, exp)
}

func (s *Server) updateExpense(ctx echo.Context) error {
	exp, ok := ctx.Get(contextObjectKey).(expense.Expense)
	if !ok {
		return errors.Wrap(errExpenseNotFoundInCtx, "retrieving object from context")
	}
	var data expense.UpdateExpense
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}
	exp, err := s.deps.ExpenseSvc.Update(ctx.Request().Context(), exp, data)
	if err != nil {
		return errors.Wrap(err, "updating expense")
	}
	return ctx.JSON(http.StatusOK, exp)
}

func (s *Server) destroyExpense(ctx echo.Context) error {
	exp, ok := ctx.Get(contextObjectKey).(expense.Expense)
	if !ok {
		return errors.Wrap(errExpenseNotFoundInCtx, "retrieving object from context")
	}
	if err := s.deps.ExpenseSvc.Delete(ctx.Request().Context(), exp.ID); err != nil {
		return errors.Wrap(err, "deleting expense")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *Server) expenseObjectMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := pathID(ctx, "id")
			if err != nil {
				return err
			}
			exp, err := s.deps.ExpenseSvc.GetByID(ctx.Request().Context(), id)
			if err != nil {
				return err
			}
			ctx.Set(contextObjectKey, exp)
			return next(ctx)
		}
	}
}

func (s *Server) queryReferences(ctx echo.Context) error {
	refs, err := s.deps.ExpenseSvc.QueryReferences(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying references")
	}
	if refs == nil {
		refs = []expense.Reference{}
	}
	return ctx.JSON(http.StatusOK, refs)
}

func (s *Server) createReference(ctx echo.Context) error {
	var data expense.NewReference
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(ctx.Request().Context(), s.deps.Validate, s.deps.ExpenseSvc); err != nil {
		return err
	}
	ref, err := s.deps.ExpenseSvc.CreateReference(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating reference")
	}
	return ctx.JSON(http.StatusCreated, ref)
}

func (s *Server) retrieveReference(ctx echo.Context) error {
	ref, ok := ctx.Get(contextObjectKey).(expense.Reference)
	if !ok {
		return errors.Wrap(errReferenceNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, ref)
}

func (s *Server) updateReference(ctx echo.Context) error {
	ref, ok := ctx.Get(contextObjectKey).(expense.Reference)
	if !ok {
		return errors.Wrap(errReferenceNotFoundInCtx, "retrieving object from context")
	}
	var data expense.UpdateReference
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(ctx.Request().Context(), ref, s.deps.Validate, s.deps.ExpenseSvc); err != nil {
		return err
	}
	ref, err := s.deps.ExpenseSvc.UpdateReference(ctx.Request().Context(), ref, data)
	if err != nil {
		return errors.Wrap(err, "updating reference")
	}
	return ctx.JSON(http.StatusOK, ref)
}

func (s *Server) destroyReference(ctx echo.Context) error {
	ref, ok := ctx.Get(contextObjectKey).(expense.Reference)
	if !ok {
		return errors.Wrap(errReferenceNotFoundInCtx, "retrieving object from context")
	}
	if err := s.deps.ExpenseSvc.DeleteReference(ctx.Request().Context(), ref.ID); err != nil {
		return errors.Wrap(err, "deleting reference")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *Server) referenceObjectMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := pathID(ctx, "id")
			if err != nil {
				return err
			}
			ref, err := s.deps.ExpenseSvc.GetReference(ctx.Request().Context(), id)
			if err != nil {
				return err
			}
			ctx.Set(contextObjectKey, ref)
			return next(ctx)
		}
	}
}
