package echoapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/setting"
	"github.com/greesoft/canteen/core/term"
	"github.com/greesoft/canteen/core/user"
	testutil "github.com/greesoft/canteen/tests"
)

func Test_termApi(t *testing.T) {
	app := newTestApp(t)
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin)
	teacher := app.createUser(t, "Teacher", "teacher@test.cd", user.RoleTeacher)
	adminToken, teacherToken := app.getToken(t, admin), app.getToken(t, teacher)

	day := func(y int, m time.Month, d int) core.Date { return core.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)} }
	first := testutil.CreateTerm(t, app.repos.Term, "First term", day(2024, time.January, 8).Time, day(2024, time.March, 29).Time, false)

	app.run(t, []httpTest{
		{name: "no active term", path: "/terms/active", token: teacherToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: term.ErrNoActive.Error()})},
		{name: "list", path: "/terms", token: teacherToken, wantData: marchallList(t, first)},
		{
			name: "teachers cannot create", method: http.MethodPost, path: "/terms", token: teacherToken,
			body: marchallObj(t, term.NewTerm{Name: "Second term", Year: 2024}), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "missing dates", method: http.MethodPost, path: "/terms", token: adminToken,
			body: marchallObj(t, term.NewTerm{Name: "Second term", Year: 2024}), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"start_date": "this field is required", "end_date": "this field is required"}),
		},
		{
			name: "end before start", method: http.MethodPost, path: "/terms", token: adminToken, wantCode: http.StatusBadRequest,
			body: marchallObj(t, term.NewTerm{Name: "Second term", Year: 2024, StartDate: day(2024, time.May, 1), EndDate: day(2024, time.April, 1)}),
		},
		{name: "bad date", method: http.MethodPost, path: "/terms", token: adminToken, body: []byte(`{"start_date": "01/04/2024"}`), wantCode: http.StatusBadRequest},
		{name: "teachers cannot activate", method: http.MethodPatch, path: "/terms/" + itoa(first.ID) + "/activate", token: teacherToken, wantCode: http.StatusForbidden},
		{name: "activate unknown", method: http.MethodPatch, path: "/terms/999/activate", token: adminToken, wantCode: http.StatusNotFound},
	})

	var second term.Term
	t.Run("create active", func(t *testing.T) {
		body := marchallObj(t, term.NewTerm{
			Name: " Second term ", Year: 2024, StartDate: day(2024, time.April, 15), EndDate: day(2024, time.July, 5), IsActive: true,
		})
		rec := app.do(httpTest{method: http.MethodPost, path: "/terms", token: adminToken, body: body})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &second)
		assert.Equal(t, "Second term", second.Name)
		assert.True(t, second.IsActive)

		rec = app.do(httpTest{path: "/terms/active", token: teacherToken})
		require.Equal(t, http.StatusOK, rec.Code)
		var active term.Term
		unmarshal(t, rec, &active)
		assert.Equal(t, second.ID, active.ID)
	})

	t.Run("activation is exclusive", func(t *testing.T) {
		rec := app.do(httpTest{method: http.MethodPatch, path: "/terms/" + itoa(first.ID) + "/activate", token: adminToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = app.do(httpTest{path: "/terms", token: teacherToken})
		var terms []term.Term
		unmarshal(t, rec, &terms)
		require.Len(t, terms, 2)
		for _, tm := range terms {
			assert.Equal(t, tm.ID == first.ID, tm.IsActive, tm.Name)
		}

		rec = app.do(httpTest{method: http.MethodPatch, path: "/terms/" + itoa(first.ID) + "/deactivate", token: adminToken})
		require.Equal(t, http.StatusOK, rec.Code)
		rec = app.do(httpTest{path: "/terms/active", token: teacherToken})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("update & delete", func(t *testing.T) {
		body := marchallObj(t, term.UpdateTerm{EndDate: day(2024, time.April, 1)})
		rec := app.do(httpTest{method: http.MethodPut, path: "/terms/" + itoa(second.ID), token: adminToken, body: body})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "end before the stored start")

		body = marchallObj(t, term.UpdateTerm{Name: "Term 2", EndDate: day(2024, time.July, 12)})
		rec = app.do(httpTest{method: http.MethodPut, path: "/terms/" + itoa(second.ID), token: adminToken, body: body})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated term.Term
		unmarshal(t, rec, &updated)
		assert.Equal(t, "Term 2", updated.Name)
		assert.True(t, updated.StartDate.Equal(second.StartDate))
		assert.Equal(t, 12, updated.EndDate.Day())

		rec = app.do(httpTest{method: http.MethodDelete, path: "/terms/" + itoa(second.ID), token: adminToken})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = app.do(httpTest{method: http.MethodDelete, path: "/terms/" + itoa(second.ID), token: adminToken})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_settingApi(t *testing.T) {
	app := newTestApp(t)
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin)
	teacher := app.createUser(t, "Teacher", "teacher@test.cd", user.RoleTeacher)
	adminToken, teacherToken := app.getToken(t, admin), app.getToken(t, teacher)

	amount := func(v string) []byte { return marchallObj(t, setting.SetAmount{Value: testutil.Dec(v)}) }

	app.run(t, []httpTest{
		{name: "not set", path: "/settings/amount", token: teacherToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "Amount not set"})},
		{name: "teachers cannot set", method: http.MethodPost, path: "/settings/amount", token: teacherToken, body: amount("10"), wantCode: http.StatusForbidden},
		{
			name: "zero", method: http.MethodPost, path: "/settings/amount", token: adminToken, body: amount("0"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"value": "amount must be greater than 0"}),
		},
		{name: "create", method: http.MethodPost, path: "/settings/amount", token: adminToken, body: amount("12.5"), wantCode: http.StatusCreated},
		{
			name: "create twice", method: http.MethodPost, path: "/settings/amount", token: adminToken, body: amount("13"),
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: setting.ErrAmountExists.Error()}),
		},
		{name: "update", method: http.MethodPut, path: "/settings/amount", token: adminToken, body: amount("15.456")},
	})

	rec := app.do(httpTest{path: "/settings/amount", token: teacherToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var amt setting.Amount
	unmarshal(t, rec, &amt)
	assert.Equal(t, "15.46", amt.Value.String())
}
