package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/record"
	"github.com/greesoft/canteen/core/student"
	"github.com/greesoft/canteen/core/user"
	testutil "github.com/greesoft/canteen/tests"
)

func Test_studentApi(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	teacher := app.createUser(t, "Teacher", "teacher@test.cd", user.RoleTeacher)
	token := app.getToken(t, teacher)

	grade1 := testutil.CreateClass(t, app.repos.Class, "Grade 1", teacher.ID)
	grade2 := testutil.CreateClass(t, app.repos.Class, "Grade 2", 0)
	awe := testutil.CreateStudent(t, app.repos.Student, "Awe", grade1.ID, testutil.Dec("20"))
	bob := testutil.CreateStudent(t, app.repos.Student, "Bob", grade1.ID, testutil.Dec("-5"))
	cid := testutil.CreateStudent(t, app.repos.Student, "Cid", grade2.ID, testutil.Dec("7.5"))
	awe, _ = app.svcs.Student.GetByID(ctx, awe.ID)
	bob, _ = app.svcs.Student.GetByID(ctx, bob.ID)
	cid, _ = app.svcs.Student.GetByID(ctx, cid.ID)

	app.run(t, []httpTest{
		{name: "auth required", path: "/students", wantCode: http.StatusUnauthorized},
		{name: "list", path: "/students", token: token, wantData: marchallList(t, awe, bob, cid)},
		{name: "by class filter", path: "/students?class_id=" + itoa(grade2.ID), token: token, wantData: marchallList(t, cid)},
		{name: "owing filter", path: "/students?owing=true&ordering=-owing", token: token, wantData: marchallList(t, awe, cid)},
		{name: "search", path: "/students?search=BO", token: token, wantData: marchallList(t, bob)},
		{name: "by class", path: "/students/class/" + itoa(grade1.ID), token: token, wantData: marchallList(t, awe, bob)},
		{name: "by unknown class", path: "/students/class/999", token: token, wantCode: http.StatusNotFound},
		{
			name: "owing", path: "/students/owing", token: token,
			wantData: marchallObj(t, student.OwingSummary{OwingStudents: []student.Student{awe, cid}, Count: 2, TotalOwing: testutil.Dec("27.5")}),
		},
		{
			name: "owing by class", path: "/students/owing?class_id=" + itoa(grade1.ID), token: token,
			wantData: marchallObj(t, student.OwingSummary{OwingStudents: []student.Student{awe}, Count: 1, TotalOwing: testutil.Dec("20")}),
		},
		{name: "owing bad class", path: "/students/owing?class_id=x", token: token, wantCode: http.StatusBadRequest},
		{name: "retrieve", path: "/students/" + itoa(bob.ID), token: token, wantData: marchallObj(t, bob)},
		{name: "retrieve unknown", path: "/students/999", token: token, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "student not found"})},
		{
			name: "create in unknown class", method: http.MethodPost, path: "/students", token: token,
			body:     marchallObj(t, student.NewStudent{Name: "Dan", ClassID: core.IntPtr(999)}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"class_id": "class not found"}),
		},
		{
			name: "create bad gender", method: http.MethodPost, path: "/students", token: token,
			body: marchallObj(t, student.NewStudent{Name: "Dan", Gender: "other"}), wantCode: http.StatusBadRequest,
		},
	})

	t.Run("create opens today's record", func(t *testing.T) {
		app.openTerm(t)
		testutil.SetAmount(t, app.repos.Setting, "10.00")

		body := marchallObj(t, student.NewStudent{Name: " Dan ", Age: 9, Gender: "male", ClassID: core.IntPtr(grade2.ID)})
		rec := app.do(httpTest{method: http.MethodPost, path: "/students", token: token, body: body})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var dan student.Student
		unmarshal(t, rec, &dan)
		assert.Equal(t, "Dan", dan.Name)
		assert.True(t, dan.Owing.IsZero())

		records, err := app.svcs.Record.Query(ctx, &record.QueryFilter{StudentID: dan.ID})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.True(t, records[0].SubmittedAt.Equal(core.Today()))
		assert.True(t, records[0].Charged.Equal(decimal.Zero))
	})

	t.Run("update & delete", func(t *testing.T) {
		body := marchallObj(t, student.UpdateStudent{Age: core.IntPtr(11), ClassID: core.IntPtr(0)})
		rec := app.do(httpTest{method: http.MethodPut, path: "/students/" + itoa(bob.ID), token: token, body: body})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var st student.Student
		unmarshal(t, rec, &st)
		assert.Equal(t, "Bob", st.Name)
		assert.Equal(t, 11, st.Age)
		assert.False(t, st.ClassID.Valid)
		assert.True(t, st.Owing.Equal(testutil.Dec("-5")), "owing is not editable")

		rec = app.do(httpTest{method: http.MethodDelete, path: "/students/" + itoa(bob.ID), token: token})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		_, err := app.svcs.Student.GetByID(ctx, bob.ID)
		assert.Equal(t, student.ErrNotFound, err)
	})
}
