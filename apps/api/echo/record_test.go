package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/record"
	"github.com/greesoft/canteen/core/term"
	"github.com/greesoft/canteen/core/user"
	testutil "github.com/greesoft/canteen/tests"
)

func Test_recordApi(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	teacher := app.createUser(t, "Teacher", "teacher@test.cd", user.RoleTeacher)
	token := app.getToken(t, teacher)

	cls := testutil.CreateClass(t, app.repos.Class, "Grade 1", teacher.ID)
	awe := testutil.CreateStudent(t, app.repos.Student, "Awe", cls.ID, testutil.Dec("0"))
	bob := testutil.CreateStudent(t, app.repos.Student, "Bob", cls.ID, testutil.Dec("0"))

	submission := marchallObj(t, record.SubmitRecords{
		ClassID: cls.ID,
		Paid:    []record.StudentEntry{{StudentID: awe.ID}},
		Unpaid:  []record.StudentEntry{{StudentID: bob.ID}},
	})

	app.run(t, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/records/submit", body: submission, wantCode: http.StatusUnauthorized},
		{
			name: "no term", method: http.MethodPost, path: "/records/submit", token: token, body: submission,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: term.ErrNoCurrent.Error()}),
		},
		{
			name: "no term prepaid", method: http.MethodPost, path: "/records/prepaid", token: token,
			body: marchallObj(t, record.SubmitPrepaid{StudentID: awe.ID, Total: testutil.Dec("25")}), wantCode: http.StatusForbidden,
		},
	})

	app.openTerm(t)
	testutil.SetAmount(t, app.repos.Setting, "10.00")

	app.run(t, []httpTest{
		{
			name: "class required", method: http.MethodPost, path: "/records/submit", token: token, body: []byte(`{"paid": []}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"class_id": "this field is required"}),
		},
		{
			name: "student of another class", method: http.MethodPost, path: "/records/submit", token: token,
			body:     marchallObj(t, record.SubmitRecords{ClassID: cls.ID, Paid: []record.StudentEntry{{StudentID: 999}}}),
			wantCode: http.StatusBadRequest,
		},
		{name: "bad date", path: "/records/class/" + itoa(cls.ID) + "?date=05/03/2024", token: token, wantCode: http.StatusBadRequest},
		{name: "unknown teacher", path: "/records/teachers/999", token: token, wantCode: http.StatusNotFound},
	})

	var submitted []record.Record
	t.Run("submit", func(t *testing.T) {
		rec := app.do(httpTest{method: http.MethodPost, path: "/records/submit", token: token, body: submission})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshal(t, rec, &submitted)
		require.Len(t, submitted, 2)

		assert.Equal(t, awe.ID, submitted[0].StudentID)
		assert.True(t, submitted[0].HasPaid)
		assert.Equal(t, "10", submitted[0].Amount.String(), "paid without amount pays the price")
		assert.True(t, submitted[0].OwingAfter.IsZero())
		assert.Equal(t, teacher.ID, submitted[0].SubmittedBy.Int)

		assert.Equal(t, bob.ID, submitted[1].StudentID)
		assert.False(t, submitted[1].HasPaid)
		assert.Equal(t, "10", submitted[1].OwingAfter.String())

		st, err := app.svcs.Student.GetByID(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, "10", st.Owing.String())
	})
	require.Len(t, submitted, 2)
	bobRec := submitted[1]

	t.Run("class day", func(t *testing.T) {
		rec := app.do(httpTest{path: "/records/class/" + itoa(cls.ID) + "?date=" + today(), token: token})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var cd record.ClassDay
		unmarshal(t, rec, &cd)
		require.Len(t, cd.PaidStudents, 1)
		require.Len(t, cd.UnpaidStudents, 1)
		assert.Empty(t, cd.AbsentStudents)
		assert.Equal(t, "Awe", cd.PaidStudents[0].StudentName.String)

		rec = app.do(httpTest{path: "/records/class/" + itoa(cls.ID) + "/students", token: token})
		require.Equal(t, http.StatusOK, rec.Code)
		var records []record.Record
		unmarshal(t, rec, &records)
		assert.Len(t, records, 2)
	})

	t.Run("submissions", func(t *testing.T) {
		for _, path := range []string{"/records/teachers", "/records/teachers/" + itoa(teacher.ID)} {
			rec := app.do(httpTest{path: path, token: token})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var subs []record.Submission
			unmarshal(t, rec, &subs)
			require.Len(t, subs, 1, path)
			assert.Equal(t, "Grade 1", subs[0].ClassName)
			assert.Equal(t, "Teacher", subs[0].TeacherName)
			assert.Equal(t, "10", subs[0].TotalAmount.String())
		}
	})

	t.Run("status", func(t *testing.T) {
		rec := app.do(httpTest{
			method: http.MethodPatch, path: "/records/" + itoa(bobRec.ID) + "/status", token: token,
			body: marchallObj(t, record.UpdateStatus{HasPaid: core.BoolPtr(true)}),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated record.Record
		unmarshal(t, rec, &updated)
		assert.True(t, updated.HasPaid)
		assert.True(t, updated.OwingAfter.IsZero())

		rec = app.do(httpTest{path: "/records?status=paid&class_id=" + itoa(cls.ID), token: token})
		require.Equal(t, http.StatusOK, rec.Code)
		var paid []record.Record
		unmarshal(t, rec, &paid)
		assert.Len(t, paid, 2)

		rec = app.do(httpTest{method: http.MethodPatch, path: "/records/999/status", token: token, body: []byte(`{}`)})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("prepaid", func(t *testing.T) {
		rec := app.do(httpTest{
			method: http.MethodPost, path: "/records/prepaid", token: token,
			body: marchallObj(t, record.SubmitPrepaid{StudentID: awe.ID, Total: testutil.Dec("25")}),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var res record.PrepaidResult
		unmarshal(t, rec, &res)
		assert.Equal(t, 2, res.Days)
		assert.Equal(t, "5", res.Remainder.String())
		require.Len(t, res.Records, 2)
		for _, r := range res.Records {
			assert.True(t, r.IsPrepaid)
		}

		rec = app.do(httpTest{
			method: http.MethodPost, path: "/records/prepaid", token: token,
			body: marchallObj(t, record.SubmitPrepaid{StudentID: awe.ID, Total: testutil.Dec("5")}),
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete & generate", func(t *testing.T) {
		rec := app.do(httpTest{method: http.MethodDelete, path: "/records/" + itoa(bobRec.ID), token: token})
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		rec = app.do(httpTest{path: "/records/" + itoa(bobRec.ID), token: token})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = app.do(httpTest{method: http.MethodPost, path: "/records/generate", token: token, body: []byte(`{}`)})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var res record.GenerateResult
		unmarshal(t, rec, &res)
		assert.Equal(t, 1, res.CreatedRecords)
	})
}
