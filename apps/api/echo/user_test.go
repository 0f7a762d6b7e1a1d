package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/user"
	testutil "github.com/greesoft/canteen/tests"
)

func Test_userApi(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	super := app.createUser(t, "Super", "super@test.cd", user.RoleSuperAdmin)
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin)
	teacher := app.createUser(t, "Teacher", "teacher@test.cd", user.RoleTeacher)
	other := app.createUser(t, "Other", "other@test.cd", user.RoleTeacher)
	cls := testutil.CreateClass(t, app.repos.Class, "Grade 1", teacher.ID)
	cls, _ = app.svcs.Class.GetByID(ctx, cls.ID)

	adminToken, teacherToken := app.getToken(t, admin), app.getToken(t, teacher)

	app.run(t, []httpTest{
		{name: "auth required", path: "/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "admin required", path: "/users", token: teacherToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})},
		{name: "roles", path: "/users/roles", token: teacherToken, wantData: marchallObj(t, user.Roles)},
		{name: "filter by role", path: "/users?role=" + user.RoleSuperAdmin, token: adminToken, wantData: marchallList(t, super)},
		{
			name: "own detail", path: "/users/" + itoa(teacher.ID), token: teacherToken,
			wantData: marchallObj(t, userDetail{User: teacher, AssignedClass: &cls}),
		},
		{name: "someone else's detail", path: "/users/" + itoa(other.ID), token: teacherToken, wantCode: http.StatusNotFound},
		{name: "admin sees anyone", path: "/users/" + itoa(other.ID), token: adminToken, wantData: marchallObj(t, userDetail{User: other})},
		{
			name: "teacher cannot change role", method: http.MethodPut, path: "/users/" + itoa(teacher.ID), token: teacherToken,
			body: marchallObj(t, user.UpdateUser{Role: user.RoleAdmin}), wantCode: http.StatusForbidden,
		},
		{
			name: "admin cannot promote above self", method: http.MethodPut, path: "/users/" + itoa(other.ID), token: adminToken,
			body: marchallObj(t, user.UpdateUser{Role: user.RoleSuperAdmin}), wantCode: http.StatusBadRequest,
		},
		{name: "cannot delete self", method: http.MethodDelete, path: "/users/" + itoa(admin.ID), token: adminToken, wantCode: http.StatusForbidden},
		{name: "cannot delete a superior", method: http.MethodDelete, path: "/users/" + itoa(super.ID), token: adminToken, wantCode: http.StatusForbidden},
		{name: "bulk delete self", method: http.MethodDelete, path: "/users?id=" + itoa(admin.ID), token: adminToken, wantCode: http.StatusForbidden},
		{name: "bulk delete a superior", method: http.MethodDelete, path: "/users?id=" + itoa(other.ID) + "&id=" + itoa(super.ID), token: adminToken, wantCode: http.StatusForbidden},
		{name: "bulk delete bad ids", method: http.MethodDelete, path: "/users?id=abc", token: adminToken, wantCode: http.StatusBadRequest},
	})

	t.Run("superiors survive bulk deletes", func(t *testing.T) {
		_, err := app.svcs.User.GetByID(ctx, super.ID)
		assert.NoError(t, err)
		_, err = app.svcs.User.GetByID(ctx, other.ID)
		assert.NoError(t, err, "nothing is deleted when one id is refused")
	})

	t.Run("update own profile", func(t *testing.T) {
		rec := app.do(httpTest{
			method: http.MethodPut, path: "/users/" + itoa(teacher.ID), token: teacherToken,
			body: marchallObj(t, user.UpdateUser{Name: " Mwalimu ", Phone: "0999999999"}),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var detail userDetail
		unmarshal(t, rec, &detail)
		assert.Equal(t, "Mwalimu", detail.Name)
		assert.Equal(t, "0999999999", detail.Phone)
		assert.Equal(t, "teacher@test.cd", detail.Email)
		assert.Equal(t, user.RoleTeacher, detail.Role)
		require.NotNil(t, detail.AssignedClass)
		assert.Equal(t, cls.ID, detail.AssignedClass.ID)
	})

	t.Run("delete", func(t *testing.T) {
		rec := app.do(httpTest{method: http.MethodDelete, path: "/users/" + itoa(other.ID), token: adminToken})
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		_, err := app.svcs.User.GetByID(ctx, other.ID)
		assert.Equal(t, user.ErrNotFound, err)

		rec = app.do(httpTest{method: http.MethodDelete, path: "/users?id=" + itoa(teacher.ID), token: adminToken})
		require.Equal(t, http.StatusNoContent, rec.Code)

		// tokens of deleted users stop working
		rec = app.do(httpTest{path: "/classes", token: teacherToken})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		supervised, err := app.svcs.Class.GetByID(ctx, cls.ID)
		require.NoError(t, err)
		assert.False(t, supervised.SupervisorID.Valid)
	})
}

func Test_adminApi(t *testing.T) {
	app := newTestApp(t)
	super := app.createUser(t, "Super", "super@test.cd", user.RoleSuperAdmin)
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin)
	teacher := app.createUser(t, "Teacher", "teacher@test.cd", user.RoleTeacher)
	superToken, adminToken := app.getToken(t, super), app.getToken(t, admin)

	newAdmin := func(email, role string) []byte {
		return marchallObj(t, user.NewUser{Name: "Second", Email: email, Phone: "0810000002", Gender: user.GenderFemale, Role: role, Password: testPwd})
	}

	app.run(t, []httpTest{
		{name: "admin required", path: "/admins", token: app.getToken(t, teacher), wantCode: http.StatusForbidden},
		{name: "list", path: "/admins?role=" + user.RoleTeacher, token: adminToken, wantCode: http.StatusOK},
		{name: "teacher is not an admin", path: "/admins/" + itoa(teacher.ID), token: adminToken, wantCode: http.StatusNotFound},
		{name: "retrieve", path: "/admins/" + itoa(super.ID), token: adminToken, wantData: marchallObj(t, super)},
		{
			name: "duplicate email", method: http.MethodPost, path: "/admins", token: adminToken, body: newAdmin("ADMIN@test.cd", ""),
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: user.ErrEmailExists.Error()}),
		},
		{
			name: "teacher role", method: http.MethodPost, path: "/admins", token: adminToken, body: newAdmin("second@test.cd", user.RoleTeacher),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"role": errNotAdminRole}),
		},
		{
			name: "above own role", method: http.MethodPost, path: "/admins", token: adminToken, body: newAdmin("second@test.cd", user.RoleSuperAdmin),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"role": errNoPermsToSetRoles}),
		},
		{name: "admin cannot delete super admin", method: http.MethodDelete, path: "/admins/" + itoa(super.ID), token: adminToken, wantCode: http.StatusForbidden},
	})

	rec := app.do(httpTest{path: "/admins", token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var admins []user.User
	unmarshal(t, rec, &admins)
	assert.Len(t, admins, 2, "teachers are never listed")

	rec = app.do(httpTest{method: http.MethodPost, path: "/admins", token: superToken, body: newAdmin("second@test.cd", "")})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var second user.User
	unmarshal(t, rec, &second)
	assert.Equal(t, user.RoleAdmin, second.Role)

	rec = app.do(httpTest{
		method: http.MethodPatch, path: "/admins/" + itoa(second.ID), token: superToken,
		body: marchallObj(t, user.UpdateUser{Role: user.RoleSuperAdmin, IsActive: core.BoolPtr(false)}),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshal(t, rec, &second)
	assert.Equal(t, user.RoleSuperAdmin, second.Role)
	assert.False(t, second.IsActive)

	rec = app.do(httpTest{method: http.MethodDelete, path: "/admins/" + itoa(second.ID), token: superToken})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
