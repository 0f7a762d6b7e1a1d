package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/greesoft/canteen/apps"
	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/user"
	appfs "github.com/greesoft/canteen/fs"
	emailsvc "github.com/greesoft/canteen/services/email"
	logsvc "github.com/greesoft/canteen/services/logger"
	inmemdb "github.com/greesoft/canteen/storage/database/inmem"
	testutil "github.com/greesoft/canteen/tests"
)

const testPwd = "Lunch!box2024"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

// testApp is a server backed by in-memory repositories.
type testApp struct {
	*Server
	conf  *core.Config
	repos apps.Repositories
	svcs  *apps.Services
}

func newTestApp(t *testing.T) *testApp {
	conf := core.NewTestConfig()
	logger := logsvc.NewNopLogger()
	core.ParseEmailTemplates(appfs.FS, conf, logger)

	repos := testutil.NewRepositories(inmemdb.NewDB())
	svcs := apps.NewServices(conf, repos, emailsvc.NewConsoleServiceMock(conf))
	validate, translator := testutil.NewValidator()

	srv := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
		UserSvc:        svcs.User,
		ClassSvc:       svcs.Class,
		StudentSvc:     svcs.Student,
		TermSvc:        svcs.Term,
		SettingSvc:     svcs.Setting,
		RecordSvc:      svcs.Record,
		ExpenseSvc:     svcs.Expense,
		AnalyticsSvc:   svcs.Analytics,
	})
	return &testApp{Server: srv, conf: conf, repos: repos, svcs: svcs}
}

func (app *testApp) createUser(t *testing.T, name, email, role string) user.User {
	return testutil.CreateUser(t, app.repos.User, name, email, testPwd, role, true)
}

// openTerm creates an active term covering today.
func (app *testApp) openTerm(t *testing.T) {
	today := core.Today()
	testutil.CreateTerm(t, app.repos.Term, "First term", today.AddDate(0, -1, 0), today.AddDate(0, 1, 0), true)
}

func (app *testApp) getToken(t *testing.T, usr user.User) string {
	token, err := app.auth.generateToken(app.auth.userClaims(usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func (app *testApp) do(tt httpTest) *httptest.ResponseRecorder {
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
	app.ServeHTTP(rec, req)
	return rec
}

func (app *testApp) run(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("unmarshal(%s): %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

// checkCodeAndData compares the body only when wantData is set.
func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	if rec.Code != wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func today() string {
	return core.Today().Format("2006-01-02")
}

func daysAgo(n int) time.Time {
	return core.Today().AddDate(0, 0, -n)
}

func itoa(i int) string { return strconv.Itoa(i) }
