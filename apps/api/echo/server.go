package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/analytics"
	"github.com/greesoft/canteen/core/class"
	"github.com/greesoft/canteen/core/expense"
	"github.com/greesoft/canteen/core/record"
	"github.com/greesoft/canteen/core/setting"
	"github.com/greesoft/canteen/core/student"
	"github.com/greesoft/canteen/core/term"
	"github.com/greesoft/canteen/core/user"
)

type ServerDeps struct {
	Conf           *core.Config
	Logger         core.Logger
	Validate       *validator.Validate
	Translator     ut.Translator
	DisableReqLogs bool

	UserSvc      *user.Service
	ClassSvc     *class.Service
	StudentSvc   *student.Service
	TermSvc      *term.Service
	SettingSvc   *setting.Service
	RecordSvc    *record.Service
	ExpenseSvc   *expense.Service
	AnalyticsSvc *analytics.Service
}

type Server struct {
	deps     ServerDeps
	app      *echo.Echo
	auth     *authConfig
	errors   chan error
	shutdown chan os.Signal
}

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		auth:     newAuthConfig(deps.Conf),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Logger.SetLevel(log.INFO)
	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: conf.Server.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
	}))
	s.app.Use(middleware.Secure())

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)

	s.registerAuthAPI(s.app.Group("/auth"))
	s.registerUserAPI(s.authedGroup("/users"))
	s.registerAdminAPI(s.authedGroup("/admins"))
	s.registerTeacherAPI(s.authedGroup("/teachers"))
	s.registerClassAPI(s.authedGroup("/classes"))
	s.registerStudentAPI(s.authedGroup("/students"))
	s.registerRecordAPI(s.authedGroup("/records"))
	s.registerSettingAPI(s.authedGroup("/settings"))
	s.registerExpenseAPI(s.authedGroup("/expenses"), s.authedGroup("/references"))
	s.registerTermAPI(s.authedGroup("/terms"))
	s.registerAnalyticsAPI(s.authedGroup("/analytics"))
}

// authedGroup requires a valid token from an active user on every route under prefix.
func (s *Server) authedGroup(prefix string) *echo.Group {
	return s.app.Group(prefix, s.auth.middleware(), userMiddleware(s.deps.UserSvc))
}

// Start listens until Shutdown is called. Listen errors are reported on Errors.
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok", "message": "Welcome to the Canteen API!"})
}
