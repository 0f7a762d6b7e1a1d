package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/greesoft/canteen/apps"
	echoapi "github.com/greesoft/canteen/apps/api/echo"
	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/user"
	appfs "github.com/greesoft/canteen/fs"
	emailsvc "github.com/greesoft/canteen/services/email"
	logsvc "github.com/greesoft/canteen/services/logger"
	schedsvc "github.com/greesoft/canteen/services/scheduler"
	"github.com/greesoft/canteen/storage/database"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()
	core.SetLocation(conf.Location())

	// set up loggers
	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("api"), conf)
	defer logger.Sync()

	dbLogger := logsvc.NewRollbarLogger(zl.Named("db"), conf)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	svcs := apps.NewServices(conf, apps.NewSQLRepositories(db), mailSvc)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(appfs.FS, conf, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Scheduler

	if !conf.Canteen.DisableScheduler {
		sched, err := schedsvc.New(conf, svcs.Record, logger.Named("scheduler"))
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up scheduler: %v", err), err)
		}
		sched.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()
			sched.Stop(ctx)
		}()
		logger.Info(fmt.Sprintf("daily records scheduled at %q", conf.Canteen.DailyRecordsSchedule))
	}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:         conf,
			Logger:       logger,
			Validate:     validate,
			Translator:   translator,
			UserSvc:      svcs.User,
			ClassSvc:     svcs.Class,
			StudentSvc:   svcs.Student,
			TermSvc:      svcs.Term,
			SettingSvc:   svcs.Setting,
			RecordSvc:    svcs.Record,
			ExpenseSvc:   svcs.Expense,
			AnalyticsSvc: svcs.Analytics,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

var (
	createDBFunc = database.CreateIfNotExist // mockable
	migrateFunc  = database.Migrate          // mockable
)

// setUpDB opens the database. Only debug builds create and migrate it: production runs `admin migrate`.
func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if conf.Debug {
		if err := createDBFunc(context.Background(), conf); err != nil {
			return nil, err
		}
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if conf.Debug {
		if err = migrateFunc(db.DB); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
