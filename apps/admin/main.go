package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/greesoft/canteen/apps"
	"github.com/greesoft/canteen/core"
	emailsvc "github.com/greesoft/canteen/services/email"
	logsvc "github.com/greesoft/canteen/services/logger"
	"github.com/greesoft/canteen/storage/database"
)

func main() {
	conf := core.NewConfig()
	core.SetLocation(conf.Location())

	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("admin"), conf)
	logger.Enable(false)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	if err = database.Ping(context.Background(), db.DB); err != nil {
		logger.Fatal(fmt.Sprintf("reaching database: %v", err), err)
	}

	repos := apps.NewSQLRepositories(db)
	svcs := apps.NewServices(conf, repos, emailsvc.NewConsoleService(conf))

	// start CLI
	cli := commandLine{
		db:      db.DB,
		usrRepo: repos.User,
		records: svcs.Record,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	logger.Sync()
	if err != nil {
		if err != errHelp {
			fmt.Printf("\nerror: %s\n", err)
		}
		var argErr *apps.ArgumentError
		if errors.As(err, &argErr) {
			cli.printUsage()
		}
		os.Exit(1)
	}
}
