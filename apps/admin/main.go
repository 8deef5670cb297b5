package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sauvini/onboarding/core"
	"github.com/sauvini/onboarding/core/recovery"
	"github.com/sauvini/onboarding/core/registration"
	"github.com/sauvini/onboarding/services/authapi"
	logsvc "github.com/sauvini/onboarding/services/logger"
	"github.com/sauvini/onboarding/storage/database"
	sqlxrepos "github.com/sauvini/onboarding/storage/database/sqlx"
	"github.com/sauvini/onboarding/storage/session"
	sessinmem "github.com/sauvini/onboarding/storage/session/inmem"
	sessredis "github.com/sauvini/onboarding/storage/session/redis"
)

var logger core.Logger

func main() {
	defer os.Exit(0)

	conf := core.NewConfig()
	zl := logsvc.NewZerolog(conf.Log, true /* console */, os.Stderr).With().Str("component", "admin").Logger()
	rlogger := logsvc.NewRollbarLogger(zl, conf)
	rlogger.Enable(false)
	logger = rlogger

	cli := commandLine{out: os.Stdout}

	// set up DB
	if conf.Database.Enabled() {
		db, err := database.Open(conf)
		errAndDie(err)
		defer func() { _ = db.Close() }()
		cli.db = db
		cli.ledger = sqlxrepos.NewSubmissionRepository(db)
	}

	// set up sessions: only the redis store is shared with the api
	resetStore := session.NewStore(sessinmem.NewKV(), session.NewCodec(), conf.Session.TTL)
	if conf.Session.Store == "redis" {
		rdb, err := sessredis.NewClient(context.Background(), conf.Redis)
		errAndDie(err)
		defer func() { _ = rdb.Close() }()
		store := session.NewStore(sessredis.NewKV(rdb), session.NewSealedCodec(conf.SecretKey), conf.Session.TTL)
		cli.sessions = store
		resetStore = store
	}

	auth := authapi.NewClient(conf.AuthAPI.BaseURL, conf.AuthAPI.Timeout, logger)
	validate := registration.NewValidator(core.NewTranslator())
	cli.resets = recovery.NewService(resetStore, auth, validate, logger)

	// start CLI
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %s", err), err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
