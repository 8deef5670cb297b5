package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/sauvini/onboarding/apps/api/echo"
	"github.com/sauvini/onboarding/core"
	"github.com/sauvini/onboarding/core/recovery"
	"github.com/sauvini/onboarding/core/registration"
	"github.com/sauvini/onboarding/services/authapi"
	emailsvc "github.com/sauvini/onboarding/services/email"
	logsvc "github.com/sauvini/onboarding/services/logger"
	"github.com/sauvini/onboarding/services/metrics"
	"github.com/sauvini/onboarding/storage/database"
	inmemdb "github.com/sauvini/onboarding/storage/database/inmem"
	sqlxrepos "github.com/sauvini/onboarding/storage/database/sqlx"
	"github.com/sauvini/onboarding/storage/files"
	"github.com/sauvini/onboarding/storage/session"
	sessinmem "github.com/sauvini/onboarding/storage/session/inmem"
	sessredis "github.com/sauvini/onboarding/storage/session/redis"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type (
	// SessionStores are the session backends, in memory or in Redis.
	SessionStores struct {
		dig.Out
		Registration registration.Repository
		Recovery     recovery.Repository
		Locker       registration.Locker
	}

	// Ledger is the submission ledger, and the database behind it if any (nil in memory).
	Ledger struct {
		dig.Out
		Repo registration.SubmissionRepository
		DB   core.DB
	}

	ServiceParams struct {
		dig.In
		Repo     registration.Repository
		Ledger   registration.SubmissionRepository
		Files    registration.FileStore
		Auth     registration.AuthClient
		Mailer   core.EmailService
		Locker   registration.Locker
		Metrics  registration.Metrics
		Logger   core.Logger
		Routes   registration.LoginRoutes
		Validate *registration.Validator
	}
)

func newLogger(conf *core.Config) core.Logger {
	zl := logsvc.NewZerolog(conf.Log, conf.Debug, os.Stdout).With().Str("component", "api").Logger()
	logger := logsvc.NewRollbarLogger(zl, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	zl := logsvc.NewZerolog(conf.Log, conf.Debug, os.Stdout).With().Str("component", "db").Logger()
	logger := logsvc.NewRollbarLogger(zl, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newLedger(conf *core.Config, loggerParam DBLoggerParam) Ledger {
	if !conf.Database.Enabled() {
		loggerParam.Logger.Warn("no database configured: the submission ledger is kept in memory")
		return Ledger{Repo: inmemdb.NewSubmissionRepository()}
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	if err = database.Migrate(db); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}
	return Ledger{Repo: sqlxrepos.NewSubmissionRepository(db), DB: db}
}

func newSessionStores(conf *core.Config, logger core.Logger) SessionStores {
	var stores SessionStores
	switch conf.Session.Store {
	case "redis":
		cli, err := sessredis.NewClient(context.Background(), conf.Redis)
		if err != nil {
			logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
		}
		// drafts hold passwords
		store := session.NewStore(sessredis.NewKV(cli), session.NewSealedCodec(conf.SecretKey), conf.Session.TTL)
		stores = SessionStores{Registration: store, Recovery: store, Locker: sessredis.NewLocker(cli, conf)}
	default:
		store := session.NewStore(sessinmem.NewKV(), session.NewCodec(), conf.Session.TTL)
		stores = SessionStores{Registration: store, Recovery: store, Locker: sessinmem.NewLocker()}
	}
	return stores
}

func newFileStore(conf *core.Config, logger core.Logger) registration.FileStore {
	store, err := files.NewLocalStore(conf.UploadsDir)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file store: %v", err), err)
	}
	return store
}

func newAuthClient(conf *core.Config, logger core.Logger) *authapi.Client {
	return authapi.NewClient(conf.AuthAPI.BaseURL, conf.AuthAPI.Timeout, logger)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, os.Stdout, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newLoginRoutes(conf *core.Config) registration.LoginRoutes {
	return registration.LoginRoutes{
		registration.RoleStudent: conf.Routes.StudentLogin,
		registration.RoleTeacher: conf.Routes.TeacherLogin,
	}
}

func newRegistrationService(p ServiceParams) *registration.Service {
	return registration.NewService(registration.Deps{
		Repo:     p.Repo,
		Ledger:   p.Ledger,
		Files:    p.Files,
		Auth:     p.Auth,
		Mailer:   p.Mailer,
		Locker:   p.Locker,
		Metrics:  p.Metrics,
		Logger:   p.Logger,
		Routes:   p.Routes,
		Validate: p.Validate,
	})
}

func newRecoveryService(repo recovery.Repository, auth recovery.AuthClient, validate *registration.Validator, logger core.Logger) *recovery.Service {
	return recovery.NewService(repo, auth, validate, logger)
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newLedger))
	must(c.Provide(newSessionStores))
	must(c.Provide(newFileStore))
	must(c.Provide(newAuthClient, dig.As(new(registration.AuthClient), new(recovery.AuthClient))))
	must(c.Provide(newEmailService))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(registration.NewValidator))
	must(c.Provide(newLoginRoutes))
	must(c.Provide(metrics.NewRecorder, dig.As(new(registration.Metrics))))
	must(c.Provide(newRegistrationService, dig.As(new(registration.ServiceInterface))))
	must(c.Provide(newRecoveryService))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
