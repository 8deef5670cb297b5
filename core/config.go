package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address                    string
		Host                       string
		DebugHost                  string
		ShutdownTimeout            time.Duration
		WizardTokenExpirationDelta time.Duration
		MaxUploadSize              string // echo BodyLimit format, eg. "5M"
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	SessionConfig struct {
		Store string // memory | redis
		TTL   time.Duration
	}

	AuthAPIConfig struct {
		BaseURL string
		Timeout time.Duration
	}

	RoutesConfig struct {
		StudentLogin string
		TeacherLogin string
	}

	LogConfig struct {
		Level  string // trace|debug|info|warn|error
		Format string // json|console
	}

	Config struct {
		Env              string
		Build            string
		AppName          string
		Debug            bool
		TestMode         bool
		SecretKey        string
		WorkDir          string
		FrontendBaseURL  string
		SendgridApiKey   string
		RollbarToken     string
		UploadsDir       string
		defaultFromEmail mail.Address

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Session  SessionConfig
		AuthAPI  AuthAPIConfig
		Routes   RoutesConfig
		Log      LogConfig
	}
)

// DefaultFromEmail returns the sender used for outgoing emails.
func (conf *Config) DefaultFromEmail() mail.Address { return conf.defaultFromEmail }

// Address returns the database "host:port".
func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, db.Port)
}

// Enabled reports whether a database is configured at all.
// Without one, the submission ledger is kept in memory.
func (db DatabaseConfig) Enabled() bool { return db.Host != "" && db.Name != "" }

// NewConfig loads the app configuration from defaults, an optional `config/.env.<env>` file and the environment.
func NewConfig() *Config {
	vpr := viper.New()
	setDefaults(vpr)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		vpr.SetDefault("testMode", true)
	}
	vpr.SetEnvPrefix(env)
	vpr.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	vpr.AutomaticEnv()

	conf := &Config{
		Env:             env,
		Build:           vpr.GetString("build"),
		AppName:         vpr.GetString("appName"),
		Debug:           vpr.GetBool("debug"),
		TestMode:        vpr.GetBool("testMode"),
		SecretKey:       vpr.GetString("secretKey"),
		WorkDir:         wd,
		FrontendBaseURL: vpr.GetString("frontendBaseURL"),
		SendgridApiKey:  vpr.GetString("sendgridApiKey"),
		RollbarToken:    vpr.GetString("rollbarToken"),
		UploadsDir:      vpr.GetString("uploadsDir"),
		defaultFromEmail: mail.Address{
			Name:    vpr.GetString("appName"),
			Address: vpr.GetString("defaultFromEmail"),
		},
		Server: ServerConfig{
			Address:                    vpr.GetString("server.address"),
			Host:                       vpr.GetString("server.host"),
			DebugHost:                  vpr.GetString("server.debugHost"),
			ShutdownTimeout:            vpr.GetDuration("server.shutdownTimeout"),
			WizardTokenExpirationDelta: vpr.GetDuration("server.wizardTokenExpirationDelta"),
			MaxUploadSize:              vpr.GetString("server.maxUploadSize"),
		},
		Database: DatabaseConfig{
			Engine:        vpr.GetString("database.engine"),
			Host:          vpr.GetString("database.host"),
			Port:          vpr.GetString("database.port"),
			Name:          vpr.GetString("database.name"),
			User:          vpr.GetString("database.user"),
			Password:      vpr.GetString("database.password"),
			AdminUser:     vpr.GetString("database.adminUser"),
			AdminPassword: vpr.GetString("database.adminPassword"),
			DisableTLS:    vpr.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			Addr:     vpr.GetString("redis.addr"),
			Password: vpr.GetString("redis.password"),
			DB:       vpr.GetInt("redis.db"),
		},
		Session: SessionConfig{
			Store: vpr.GetString("session.store"),
			TTL:   vpr.GetDuration("session.ttl"),
		},
		AuthAPI: AuthAPIConfig{
			BaseURL: vpr.GetString("authApi.baseURL"),
			Timeout: vpr.GetDuration("authApi.timeout"),
		},
		Routes: RoutesConfig{
			StudentLogin: vpr.GetString("routes.studentLogin"),
			TeacherLogin: vpr.GetString("routes.teacherLogin"),
		},
		Log: LogConfig{
			Level:  vpr.GetString("log.level"),
			Format: vpr.GetString("log.format"),
		},
	}
	if conf.UploadsDir == "" {
		conf.UploadsDir = filepath.Join(wd, "uploads")
	}
	return conf
}

func setDefaults(vpr *viper.Viper) {
	vpr.SetTypeByDefaultValue(true)
	vpr.SetDefault("debug", true)
	vpr.SetDefault("build", "develop")
	vpr.SetDefault("appName", "Sauvini")
	vpr.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	vpr.SetDefault("defaultFromEmail", "noreply@localhost")
	vpr.SetDefault("frontendBaseURL", "http://localhost:3000")
	vpr.SetDefault("sendgridApiKey", "")
	vpr.SetDefault("rollbarToken", "")
	vpr.SetDefault("uploadsDir", "")

	vpr.SetDefault("server.address", ":8000")
	vpr.SetDefault("server.host", "localhost")
	vpr.SetDefault("server.debugHost", ":4000")
	vpr.SetDefault("server.shutdownTimeout", 5*time.Second)
	vpr.SetDefault("server.wizardTokenExpirationDelta", 24*time.Hour)
	vpr.SetDefault("server.maxUploadSize", "10M")

	vpr.SetDefault("database.engine", "postgres")
	vpr.SetDefault("database.host", "")
	vpr.SetDefault("database.port", "5432")
	vpr.SetDefault("database.name", "sauvini")
	vpr.SetDefault("database.user", "")
	vpr.SetDefault("database.password", "")
	vpr.SetDefault("database.adminUser", "")
	vpr.SetDefault("database.adminPassword", "")
	vpr.SetDefault("database.disableTLS", false)

	vpr.SetDefault("redis.addr", "localhost:6379")
	vpr.SetDefault("redis.password", "")
	vpr.SetDefault("redis.db", 0)

	vpr.SetDefault("session.store", "memory")
	vpr.SetDefault("session.ttl", 2*time.Hour)

	vpr.SetDefault("authApi.baseURL", "http://localhost:8080/api")
	vpr.SetDefault("authApi.timeout", 15*time.Second)

	vpr.SetDefault("routes.studentLogin", "/auth/login/student")
	vpr.SetDefault("routes.teacherLogin", "/auth/login/professor")

	vpr.SetDefault("log.level", "info")
	vpr.SetDefault("log.format", "console")
}

// getwd returns the project root: the closest parent directory holding a go.mod.
// go-test changes the working directory to the test package being run during tests,
// see: https://stackoverflow.com/questions/23847003/golang-tests-and-working-directory
func getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}
