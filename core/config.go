package core

import (
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env              string // DEV (local; default), TEST, QA, PROD
		Debug            bool
		TestMode         bool
		AppName          string
		Build            string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail string
		SendgridApiKey   string
		RollbarToken     string
		Timezone         string

		Server   ServerConfig
		Database DatabaseConfig
		Log      LogConfig
		Canteen  CanteenConfig
	}

	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		CORSOrigins               []string
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MaxOpenConns  int
		MaxIdleConns  int
	}

	LogConfig struct {
		Level string
		JSON  bool
	}

	CanteenConfig struct {
		DailyRecordsSchedule string
		DisableScheduler     bool
		OTPExpiry            time.Duration
	}
)

func (dc DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%d", dc.Host, dc.Port)
}

// DefaultFromAddress parses DefaultFromEmail, falling back to the bare address.
func (conf *Config) DefaultFromAddress() mail.Address {
	addr, err := mail.ParseAddress(conf.DefaultFromEmail)
	if err != nil {
		return mail.Address{Name: conf.AppName, Address: conf.DefaultFromEmail}
	}
	return *addr
}

// Location returns the configured time zone used to compute calendar days.
func (conf *Config) Location() *time.Location {
	if conf.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Canteen")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "x2#k9v!m7q)rb$0=wd&u1ph5(j!z)#*a4(#ne8f^$lat3yc")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "Canteen <noreply@localhost>")
	v.SetDefault("timezone", "UTC")

	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 2*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.corsOrigins", []string{"*"})

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "canteen")
	v.SetDefault("database.user", "canteen")
	v.SetDefault("database.password", "canteen")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("canteen.dailyRecordsSchedule", "10 11 * * *")
	v.SetDefault("canteen.disableScheduler", false)
	v.SetDefault("canteen.otpExpiry", 10*time.Minute)
}

// NewConfig loads the configuration from the environment.
// Variables are prefixed with the ENV name, e.g. PROD_DATABASE_HOST, and an optional
// config/.env.<env> file is loaded first.
func NewConfig() *Config {
	conf, err := LoadConfig(os.Getenv("ENV"), "")
	if err != nil {
		panic(err)
	}
	return conf
}

// LoadConfig loads the configuration for env, looking for dotenv files under dir (defaults to the working directory).
func LoadConfig(env, dir string) (*Config, error) {
	env = strings.ToUpper(env)
	if env == "" {
		env = "DEV"
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}

	// load .env if it exists (ignore if it does not)
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "getting working directory")
		}
		dir = wd
	}
	dotEnvPath := filepath.Join(dir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	conf := &Config{
		Env:              env,
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		Build:            v.GetString("build"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		DefaultFromEmail: v.GetString("defaultFromEmail"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		Timezone:         v.GetString("timezone"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			CORSOrigins:               v.GetStringSlice("server.corsOrigins"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			MaxOpenConns:  v.GetInt("database.maxOpenConns"),
			MaxIdleConns:  v.GetInt("database.maxIdleConns"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
			JSON:  v.GetBool("log.json"),
		},
		Canteen: CanteenConfig{
			DailyRecordsSchedule: v.GetString("canteen.dailyRecordsSchedule"),
			DisableScheduler:     v.GetBool("canteen.disableScheduler"),
			OTPExpiry:            v.GetDuration("canteen.otpExpiry"),
		},
	}
	return conf, nil
}

// NewTestConfig returns the configuration used by tests.
func NewTestConfig() *Config {
	conf, err := LoadConfig("TEST", os.TempDir())
	if err != nil {
		panic(err)
	}
	conf.Debug = false
	conf.TestMode = true
	conf.Canteen.DisableScheduler = true
	return conf
}
