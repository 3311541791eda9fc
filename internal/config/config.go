package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string `yaml:"env" env:"ENV" env-default:"local" env-description:"Environment" validate:"oneof=local dev prod"`
	ApiPort  int    `yaml:"api_port" env:"API_PORT" env-default:"8080" validate:"min=1,max=65535"`
	ApiHost  string `yaml:"api_host" env:"API_HOST" env-default:"localhost"`
	Storage  string `yaml:"storage" env:"STORAGE" env-default:"postgres" env-description:"postgres or memory" validate:"oneof=postgres memory"`
	Postgres `yaml:"postgres"`
	Auth     `yaml:"auth"`
}

type Postgres struct {
	Host            string        `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port            string        `yaml:"port" env:"POSTGRES_PORT" env-default:"5433"`
	User            string        `yaml:"user" env:"POSTGRES_USER" env-default:"test"`
	Pass            string        `yaml:"pass" env:"POSTGRES_PASS" env-default:"12345"`
	Db              string        `yaml:"db" env:"POSTGRES_DB" env-default:"test_db"`
	SSLMode         string        `yaml:"sslmode" env:"POSTGRES_SSLMODE" env-default:"disable"`
	MaxOpenConns    int           `yaml:"max_open_conns" env-default:"10" validate:"min=1"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env-default:"5" validate:"min=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env-default:"30m"`
	MigrationsPath  string        `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	AutoMigrate     bool          `yaml:"auto_migrate" env:"AUTO_MIGRATE" env-default:"false"`
}

type Auth struct {
	JWTSecret  string        `yaml:"jwt_secret" env:"JWT_SECRET" validate:"required,min=8"`
	TokenTTL   time.Duration `yaml:"token_ttl" env-default:"24h" validate:"gt=0"`
	BcryptCost int           `yaml:"bcrypt_cost" env-default:"10" validate:"min=4,max=31"`
	LoginRPS   float64       `yaml:"login_rps" env-default:"5" validate:"gt=0"`
	LoginBurst int           `yaml:"login_burst" env-default:"10" validate:"min=1"`
}

// URL builds the connection string for lib/pq and golang-migrate.
func (p Postgres) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Pass),
		Host:     p.Host + ":" + p.Port,
		Path:     "/" + p.Db,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config path is empty")
	}

	cfg, err := Load(path)
	if err != nil {
		panic(err.Error())
	}

	return cfg
}

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
