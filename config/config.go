package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cwrk-planet/collab-service/internal/domain"

	"gopkg.in/yaml.v3"
)

const defaultPath = "./config/config.yaml"

type GRPC struct {
	Addr string `yaml:"addr"`
}

type HTTP struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	IdleTimeout    time.Duration `yaml:"idleTimeout"`
	AllowedOrigins []string      `yaml:"allowedOrigins"` // пусто: любой Origin
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // collab-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Storage struct {
	Driver string `yaml:"driver"` // postgres|memory
}

type Postgres struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	ApplicationName   string        `yaml:"applicationName"`
	IsolationLevel    string        `yaml:"isolationLevel"` // read committed по умолчанию
}

type Presence struct {
	SweepInterval     time.Duration `yaml:"sweepInterval"`
	InactivityTimeout time.Duration `yaml:"inactivityTimeout"`
}

type WebSocket struct {
	PingInterval time.Duration `yaml:"pingInterval"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	ReadLimit    int64         `yaml:"readLimit"`
	SendBuffer   int           `yaml:"sendBuffer"`
}

type Telemetry struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	GRPC      GRPC      `yaml:"grpc"`
	Logging   Logging   `yaml:"logging"`
	Storage   Storage   `yaml:"storage"`
	Postgres  Postgres  `yaml:"postgres"`
	Presence  Presence  `yaml:"presence"`
	WebSocket WebSocket `yaml:"websocket"`
	Telemetry Telemetry `yaml:"telemetry"`
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// LoadConfig читает YAML из CONFIG_PATH (по умолчанию ./config/config.yaml).
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultPath
	}
	return Load(path)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	return errors.Join(
		c.HTTP.validate(),
		c.GRPC.validate(),
		c.Logging.validate(),
		c.Storage.validate(),
		c.Postgres.validate(c.Storage.Driver),
		c.Presence.validate(),
		c.WebSocket.validate(),
	)
}

func (h *HTTP) validate() error {
	if h.Addr == "" {
		return errors.New("http.addr is required")
	}
	h.ReadTimeout = durationOr(h.ReadTimeout, 10*time.Second)
	h.WriteTimeout = durationOr(h.WriteTimeout, 15*time.Second)
	h.IdleTimeout = durationOr(h.IdleTimeout, 60*time.Second)
	return nil
}

func (g *GRPC) validate() error {
	if g.Addr == "" {
		return errors.New("grpc.addr is required")
	}
	return nil
}

// установка дефолтов, если значения не указаны
func (l *Logging) validate() error {
	if l.Service == "" {
		l.Service = "collab-service"
	}
	if l.Env == "" {
		l.Env = "dev"
	}
	if l.Version == "" {
		l.Version = "v0.1.0"
	}
	if l.Backend == "" {
		l.Backend = "std"
	}
	if l.Backend != "std" && l.Backend != "zap" {
		return fmt.Errorf("logging.backend %q: want std|zap", l.Backend)
	}
	return nil
}

func (s *Storage) validate() error {
	if s.Driver == "" {
		s.Driver = DriverPostgres
	}
	if s.Driver != DriverPostgres && s.Driver != DriverMemory {
		return fmt.Errorf("storage.driver %q: want postgres|memory", s.Driver)
	}
	return nil
}

func (p *Postgres) validate(driver string) error {
	iso, err := domain.ParseIsolationLevel(p.IsolationLevel)
	if err != nil {
		return fmt.Errorf("postgres.isolationLevel: %w", err)
	}
	p.IsolationLevel = string(iso)
	if driver == DriverPostgres && p.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if p.MaxConns < 0 || p.MinConns < 0 {
		return errors.New("postgres.maxConns/minConns must not be negative")
	}
	if p.MaxConns > 0 && p.MinConns > p.MaxConns {
		return errors.New("postgres.minConns must not exceed maxConns")
	}
	if p.ApplicationName == "" {
		p.ApplicationName = "collab-service"
	}
	return nil
}

// Isolation: уровень изоляции транзакций записи; валиден после Load.
func (p Postgres) Isolation() domain.IsolationLevel {
	return domain.IsolationLevel(p.IsolationLevel)
}

func (p *Presence) validate() error {
	p.SweepInterval = durationOr(p.SweepInterval, 30*time.Second)
	p.InactivityTimeout = durationOr(p.InactivityTimeout, 60*time.Second)
	return nil
}

func (w *WebSocket) validate() error {
	w.PingInterval = durationOr(w.PingInterval, 25*time.Second)
	w.WriteTimeout = durationOr(w.WriteTimeout, 5*time.Second)
	if w.ReadLimit <= 0 {
		w.ReadLimit = 1 << 20
	}
	if w.SendBuffer <= 0 {
		w.SendBuffer = 64
	}
	return nil
}

func durationOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
