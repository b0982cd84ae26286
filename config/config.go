// Package config loads the YAML configuration and applies environment
// overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"rtl-ml/capture"
	"rtl-ml/db"
	"rtl-ml/models"
	"rtl-ml/publish"
	"rtl-ml/session"
	"rtl-ml/utils"
)

type Config struct {
	RTLTCP        capture.RTLTCPConfig `yaml:"rtltcp"`
	ModelPath     string               `yaml:"model_path"`
	DatasetDir    string               `yaml:"dataset_dir"`
	DetectionsDir string               `yaml:"detections_dir"`
	Session       session.Options      `yaml:"session"`
	Targets       []models.Target      `yaml:"targets"`
	CapturePlan   []models.Target      `yaml:"capture_plan"`
	Server        ServerConfig         `yaml:"server"`
	Database      DatabaseConfig       `yaml:"database"`
	Mongo         MongoConfig          `yaml:"mongo"`
	MQTT          publish.MQTTConfig   `yaml:"mqtt"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig selects the SQL sink. An empty driver disables it. For
// MySQL either DSN or the individual fields may be given.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	User         string `yaml:"user"`
	PasswordFile string `yaml:"password_file"`
	Addr         string `yaml:"addr"`
	Name         string `yaml:"name"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// DefaultSignals is the stock capture plan. The same frequencies serve as the
// default classification targets.
var DefaultSignals = []models.Target{
	{Name: "ADS_B", Frequency: 1090e6},
	{Name: "NOAA_APT", Frequency: 137.62e6},
	{Name: "ISM_sensors", Frequency: 433.92e6},
	{Name: "FM_broadcast", Frequency: 98.7e6},
	{Name: "NOAA_weather", Frequency: 162.4e6},
	{Name: "pager", Frequency: 152.84e6},
	{Name: "APRS", Frequency: 144.39e6},
	{Name: "noise", Frequency: 145.0e6},
}

func Default() *Config {
	targets := make([]models.Target, len(DefaultSignals))
	for i, signal := range DefaultSignals {
		targets[i] = models.Target{Name: signal.Name, Frequency: signal.Frequency, Expected: signal.Name}
	}
	return &Config{
		RTLTCP: capture.RTLTCPConfig{
			Addr:       "127.0.0.1:1234",
			SampleRate: capture.DefaultSampleRate,
			GainDB:     capture.DefaultGainDB,
			Settle:     capture.DefaultSettle,
		},
		ModelPath:     "models/rtl_ml_model.json",
		DatasetDir:    "rtl_ml_data",
		DetectionsDir: "server",
		Session:       session.DefaultOptions(),
		Targets:       targets,
		CapturePlan:   append([]models.Target(nil), DefaultSignals...),
		Server:        ServerConfig{Addr: ":5000"},
		MQTT:          publish.MQTTConfig{TopicPrefix: "rtl_ml"},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path falls back to RTLML_CONFIG, and to the defaults alone when that
// is unset too.
func Load(path string) (*Config, error) {
	config := Default()
	if path == "" {
		path = utils.GetEnv("RTLML_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() {
	c.ModelPath = utils.GetEnv("RTLML_MODEL_PATH", c.ModelPath)
	c.DatasetDir = utils.GetEnv("RTLML_DATASET_DIR", c.DatasetDir)
	c.RTLTCP.Addr = utils.GetEnv("RTLML_RTLTCP_ADDR", c.RTLTCP.Addr)
	c.Server.Addr = utils.GetEnv("RTLML_SERVER_ADDR", c.Server.Addr)
	c.Database.Driver = utils.GetEnv("RTLML_DB_DRIVER", c.Database.Driver)
	c.Database.DSN = utils.GetEnv("RTLML_DB_DSN", c.Database.DSN)
	c.Mongo.URI = utils.GetEnv("RTLML_MONGO_URI", c.Mongo.URI)
	c.MQTT.Broker = utils.GetEnv("RTLML_MQTT_BROKER", c.MQTT.Broker)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Session.Duration <= 0 {
		errs = append(errs, errors.New("session.duration must be positive"))
	}
	if c.Session.ValidationDuration <= 0 {
		errs = append(errs, errors.New("session.validation_duration must be positive"))
	}
	if c.Session.SamplesPerClass < 1 {
		errs = append(errs, errors.New("session.samples_per_class must be at least 1"))
	}
	if c.RTLTCP.SampleRate <= 0 {
		errs = append(errs, errors.New("rtltcp.sample_rate must be positive"))
	}
	for i, t := range append(append([]models.Target(nil), c.Targets...), c.CapturePlan...) {
		if t.Name == "" || t.Frequency <= 0 {
			errs = append(errs, fmt.Errorf("target %d needs a name and a positive frequency", i))
		}
	}
	switch c.Database.Driver {
	case "", db.DriverSQLite, db.DriverMySQL:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not one of sqlite3, mysql", c.Database.Driver))
	}
	return errors.Join(errs...)
}

// DatabaseDSN returns the DSN for the configured SQL driver, building a MySQL
// DSN from the individual fields when none is given.
func (c *Config) DatabaseDSN() (string, error) {
	if c.Database.DSN != "" || c.Database.Driver != db.DriverMySQL {
		return c.Database.DSN, nil
	}
	password := ""
	if c.Database.PasswordFile != "" {
		pass, err := os.ReadFile(c.Database.PasswordFile)
		if err != nil {
			return "", fmt.Errorf("unable to read MySQL password file %q: %w", c.Database.PasswordFile, err)
		}
		password = strings.TrimSpace(string(pass))
	}
	addr := c.Database.Addr
	if addr == "" {
		addr = "127.0.0.1:3306"
	}
	name := c.Database.Name
	if name == "" {
		name = "rtl_ml"
	}
	return db.MySQLDSN(c.Database.User, password, addr, name), nil
}
