package config

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Astemirdum/bookhub/pkg/kafka"
	"github.com/Astemirdum/bookhub/pkg/logger"
	"github.com/Astemirdum/bookhub/pkg/mongodb"
	"github.com/Astemirdum/bookhub/pkg/postgres"
	jsoniter "github.com/json-iterator/go"
	"github.com/kelseyhightower/envconfig"
)

type HTTPServer struct {
	Host         string        `yaml:"host" envconfig:"HTTP_HOST" default:"0.0.0.0"`
	Port         string        `yaml:"port" envconfig:"PORT" default:"5000"`
	ReadTimeout  time.Duration `yaml:"readTimeout" envconfig:"HTTP_READ" default:"10s"`
	WriteTimeout time.Duration
}

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Store struct {
	Driver string `yaml:"driver" envconfig:"STORE_DRIVER" default:"mongo"`
}

type Borrow struct {
	// StrictReturn restores a copy on return only when a borrow record was removed.
	StrictReturn bool `yaml:"strictReturn" envconfig:"BORROW_STRICT_RETURN" default:"false"`
}

type CORS struct {
	AllowOrigins []string `yaml:"allowOrigins" envconfig:"CORS_ALLOW_ORIGINS" default:"http://localhost:5173,https://book-hub-library.surge.sh"`
}

type Config struct {
	Server   HTTPServer     `yaml:"server"`
	Store    Store          `yaml:"store"`
	Mongo    mongodb.Config `yaml:"mongo"`
	Database postgres.DB    `yaml:"db"`
	Kafka    kafka.Config   `yaml:"kafka"`
	Borrow   Borrow         `yaml:"borrow"`
	CORS     CORS           `yaml:"cors"`
	Log      logger.Log     `yaml:"log"`
}

var (
	once sync.Once
	cfg  Config
)

// NewConfig reads config from environment.
func NewConfig(ops ...Option) Config {
	once.Do(func() {
		config, err := load(ops...)
		if err != nil {
			log.Fatal("NewConfig ", err)
		}
		cfg = config
		printConfig(cfg)
	})

	return cfg
}

func load(ops ...Option) (Config, error) {
	var config Config
	for _, op := range ops {
		op(&config)
	}
	if err := envconfig.Process("", &config); err != nil {
		return Config{}, err
	}
	switch config.Store.Driver {
	case DriverMongo, DriverPostgres, DriverMemory:
	default:
		return Config{}, fmt.Errorf("STORE_DRIVER %q: want one of %s, %s, %s",
			config.Store.Driver, DriverMongo, DriverPostgres, DriverMemory)
	}
	return config, nil
}

func printConfig(cfg Config) {
	jscfg, _ := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(cfg, "", "	") //nolint:errcheck
	fmt.Println(string(jscfg))
}
