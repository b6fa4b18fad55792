package postgres

import (
	"context"
	"embed"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type DB struct {
	Host     string `yaml:"host" envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `yaml:"port" envconfig:"POSTGRES_PORT" default:"5432"`
	Username string `yaml:"user" envconfig:"POSTGRES_USER" default:"postgres"`
	Password string `yaml:"password" envconfig:"POSTGRES_PASSWORD" json:"-"`
	NameDB   string `yaml:"dbname" envconfig:"POSTGRES_DB" default:"bookhub"`
	SSLMode  string `yaml:"sslmode" envconfig:"POSTGRES_SSLMODE" default:"disable"`
	MaxConns int32  `yaml:"maxConns" envconfig:"POSTGRES_MAX_CONNS" default:"10"`
}

func (db *DB) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(db.Username, db.Password),
		Host:     net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:     db.NameDB,
		RawQuery: url.Values{"sslmode": []string{db.SSLMode}}.Encode(),
	}
	return u.String()
}

const (
	MigrateUp     = "up"
	MigrateDown   = "down"
	MigrateStatus = "status"
)

// NewPostgresDB opens a pool, checks connectivity and applies all pending migrations.
func NewPostgresDB(ctx context.Context, cfg *DB, migrations embed.FS) (*pgxpool.Pool, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(pool, migrations, MigrateUp); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func Connect(ctx context.Context, cfg *DB) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("pgxpool.ParseConfig: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Migrate runs a goose command (up, down, status) over the embedded *.sql files.
func Migrate(pool *pgxpool.Pool, migrations embed.FS, command string) error {
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	var err error
	switch command {
	case MigrateUp:
		err = goose.Up(db, ".")
	case MigrateDown:
		err = goose.Down(db, ".")
	case MigrateStatus:
		err = goose.Status(db, ".")
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
	if err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}
