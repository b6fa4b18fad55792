package mongodb

import (
	"context"
	"fmt"
	"net/url"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Config struct {
	URI          string `yaml:"uri" envconfig:"MONGO_URI" json:"-"`
	User         string `yaml:"user" envconfig:"DB_USER"`
	Password     string `yaml:"password" envconfig:"DB_PASS" json:"-"`
	Host         string `yaml:"host" envconfig:"MONGO_HOST"`
	Database     string `yaml:"database" envconfig:"MONGO_DATABASE" default:"bookHubDB"`
	AppName      string `yaml:"appName" envconfig:"MONGO_APP_NAME" default:"bookhub"`
	Transactions bool   `yaml:"transactions" envconfig:"MONGO_TRANSACTIONS" default:"true"`
}

const localURI = "mongodb://localhost:27017"

// ConnectionURI returns URI when set, otherwise an Atlas style mongodb+srv URI
// assembled from the credentials and host. Without both it falls back to a local mongod.
func (c Config) ConnectionURI() string {
	if c.URI != "" {
		return c.URI
	}
	if c.Host == "" {
		return localURI
	}
	u := url.URL{
		Scheme: "mongodb+srv",
		Host:   c.Host,
		Path:   "/",
		RawQuery: url.Values{
			"retryWrites": []string{"true"},
			"w":           []string{"majority"},
			"appName":     []string{c.AppName},
		}.Encode(),
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	return u.String()
}

// NewClient connects with the stable API v1 in strict mode and pings the primary.
func NewClient(ctx context.Context, cfg Config) (*mongo.Client, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1).
		SetStrict(true).
		SetDeprecationErrors(true)
	opts := options.Client().
		ApplyURI(cfg.ConnectionURI()).
		SetAppName(cfg.AppName).
		SetServerAPIOptions(serverAPI).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping: %w", err)
	}
	return client, nil
}
