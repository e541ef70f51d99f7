package postgres

import (
	"fmt"
	"net/url"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/config"
)

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// FromDatasource builds a Config from a connection registry entry.
func FromDatasource(ds config.DatasourceConfig) (*Config, error) {
	if ds.Host == "" {
		return nil, fmt.Errorf("datasource %s: host is required", ds.ID)
	}
	if ds.Database == "" {
		return nil, fmt.Errorf("datasource %s: database is required", ds.ID)
	}

	cfg := &Config{
		Host:     ds.Host,
		Port:     ds.Port,
		User:     ds.User,
		Password: ds.Password(),
		Database: ds.Database,
		SSLMode:  ds.SSLMode,
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort()
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "require"
	}
	return cfg, nil
}

// ConnectionString returns a postgresql:// URL for pgxpool.
func (c *Config) ConnectionString() string {
	u := &url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
