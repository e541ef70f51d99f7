package mssql

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/config"
)

// Config contains SQL Server connection options (SQL authentication).
type Config struct {
	Host                   string
	Port                   int
	Database               string
	Username               string
	Password               string
	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// FromDatasource builds a Config from a connection registry entry. ssl_mode
// "disable" turns encryption off; "trust" encrypts without verifying the certificate.
func FromDatasource(ds config.DatasourceConfig) (*Config, error) {
	if ds.Host == "" {
		return nil, fmt.Errorf("datasource %s: host is required", ds.ID)
	}
	if ds.Database == "" {
		return nil, fmt.Errorf("datasource %s: database is required", ds.ID)
	}

	cfg := &Config{
		Host:              ds.Host,
		Port:              ds.Port,
		Database:          ds.Database,
		Username:          ds.User,
		Password:          ds.Password(),
		Encrypt:           true,
		ConnectionTimeout: 30,
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort()
	}
	switch ds.SSLMode {
	case "disable":
		cfg.Encrypt = false
	case "trust":
		cfg.TrustServerCertificate = true
	}
	return cfg, nil
}

// ConnectionString returns a sqlserver:// URL. ApplicationIntent=ReadOnly
// routes the session to a readable secondary when one exists.
func (c *Config) ConnectionString() string {
	query := url.Values{}
	query.Add("database", c.Database)
	query.Add("encrypt", strconv.FormatBool(c.Encrypt))
	if c.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if c.ConnectionTimeout > 0 {
		query.Add("connection timeout", strconv.Itoa(c.ConnectionTimeout))
	}
	query.Add("ApplicationIntent", "ReadOnly")
	query.Add("app name", "ekaya-dictionary")

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		RawQuery: query.Encode(),
	}
	return u.String()
}
