package database

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Supported database drivers
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

const (
	defaultMySQLPort     = 3306
	defaultTimeout       = 30 * time.Second
	defaultSQLiteBusyMS  = 5000
	defaultSQLiteDBPath  = "./gym.db"
	sqliteMemoryFilename = ":memory:"
)

// DatabaseConfig holds the connection parameters of the destination store
type DatabaseConfig struct {
	Driver   string        `mapstructure:"driver" yaml:"driver"`
	Host     string        `mapstructure:"host" yaml:"host"`
	Port     int           `mapstructure:"port" yaml:"port"`
	Username string        `mapstructure:"username" yaml:"username"`
	Password string        `mapstructure:"password" yaml:"password"`
	Database string        `mapstructure:"database" yaml:"database"`
	Path     string        `mapstructure:"path" yaml:"path"` // sqlite3 database file
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SetDefaults fills the driver, port and timeout when they are unset
func (dc *DatabaseConfig) SetDefaults() {
	dc.Driver = strings.ToLower(strings.TrimSpace(dc.Driver))
	switch dc.Driver {
	case "":
		// A configured host implies a server
		if dc.Host != "" {
			dc.Driver = DriverMySQL
		} else {
			dc.Driver = DriverSQLite
		}
	case "sqlite":
		dc.Driver = DriverSQLite
	}

	switch dc.Driver {
	case DriverMySQL:
		if dc.Port == 0 {
			dc.Port = defaultMySQLPort
		}
	case DriverSQLite:
		if dc.Path == "" {
			dc.Path = defaultSQLiteDBPath
		}
	}

	if dc.Timeout <= 0 {
		dc.Timeout = defaultTimeout
	}
}

// Validate checks if the database configuration has all required parameters
func (dc *DatabaseConfig) Validate() error {
	var errs []error

	switch dc.Driver {
	case DriverMySQL:
		if dc.Host == "" {
			errs = append(errs, errors.New("host is required"))
		}
		if dc.Port <= 0 || dc.Port > 65535 {
			errs = append(errs, errors.New("port must be between 1 and 65535"))
		}
		if dc.Username == "" {
			errs = append(errs, errors.New("username is required"))
		}
		if dc.Database == "" {
			errs = append(errs, errors.New("database name is required"))
		}
	case DriverSQLite:
		if dc.Path == "" {
			errs = append(errs, errors.New("path is required for sqlite3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported driver %q (use mysql or sqlite3)", dc.Driver))
	}

	if dc.Timeout < 0 {
		errs = append(errs, errors.New("timeout cannot be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("database configuration validation failed: %v", errs)
	}

	return nil
}

// DSN returns the data source name for the configured driver
func (dc *DatabaseConfig) DSN() string {
	if dc.Driver == DriverSQLite {
		return sqliteDSN(dc.Path, dc.Timeout)
	}

	cfg := mysql.NewConfig()
	cfg.User = dc.Username
	cfg.Passwd = dc.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(dc.Host, strconv.Itoa(dc.Port))
	cfg.DBName = dc.Database
	cfg.Timeout = dc.Timeout
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// Target describes the database for logs without credentials
func (dc *DatabaseConfig) Target() string {
	if dc.Driver == DriverSQLite {
		return dc.Path
	}
	return fmt.Sprintf("%s:%d/%s", dc.Host, dc.Port, dc.Database)
}

// sqliteDSN enables foreign keys on every connection and waits on a locked
// file instead of failing straight away.
func sqliteDSN(path string, timeout time.Duration) string {
	busy := defaultSQLiteBusyMS
	if timeout > 0 {
		busy = int(timeout / time.Millisecond)
	}

	params := url.Values{}
	params.Set("_foreign_keys", "1")
	params.Set("_busy_timeout", strconv.Itoa(busy))

	if path == sqliteMemoryFilename {
		params.Set("cache", "shared")
		return "file::memory:?" + params.Encode()
	}
	return "file:" + path + "?" + params.Encode()
}
