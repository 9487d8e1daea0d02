package clickhouse

import (
	"net/url"
	"strconv"
	"time"
)

// Option mutates the connection Config before the pool is opened.
type Option func(*Config)

// Config collects connection settings for a ClickHouse pool.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	// UseHTTP switches the driver from the native protocol to HTTP.
	UseHTTP bool

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	DialTimeout time.Duration
	ReadTimeout time.Duration
	// WriteTimeout has no clickhouse-go v2 DSN parameter.
	WriteTimeout time.Duration
	MaxExecTime  time.Duration

	AsyncInsert  bool
	WaitForAsync bool
}

func defaultConfig() *Config {
	return &Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
	}
}

// dsn renders the config as a clickhouse-go connection string.
func (c *Config) dsn() string {
	u := url.URL{
		Scheme: "clickhouse",
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   "/" + c.Database,
	}
	if c.UseHTTP {
		u.Scheme = "clickhouse+http"
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}

	q := url.Values{}
	if c.DialTimeout > 0 {
		q.Set("dial_timeout", c.DialTimeout.String())
	}
	if c.ReadTimeout > 0 {
		q.Set("read_timeout", c.ReadTimeout.String())
	}
	if c.MaxExecTime > 0 {
		// max_execution_time is a server-side setting in whole seconds.
		q.Set("max_execution_time", strconv.Itoa(int(c.MaxExecTime.Seconds())))
	}
	if c.AsyncInsert {
		q.Set("async_insert", "1")
		if c.WaitForAsync {
			q.Set("wait_for_async_insert", "1")
		}
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// WithHost sets the server host.
func WithHost(host string) Option {
	return func(c *Config) { c.Host = host }
}

// WithPort sets the server port.
func WithPort(port int) Option {
	return func(c *Config) { c.Port = port }
}

// WithDatabase sets the default database.
func WithDatabase(database string) Option {
	return func(c *Config) { c.Database = database }
}

// WithCredentials sets the user and password.
func WithCredentials(user, password string) Option {
	return func(c *Config) {
		c.User = user
		c.Password = password
	}
}

// WithMaxConnections bounds the pool size.
func WithMaxConnections(maxOpen, maxIdle int) Option {
	return func(c *Config) {
		c.MaxOpenConns = maxOpen
		c.MaxIdleConns = maxIdle
	}
}

// WithHTTP selects the HTTP protocol instead of native.
func WithHTTP(useHTTP bool) Option {
	return func(c *Config) { c.UseHTTP = useHTTP }
}

// WithAsyncInsert enables async_insert and whether inserts wait for the flush.
func WithAsyncInsert(enabled, wait bool) Option {
	return func(c *Config) {
		c.AsyncInsert = enabled
		c.WaitForAsync = wait
	}
}

// WithTimeouts sets dial, read and write timeouts.
func WithTimeouts(dial, read, write time.Duration) Option {
	return func(c *Config) {
		c.DialTimeout = dial
		c.ReadTimeout = read
		c.WriteTimeout = write
	}
}

// WithMaxExecutionTime caps per-query execution time.
func WithMaxExecutionTime(d time.Duration) Option {
	return func(c *Config) { c.MaxExecTime = d }
}
