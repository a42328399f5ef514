// Package config provides functionality for managing configuration options
// for the PermKeeper binaries using command-line flags, an optional JSON
// file and environment variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/atinyakov/PermKeeper/internal/client/storage"
	"github.com/atinyakov/PermKeeper/internal/models"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. PERMKEEPER_SHARED_SECRET.
const EnvPrefix = "PERMKEEPER"

// Duration is a time.Duration that reads "10s"-style strings from JSON and
// the environment.
type Duration time.Duration

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return d.Decode(s)
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid duration %s", b)
	}
	*d = Duration(n)
	return nil
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	v, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Options holds the configuration values shared by cmd/gate and cmd/client.
// Field names map to PERMKEEPER_<SNAKE_CASE> variables.
type Options struct {
	// Addr is the gate's listening address (ip:port).
	Addr string `json:"addr" split_words:"true"`

	// BackendURL is the base URL of the permissions API.
	BackendURL string `json:"backend_url" split_words:"true"`

	// SharedSecret is the application-wide secret the cache key is derived
	// from. Required.
	SharedSecret string `json:"secret" split_words:"true"`

	// Cipher selects the AEAD suite.
	Cipher string `json:"cipher" split_words:"true"`

	// StorageDriver is one of file, memory or redis.
	StorageDriver string `json:"storage" split_words:"true"`
	StorageDir    string `json:"storage_dir" split_words:"true"`
	RedisAddr     string `json:"redis_addr" split_words:"true"`
	RedisPrefix   string `json:"redis_prefix" split_words:"true"`

	SuperAdminID   string   `json:"super_admin_id" split_words:"true"`
	RefreshTimeout Duration `json:"refresh_timeout" split_words:"true"`

	// Token is an optional bearer token used until a session is posted.
	Token string `json:"token" split_words:"true"`

	CertFile string `json:"cert_file" split_words:"true"`
	KeyFile  string `json:"key_file" split_words:"true"`
	CAFile   string `json:"ca_file" split_words:"true"`

	LogLevel string `json:"log_level" split_words:"true"`

	// Config is the path to the JSON config file.
	Config string `json:"-" ignored:"true"`
}

// Timeout returns RefreshTimeout as a time.Duration.
func (o *Options) Timeout() time.Duration {
	return time.Duration(o.RefreshTimeout)
}

func (o *Options) bind(fs *flag.FlagSet) {
	fs.StringVar(&o.Addr, "a", "localhost:8080", "run on ip:port server")
	fs.StringVar(&o.BackendURL, "b", "http://localhost:8000", "permissions API base URL")
	fs.StringVar(&o.SharedSecret, "s", "", "shared secret for the permission cache")
	fs.StringVar(&o.Cipher, "cipher", string(storage.SuiteAESGCM), "cache cipher suite")
	fs.StringVar(&o.StorageDriver, "storage", string(storage.DriverFile), "storage driver: file, memory or redis")
	fs.StringVar(&o.StorageDir, "dir", ".permkeeper", "directory for the file storage driver")
	fs.StringVar(&o.RedisAddr, "redis", "localhost:6379", "redis address for the redis storage driver")
	fs.StringVar(&o.RedisPrefix, "redis-prefix", "permkeeper", "redis key prefix")
	fs.StringVar(&o.SuperAdminID, "super-admin", models.DefaultSuperAdminID, "user id treated as super admin when the API omits the flag")
	fs.DurationVar((*time.Duration)(&o.RefreshTimeout), "timeout", 10*time.Second, "bound for one permission refresh")
	fs.StringVar(&o.Token, "t", "", "bearer token for the permissions API")
	fs.StringVar(&o.CertFile, "cert", "", "client certificate for mTLS")
	fs.StringVar(&o.KeyFile, "key", "", "client key for mTLS")
	fs.StringVar(&o.CAFile, "ca", "", "CA certificate for the permissions API")
	fs.StringVar(&o.LogLevel, "l", "info", "log level")
	fs.StringVar(&o.Config, "config", "config.json", "path to config file")
	fs.StringVar(&o.Config, "c", "config.json", "path to config file (shorthand)")
}

// Load builds Options from args. Flags provide the defaults, the JSON file
// (if it exists) overrides them and PERMKEEPER_* variables override both.
func Load(name string, args []string) (*Options, error) {
	o := &Options{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	o.bind(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if configPath := os.Getenv("CONFIG"); configPath != "" {
		o.Config = configPath
	}

	if o.Config != "" {
		if _, err := os.Stat(o.Config); err == nil {
			data, err := os.ReadFile(o.Config)
			if err != nil {
				return nil, fmt.Errorf("error while reading config file: %w", err)
			}
			if err := json.Unmarshal(data, o); err != nil {
				return nil, fmt.Errorf("error while parsing config file: %w", err)
			}
		}
	}

	if err := envconfig.Process(EnvPrefix, o); err != nil {
		return nil, fmt.Errorf("error while reading environment: %w", err)
	}

	return o, o.Validate()
}

// Parse loads Options from os.Args and exits on error.
func Parse() *Options {
	o, err := Load(os.Args[0], os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return o
}

// Validate rejects configurations the binaries cannot start with.
func (o *Options) Validate() error {
	var errs []error
	if o.SharedSecret == "" {
		errs = append(errs, errors.New("shared secret must be provided"))
	}
	if _, err := storage.ParseSuite(o.Cipher); err != nil {
		errs = append(errs, err)
	}
	switch storage.Driver(o.StorageDriver) {
	case storage.DriverFile, storage.DriverMemory, storage.DriverRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", o.StorageDriver))
	}
	if (o.CertFile == "") != (o.KeyFile == "") {
		errs = append(errs, errors.New("cert and key must be set together"))
	}
	if o.RefreshTimeout <= 0 {
		errs = append(errs, errors.New("refresh timeout must be positive"))
	}
	return errors.Join(errs...)
}

// StorageOptions maps the storage settings onto storage.Options.
func (o *Options) StorageOptions() storage.Options {
	return storage.Options{
		Driver:      storage.Driver(o.StorageDriver),
		Dir:         o.StorageDir,
		RedisAddr:   o.RedisAddr,
		RedisPrefix: o.RedisPrefix,
	}
}
