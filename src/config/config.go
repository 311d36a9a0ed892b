package config

import (
	"crypto/ecdsa"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/mosaicnetworks/ledgerclient/src/common"
	"github.com/mosaicnetworks/ledgerclient/src/crypto/keys"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/net"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the operator's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database that caches the address book
	DefaultBadgerFile = "badger_db"

	// DefaultAddressBookFile is the default name of the JSON address book.
	DefaultAddressBookFile = "address_book.json"

	// DefaultConfigName is the base name of the configuration file read by
	// Load.
	DefaultConfigName = "ledgerclient"
)

// Default configuration values.
const (
	DefaultLogLevel            = "debug"
	DefaultServiceAddr         = "127.0.0.1:8000"
	DefaultMaxAttempts         = 10
	DefaultMinBackoff          = 250 * time.Millisecond
	DefaultMaxBackoff          = 8 * time.Second
	DefaultMinNodeBackoff      = 8 * time.Second
	DefaultMaxNodeBackoff      = time.Hour
	DefaultRequestTimeout      = 2 * time.Minute
	DefaultGRPCDeadline        = 10 * time.Second
	DefaultCloseTimeout        = 30 * time.Second
	DefaultMaxQueryPayment     = 1.0
	DefaultMaxNodesPerRequest  = 0
	DefaultTransportSecurity   = false
	DefaultVerifyCertificates  = true
	DefaultValidateChecksums   = false
	DefaultAddressBookCache    = false
	DefaultNetworkUpdatePeriod = 24 * time.Hour
	DefaultWorkerPoolSize      = 16
)

// Config contains all the configuration properties of a ledger client.
type Config struct {
	// DataDir is the top-level directory containing the operator key, the
	// JSON address book and the address-book cache.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// Network lists node endpoints with the account id of the node they
	// serve, as account@host:port, eg. "0.0.3@35.237.200.180:50211". Several
	// endpoints may serve the same account.
	Network []string `mapstructure:"network"`

	// MirrorNetwork lists the mirror node endpoints used for the address book
	// and for topic subscriptions.
	MirrorNetwork []string `mapstructure:"mirror-network"`

	// OperatorID is the account that pays for transactions and queries.
	OperatorID string `mapstructure:"operator-id"`

	// OperatorKey is the hex encoded private key of the operator. When empty,
	// the key is read from the keyfile in DataDir, if there is one.
	OperatorKey string `mapstructure:"operator-key"`

	// MaxAttempts is the number of attempts a request may make before it
	// fails.
	MaxAttempts int `mapstructure:"max-attempts"`

	// MinBackoff and MaxBackoff bound the delay between retries of a request.
	// The delay doubles with every attempt.
	MinBackoff time.Duration `mapstructure:"min-backoff"`
	MaxBackoff time.Duration `mapstructure:"max-backoff"`

	// MinNodeBackoff and MaxNodeBackoff bound how long a node that failed is
	// left alone. The backoff doubles with every failure and is reset by a
	// success.
	MinNodeBackoff time.Duration `mapstructure:"min-node-backoff"`
	MaxNodeBackoff time.Duration `mapstructure:"max-node-backoff"`

	// RequestTimeout is the overall timeout of a request, retries included.
	RequestTimeout time.Duration `mapstructure:"timeout"`

	// GRPCDeadline bounds every single call to a node.
	GRPCDeadline time.Duration `mapstructure:"grpc-deadline"`

	// CloseTimeout bounds how long closing the client, or nodes removed from
	// the network, may take.
	CloseTimeout time.Duration `mapstructure:"close-timeout"`

	// MaxQueryPayment is the maximum, in hbar, a query may cost without an
	// explicit payment.
	MaxQueryPayment float64 `mapstructure:"max-query-payment"`

	// MaxNodesPerRequest is the number of nodes a request without explicit
	// nodes is sent to. Zero means a third of the network.
	MaxNodesPerRequest int `mapstructure:"max-nodes-per-request"`

	// TransportSecurity enables TLS on node channels.
	TransportSecurity bool `mapstructure:"tls"`

	// VerifyCertificates checks node certificates against the hashes of the
	// address book. It only applies with TransportSecurity.
	VerifyCertificates bool `mapstructure:"verify-certificates"`

	// AutoValidateChecksums validates the entity ids of a request before it
	// is sent.
	AutoValidateChecksums bool `mapstructure:"validate-checksums"`

	// AddressBookCache persists the last address book in a Badger database in
	// DatabaseDir and loads it at start.
	AddressBookCache bool `mapstructure:"address-book-cache"`

	// DatabaseDir is the directory containing the Badger database files.
	DatabaseDir string `mapstructure:"db"`

	// NetworkUpdatePeriod is the period of the address-book refresh. Zero
	// disables it.
	NetworkUpdatePeriod time.Duration `mapstructure:"network-update-period"`

	// WorkerPoolSize bounds the number of asynchronous execution steps that
	// run at the same time.
	WorkerPoolSize int `mapstructure:"worker-pool-size"`

	// ServiceAddr is the address:port of the diagnostics HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// Dialer, when set, replaces the gRPC channels to nodes. Tests use it to
	// run clients against in-memory nodes.
	Dialer net.Dialer `mapstructure:"-"`

	// Key is the private key of the operator. It takes precedence over
	// OperatorKey and the keyfile.
	Key *ecdsa.PrivateKey `mapstructure:"-"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:               DefaultDataDir(),
		LogLevel:              DefaultLogLevel,
		MaxAttempts:           DefaultMaxAttempts,
		MinBackoff:            DefaultMinBackoff,
		MaxBackoff:            DefaultMaxBackoff,
		MinNodeBackoff:        DefaultMinNodeBackoff,
		MaxNodeBackoff:        DefaultMaxNodeBackoff,
		RequestTimeout:        DefaultRequestTimeout,
		GRPCDeadline:          DefaultGRPCDeadline,
		CloseTimeout:          DefaultCloseTimeout,
		MaxQueryPayment:       DefaultMaxQueryPayment,
		MaxNodesPerRequest:    DefaultMaxNodesPerRequest,
		TransportSecurity:     DefaultTransportSecurity,
		VerifyCertificates:    DefaultVerifyCertificates,
		AutoValidateChecksums: DefaultValidateChecksums,
		AddressBookCache:      DefaultAddressBookCache,
		DatabaseDir:           DefaultDatabaseDir(),
		NetworkUpdatePeriod:   DefaultNetworkUpdatePeriod,
		WorkerPoolSize:        DefaultWorkerPoolSize,
		ServiceAddr:           DefaultServiceAddr,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests. The periodic network update is disabled.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.DataDir = ""
	config.NetworkUpdatePeriod = 0
	config.logger = common.NewTestLogger(t, level)
	return config
}

// Load reads the configuration file of dataDir, if there is one, over the
// defaults. Values already bound in v, eg. command-line flags, take
// precedence. v may be nil.
func Load(v *viper.Viper, dataDir string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	config := NewDefaultConfig()
	if dataDir != "" {
		config.SetDataDir(dataDir)
	}

	v.SetConfigName(DefaultConfigName)
	v.AddConfigPath(config.DataDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}

	return config, config.Validate()
}

// Validate checks that the retry and backoff settings are consistent.
func (c *Config) Validate() error {
	if c.MaxAttempts < 1 {
		return errors.Errorf("max-attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.MinBackoff < 0 || c.MinBackoff > c.MaxBackoff {
		return errors.Errorf("min-backoff (%s) must be between 0 and max-backoff (%s)", c.MinBackoff, c.MaxBackoff)
	}
	if c.MinNodeBackoff <= 0 || c.MinNodeBackoff > c.MaxNodeBackoff {
		return errors.Errorf("min-node-backoff (%s) must be between 0 and max-node-backoff (%s)", c.MinNodeBackoff, c.MaxNodeBackoff)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.MaxQueryPayment < 0 {
		return errors.New("max-query-payment must not be negative")
	}
	if _, err := c.NodeNetwork(); err != nil {
		return err
	}
	return nil
}

// SetDataDir sets the top-level directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// AddressBookFile returns the full path of the JSON address book.
func (c *Config) AddressBookFile() string {
	return filepath.Join(c.DataDir, DefaultAddressBookFile)
}

// NodeNetwork parses Network into an address -> account id map.
func (c *Config) NodeNetwork() (map[string]ledger.AccountID, error) {
	res := make(map[string]ledger.AccountID, len(c.Network))
	for _, entry := range c.Network {
		i := strings.Index(entry, "@")
		if i < 0 {
			return nil, errors.Errorf("network entry %q is not account@host:port", entry)
		}
		id, err := ledger.AccountIDFromString(entry[:i])
		if err != nil {
			return nil, errors.Wrapf(err, "network entry %q", entry)
		}
		res[entry[i+1:]] = id
	}
	return res, nil
}

// SetNodeNetwork replaces Network with the entries of an address -> account
// id map.
func (c *Config) SetNodeNetwork(network map[string]ledger.AccountID) {
	entries := make([]string, 0, len(network))
	for addr, id := range network {
		entries = append(entries, id.String()+"@"+addr)
	}
	sort.Strings(entries)
	c.Network = entries
}

// Operator returns the operator account and key. ok is false when no
// operator is configured.
func (c *Config) Operator() (id ledger.AccountID, key *ecdsa.PrivateKey, ok bool, err error) {
	if c.OperatorID == "" {
		return id, nil, false, nil
	}

	id, err = ledger.AccountIDFromString(c.OperatorID)
	if err != nil {
		return id, nil, false, errors.Wrap(err, "operator-id")
	}

	switch {
	case c.Key != nil:
		key = c.Key
	case c.OperatorKey != "":
		key, err = keys.PrivateKeyFromHex(c.OperatorKey)
		if err != nil {
			return id, nil, false, errors.Wrap(err, "operator-key")
		}
	case c.DataDir != "":
		key, err = keys.NewKeyfile(c.Keyfile()).ReadKey()
		if err != nil {
			return id, nil, false, errors.Wrap(err, "reading operator key")
		}
	default:
		return id, nil, false, errors.New("operator-id is set without a key")
	}

	return id, key, true, nil
}

// MaxQueryPaymentHbar ...
func (c *Config) MaxQueryPaymentHbar() ledger.Hbar {
	return ledger.NewHbar(c.MaxQueryPayment)
}

// Logger returns a formatted logrus Entry, with prefix set to "ledgerclient".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "ledgerclient")
}

// SetLogger replaces the logger returned by Logger.
func (c *Config) SetLogger(logger *logrus.Logger) {
	c.logger = logger
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".LedgerClient")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "LedgerClient")
		} else {
			return filepath.Join(home, ".ledgerclient")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
