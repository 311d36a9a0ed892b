package commands

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mosaicnetworks/ledgerclient/src/client"
	"github.com/mosaicnetworks/ledgerclient/src/config"
	"github.com/pkg/errors"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var (
	_config = config.NewDefaultConfig()

	configFile string
	logDir     string
)

func init() {
	flags := RootCmd.PersistentFlags()

	flags.String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	flags.StringVar(&configFile, "config", "", "Configuration file (default [datadir]/ledgerclient.toml)")
	flags.String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	flags.StringVar(&logDir, "log-dir", "", "Directory where logs are also written, one file per level")

	// Network
	flags.StringSlice("network", _config.Network, "Node endpoints as account@host:port")
	flags.StringSlice("mirror-network", _config.MirrorNetwork, "Mirror node endpoints as host:port")
	flags.Bool("tls", _config.TransportSecurity, "Use TLS on node channels")

	// Operator
	flags.String("operator-id", _config.OperatorID, "Account paying for queries")
	flags.String("operator-key", _config.OperatorKey, "Hex private key of the operator (default: read from [datadir]/priv_key)")

	// Requests
	flags.DurationP("timeout", "t", _config.RequestTimeout, "Overall timeout of a request")
	flags.Duration("grpc-deadline", _config.GRPCDeadline, "Timeout of a single call to a node")
	flags.Int("max-attempts", _config.MaxAttempts, "Attempts before a request fails")
	flags.Duration("min-backoff", _config.MinBackoff, "Initial delay between attempts")
	flags.Duration("max-backoff", _config.MaxBackoff, "Maximum delay between attempts")
	flags.Float64("max-query-payment", _config.MaxQueryPayment, "Maximum hbar a query may cost")

	// Address book
	flags.Bool("address-book-cache", _config.AddressBookCache, "Cache the address book in a badger database")
	flags.String("db", _config.DatabaseDir, "Database directory")
	flags.Duration("network-update-period", _config.NetworkUpdatePeriod, "Period of the address book refresh, 0 to disable")
}

//RootCmd is the root command for ledgerctl
var RootCmd = &cobra.Command{
	Use:               "ledgerctl",
	Short:             "ledger network client",
	TraverseChildren:  true,
	PersistentPreRunE: loadConfig,
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

func loadConfig(cmd *cobra.Command, args []string) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	}

	conf, err := config.Load(viper.GetViper(), viper.GetString("datadir"))
	if err != nil {
		return err
	}
	_config = conf

	logger, err := newLogger(_config.LogLevel, logDir)
	if err != nil {
		return err
	}
	_config.SetLogger(logger)

	_config.Logger().WithFields(logrus.Fields{
		"DataDir":             _config.DataDir,
		"Network":             _config.Network,
		"MirrorNetwork":       _config.MirrorNetwork,
		"OperatorID":          _config.OperatorID,
		"RequestTimeout":      _config.RequestTimeout,
		"GRPCDeadline":        _config.GRPCDeadline,
		"MaxAttempts":         _config.MaxAttempts,
		"MaxQueryPayment":     _config.MaxQueryPayment,
		"AddressBookCache":    _config.AddressBookCache,
		"NetworkUpdatePeriod": _config.NetworkUpdatePeriod,
		"LogLevel":            _config.LogLevel,
		"LogDir":              logDir,
	}).Debug("Config")

	return nil
}

// newLogger creates the CLI logger. With a log directory, every level is
// also written to its own file.
func newLogger(level string, dir string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.Level = config.LogLevel(level)
	logger.Formatter = new(prefixed.TextFormatter)

	if dir == "" {
		return logger, nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "creating log directory")
	}

	pathMap := lfshook.PathMap{}
	for _, l := range logrus.AllLevels {
		pathMap[l] = filepath.Join(dir, l.String()+".log")
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))

	return logger, nil
}

/*******************************************************************************
* HELPERS
*******************************************************************************/

func newClient() (*client.Client, error) {
	c, err := client.FromConfig(_config)
	if err != nil {
		return nil, errors.Wrap(err, "creating client")
	}
	return c, nil
}

// interruptible returns a context cancelled on SIGINT or SIGTERM.
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
