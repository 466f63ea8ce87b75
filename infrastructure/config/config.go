package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/treegraph/tgraphd/version"
)

const (
	defaultConfigFilename = "tgraphd.conf"
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	// DefaultLogFilename is the name of the main log file
	DefaultLogFilename = "tgraphd.log"
	// DefaultErrLogFilename is the name of the log file for warnings and errors
	DefaultErrLogFilename = "tgraphd_err.log"
)

var (
	// DefaultAppDir is the default home directory for tgraphd.
	DefaultAppDir = defaultAppDir()

	defaultConfigFile = filepath.Join(DefaultAppDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(DefaultAppDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(DefaultAppDir, defaultLogDirname)
)

// Flags defines the configuration options for tgraphd.
//
// See loadConfig for details on the configuration load process.
type Flags struct {
	ShowVersion          bool          `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile           string        `short:"C" long:"configfile" description:"Path to configuration file"`
	AppDir               string        `short:"b" long:"appdir" description:"Directory to store data"`
	LogDir               string        `long:"logdir" description:"Directory to log output."`
	DebugLevel           string        `short:"d" long:"loglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	ValidatorSetFile     string        `long:"validatorset" description:"YAML file listing the validator set of every range of finality rounds"`
	ValidatorKeyFile     string        `long:"validatorkey" description:"File holding the hex-encoded private key of this validator -- Leave empty to follow finality without voting"`
	FinalityRoundTimeout time.Duration `long:"finalityroundtimeout" description:"How long a finality round waits for a quorum before timing out. Overrides the network default. Valid time units are {ms, s, m}"`
	NetworkFlags
}

// Config defines the configuration options for tgraphd, after they were
// parsed and validated
type Config struct {
	*Flags
	DataDir string
}

func defaultAppDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".tgraphd"
	}
	return filepath.Join(homeDir, ".tgraphd")
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(DefaultAppDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	return filepath.Clean(os.ExpandEnv(path))
}

func defaultFlags() *Flags {
	return &Flags{
		ConfigFile: defaultConfigFile,
		DebugLevel: defaultLogLevel,
		AppDir:     defaultDataDir,
		LogDir:     defaultLogDir,
	}
}

// LoadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in tgraphd functioning properly without any config settings
// while still allowing the user to override settings with config files and
// command line options. Command line options always take precedence.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	cfgFlags := defaultFlags()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := *cfgFlags
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if ok := errors.As(err, &flagsErr); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			return nil, err
		}
	}

	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version.Version())
		os.Exit(0)
	}

	parser := flags.NewParser(cfgFlags, flags.Default)
	if _, err := os.Stat(preCfg.ConfigFile); err == nil {
		err := flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %s\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, errors.WithStack(err)
		}
	} else if preCfg.ConfigFile != defaultConfigFile {
		return nil, errors.Errorf("config file %s does not exist", preCfg.ConfigFile)
	}

	// Parse command line options again to ensure they take precedence.
	_, err = parser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if ok := errors.As(err, &flagsErr); !ok || flagsErr.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, errors.WithStack(err)
	}

	cfg := &Config{Flags: cfgFlags}
	err = cfg.ResolveNetwork(parser)
	if err != nil {
		return nil, err
	}

	// Namespace the data and log directories per network
	cfg.AppDir = cleanAndExpandPath(cfg.AppDir)
	cfg.DataDir = filepath.Join(cfg.AppDir, cfg.NetParams().Name)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.LogDir = filepath.Join(cfg.LogDir, cfg.NetParams().Name)

	if cfg.FinalityRoundTimeout != 0 {
		if cfg.FinalityRoundTimeout < 100*time.Millisecond {
			return nil, errors.Errorf("the finality round timeout may not be less than 100ms -- parsed [%s]",
				cfg.FinalityRoundTimeout)
		}
		cfg.NetParams().FinalityRoundTimeout = cfg.FinalityRoundTimeout
	}

	if cfg.ValidatorKeyFile != "" && cfg.ValidatorSetFile == "" {
		return nil, errors.Errorf("--validatorkey requires --validatorset")
	}
	if cfg.ValidatorSetFile != "" {
		cfg.ValidatorSetFile = cleanAndExpandPath(cfg.ValidatorSetFile)
		if _, err := os.Stat(cfg.ValidatorSetFile); err != nil {
			return nil, errors.Wrapf(err, "cannot read the validator set file")
		}
	}
	if cfg.ValidatorKeyFile != "" {
		cfg.ValidatorKeyFile = cleanAndExpandPath(cfg.ValidatorKeyFile)
	}

	return cfg, nil
}
