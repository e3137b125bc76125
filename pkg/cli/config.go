/*
Package cli facilitates building command-line applications that scan for beacons and scales. It
defines a [Config] type that can be used to register common command-line flags (using the Golang
flag package), environment variable equivalents, and a YAML configuration file.

The package uses [keyring]'s platform-agnostic interface for storing the NATS authentication token
in an OS-dependent credential store.

# Examples

	config, err := NewConfig(FlagScan | FlagNATS)
	if err != nil {
		panic(err)
	}
	config.RegisterCommandLineFlags() // Adds command-line flags for the host filter, adapter, etc.
	flag.Parse()
	config.ReadFromEnvironment()      // Fills in missing fields using environment variables
	if err := config.LoadFile(); err != nil { // Fills in remaining fields from $BEACON_CONFIG
		panic(err)
	}
	if err := config.Validate(); err != nil {
		panic(err)
	}

	scanner, err := config.Scanner()
	weights, closeSink, err := config.WeightSink()

Precedence is command line, then environment, then configuration file: each source only fills
fields that are still unset.
*/
package cli

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/99designs/keyring"
	"gopkg.in/yaml.v3"

	"github.com/divertsy/beacon-scanner/internal/log"
	"github.com/divertsy/beacon-scanner/pkg/connector"
	"github.com/divertsy/beacon-scanner/pkg/connector/ble"
	"github.com/divertsy/beacon-scanner/pkg/connector/ble/tinygo"
	"github.com/divertsy/beacon-scanner/pkg/sink"
	"github.com/divertsy/beacon-scanner/pkg/streams"
	"github.com/divertsy/beacon-scanner/pkg/tracker"
)

// Backend selects the Bluetooth stack used for scanning.
type Backend string

const (
	BackendBLE    Backend = "ble"
	BackendTinyGo Backend = "tinygo"
)

var BackendNames = []Backend{BackendBLE, BackendTinyGo}

// Set updates a Backend from a command-line argument.
func (b *Backend) Set(value string) error {
	canonicalName := Backend(strings.ToLower(value))
	for _, name := range BackendNames {
		if name == canonicalName {
			*b = name
			return nil
		}
	}
	return fmt.Errorf("unknown bluetooth backend '%s'", value)
}

func (b *Backend) String() string {
	return string(*b)
}

// Environment variable names used are used by [Config.ReadFromEnvironment] to set common parameters.
const (
	EnvBeaconHostFilter      = "BEACON_HOST_FILTER"
	EnvBeaconTimeout         = "BEACON_TIMEOUT"
	EnvBeaconBtAdapter       = "BEACON_BT_ADAPTER"
	EnvBeaconBackend         = "BEACON_BACKEND"
	EnvBeaconNATSURL         = "BEACON_NATS_URL"
	EnvBeaconNATSSubject     = "BEACON_NATS_SUBJECT"
	EnvBeaconNATSTokenName   = "BEACON_NATS_TOKEN_NAME"
	EnvBeaconNATSTokenFile   = "BEACON_NATS_TOKEN_FILE"
	EnvBeaconStreamsURL      = "BEACON_STREAMS_URL"
	EnvBeaconStreamsDir      = "BEACON_STREAMS_DIR"
	EnvBeaconStreamsSchedule = "BEACON_STREAMS_SCHEDULE"
	EnvBeaconConfig          = "BEACON_CONFIG"
	EnvBeaconVerbose         = "BEACON_VERBOSE"
	EnvBeaconKeyringType     = "BEACON_KEYRING_TYPE"
	EnvBeaconKeyringPass     = "BEACON_KEYRING_PASSWORD"
	EnvBeaconKeyringPath     = "BEACON_KEYRING_PATH"
)

// Flag controls what options should be scanned from the command line and/or environment variables.
type Flag int

func (f Flag) isSet(other Flag) bool {
	return (f & other) == other
}

const (
	FlagScan    Flag = 1 // Enable scanning and tracking options.
	FlagNATS    Flag = 2 // Enable options for publishing weights to NATS.
	FlagStreams Flag = 4 // Enable options for downloading waste-stream definitions.
	FlagAll     Flag = FlagScan | FlagNATS | FlagStreams
)

var (
	ErrNoHostFilter  = errors.New("location host filter not provided")
	ErrNoStreamsURL  = errors.New("waste-streams URL not provided")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config fields determine how beacons are scanned and where results are sent.
type Config struct {
	Flags Flag `yaml:"-"` // Controls which set of environment variables/CLI flags to use.

	HostFilter  string        `yaml:"host_filter"`
	Timeout     time.Duration `yaml:"timeout"`
	BtAdapterID string        `yaml:"bt_adapter"`
	Backend     Backend       `yaml:"backend"`

	NATSURL       string `yaml:"nats_url"`
	NATSSubject   string `yaml:"nats_subject"`
	NATSTokenName string `yaml:"nats_token_name"` // Name of the NATS token in the system keyring
	NATSTokenFile string `yaml:"nats_token_file"`

	StreamsURL      string `yaml:"streams_url"`
	StreamsDir      string `yaml:"streams_dir"`
	StreamsSchedule string `yaml:"streams_schedule"`

	ConfigFile string `yaml:"-"`
	Debug      bool   `yaml:"debug"`

	Keyring     keyring.Config `yaml:"-"`
	KeyringType backendType    `yaml:"-"`

	password  *string
	natsToken string
}

func NewConfig(flags Flag) (*Config, error) {
	c := Config{
		Flags: flags,
		Keyring: keyring.Config{
			ServiceName:              keyringServiceName,
			KeychainTrustApplication: true,
			KeyCtlScope:              "user",
		},
	}
	c.KeyringType = backendType{&c}
	c.Keyring.KeychainPasswordFunc = c.getPassword
	c.Keyring.FilePasswordFunc = c.getPassword
	return &c, nil
}

func (c *Config) RegisterCommandLineFlags() {
	flag.StringVar(&c.ConfigFile, "config", "", "YAML configuration `file`. Defaults to $BEACON_CONFIG.")
	flag.BoolVar(&c.Debug, "debug", false, "Enable verbose debugging messages. Defaults to $BEACON_VERBOSE.")
	if c.Flags.isSet(FlagScan) {
		flag.StringVar(&c.HostFilter, "host", "", "Only beacons whose URL `host` matches are locations. Defaults to $BEACON_HOST_FILTER.")
		flag.DurationVar(&c.Timeout, "timeout", 0, "Forget beacons not seen within `duration`. Defaults to $BEACON_TIMEOUT or 5s.")
		names := make([]string, len(BackendNames))
		for i, name := range BackendNames {
			names[i] = string(name)
		}
		flag.Var(&c.Backend, "backend", "Bluetooth `stack` ("+strings.Join(names, "|")+"). Defaults to $BEACON_BACKEND or ble.")
		c.registerCommandLineFlagsOsSpecific()
	}
	if c.Flags.isSet(FlagNATS) {
		flag.StringVar(&c.NATSURL, "nats", "", "Publish weights to the NATS server at `url`. Defaults to $BEACON_NATS_URL.")
		flag.StringVar(&c.NATSSubject, "nats-subject", "", "NATS `subject` for weights. Defaults to $BEACON_NATS_SUBJECT or "+sink.DefaultSubject+".")
		flag.StringVar(&c.NATSTokenName, "nats-token-name", "", "System keyring `name` for the NATS token. Defaults to $BEACON_NATS_TOKEN_NAME.")
		flag.StringVar(&c.NATSTokenFile, "nats-token-file", "", "`File` containing the NATS token. Defaults to $BEACON_NATS_TOKEN_FILE.")

		var names []string
		for _, name := range keyring.AvailableBackends() {
			names = append(names, string(name))
		}
		sort.Strings(names)
		flag.Var(&c.KeyringType, "keyring-type", "Keyring `type` ("+strings.Join(names, "|")+"). Defaults to $BEACON_KEYRING_TYPE.")
		flag.StringVar(&c.Keyring.FileDir, "keyring-file-dir", keyringDirectory, "keyring `directory` for file-backed keyring types")
	}
	if c.Flags.isSet(FlagStreams) {
		flag.StringVar(&c.StreamsURL, "streams", "", "Download waste-stream definitions from `url`. Defaults to $BEACON_STREAMS_URL.")
		flag.StringVar(&c.StreamsDir, "streams-dir", "", "Store waste-stream definitions in `directory`. Defaults to $BEACON_STREAMS_DIR.")
		flag.StringVar(&c.StreamsSchedule, "streams-schedule", "", "Refresh waste-stream definitions on a cron `schedule`. Defaults to $BEACON_STREAMS_SCHEDULE.")
	}
}

// parseTimeout accepts a Go duration ("5s") or a whole number of milliseconds.
func parseTimeout(value string) (time.Duration, error) {
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(value)
}

// ReadFromEnvironment populates c using environment variables. Values that are already populated
// are not overwritten.
//
// Calling ReadFromEnvironment after flag.Parse() (or other initialization method) will prevent the
// environment from overriding explicit command-line parameters and avoid potentially misleading
// debug log messages.
func (c *Config) ReadFromEnvironment() {
	if c.ConfigFile == "" {
		c.ConfigFile = os.Getenv(EnvBeaconConfig)
	}
	if !c.Debug {
		_, c.Debug = os.LookupEnv(EnvBeaconVerbose)
	}
	if c.Flags.isSet(FlagScan) {
		if c.HostFilter == "" {
			c.HostFilter = os.Getenv(EnvBeaconHostFilter)
			log.Debug("Set host filter to '%s'", c.HostFilter)
		}
		if c.Timeout == 0 {
			if value := os.Getenv(EnvBeaconTimeout); value != "" {
				timeout, err := parseTimeout(value)
				if err != nil {
					log.Warning("Ignoring invalid %s '%s': %s", EnvBeaconTimeout, value, err)
				} else {
					c.Timeout = timeout
					log.Debug("Set timeout to %s", c.Timeout)
				}
			}
		}
		if c.BtAdapterID == "" {
			c.BtAdapterID = os.Getenv(EnvBeaconBtAdapter)
		}
		if c.Backend == "" {
			if value := os.Getenv(EnvBeaconBackend); value != "" {
				if err := c.Backend.Set(value); err != nil {
					log.Warning("Ignoring %s: %s", EnvBeaconBackend, err)
				}
			}
		}
	}
	if c.Flags.isSet(FlagNATS) {
		if c.NATSURL == "" {
			c.NATSURL = os.Getenv(EnvBeaconNATSURL)
			log.Debug("Set NATS URL to '%s'", c.NATSURL)
		}
		if c.NATSSubject == "" {
			c.NATSSubject = os.Getenv(EnvBeaconNATSSubject)
		}
		if c.NATSTokenName == "" && c.NATSTokenFile == "" {
			c.NATSTokenName = os.Getenv(EnvBeaconNATSTokenName)
			log.Debug("Set NATS token name to '%s'", c.NATSTokenName)

			c.NATSTokenFile = os.Getenv(EnvBeaconNATSTokenFile)
			log.Debug("Set NATS token file to '%s'", c.NATSTokenFile)
		}
		if c.KeyringType.String() == string(keyring.InvalidBackend) {
			if err := c.KeyringType.Set(os.Getenv(EnvBeaconKeyringType)); err == nil {
				log.Debug("Set keyring type to '%s'", c.KeyringType)
			}
		}
		if c.password == nil {
			password := os.Getenv(EnvBeaconKeyringPass)
			c.password = &password
			if len(password) > 0 {
				log.Debug("Set keyring File Password to %s", strings.Repeat("*", len("hunter2")))
			}
		}
		if c.Keyring.FileDir == "" {
			c.Keyring.FileDir = os.Getenv(EnvBeaconKeyringPath)
		}
	}
	if c.Flags.isSet(FlagStreams) {
		if c.StreamsURL == "" {
			c.StreamsURL = os.Getenv(EnvBeaconStreamsURL)
			log.Debug("Set streams URL to '%s'", c.StreamsURL)
		}
		if c.StreamsDir == "" {
			c.StreamsDir = os.Getenv(EnvBeaconStreamsDir)
		}
		if c.StreamsSchedule == "" {
			c.StreamsSchedule = os.Getenv(EnvBeaconStreamsSchedule)
		}
	}
}

// LoadFile fills fields that are still unset from the YAML file named by c.ConfigFile. It does
// nothing if no file is configured.
func (c *Config) LoadFile() error {
	if c.ConfigFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to read configuration: %w", err)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse %s: %w", c.ConfigFile, err)
	}
	log.Debug("Loaded configuration from %s", c.ConfigFile)

	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&c.HostFilter, file.HostFilter)
	fill(&c.BtAdapterID, file.BtAdapterID)
	fill(&c.NATSURL, file.NATSURL)
	fill(&c.NATSSubject, file.NATSSubject)
	fill(&c.StreamsURL, file.StreamsURL)
	fill(&c.StreamsDir, file.StreamsDir)
	fill(&c.StreamsSchedule, file.StreamsSchedule)
	if c.NATSTokenName == "" && c.NATSTokenFile == "" {
		c.NATSTokenName = file.NATSTokenName
		c.NATSTokenFile = file.NATSTokenFile
	}
	if c.Timeout == 0 {
		c.Timeout = file.Timeout
	}
	if c.Backend == "" && file.Backend != "" {
		if err := c.Backend.Set(string(file.Backend)); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidConfig, err)
		}
	}
	c.Debug = c.Debug || file.Debug
	return nil
}

// Validate checks the fields enabled by c.Flags.
func (c *Config) Validate() error {
	if c.Flags.isSet(FlagScan) {
		if c.HostFilter == "" {
			return ErrNoHostFilter
		}
		if c.Timeout < 0 {
			return fmt.Errorf("%w: negative timeout %s", ErrInvalidConfig, c.Timeout)
		}
		if c.Backend != "" {
			backend := c.Backend
			if err := backend.Set(string(c.Backend)); err != nil {
				return fmt.Errorf("%w: %s", ErrInvalidConfig, err)
			}
		}
	}
	if c.Flags.isSet(FlagStreams) && c.StreamsURL != "" {
		u, err := url.Parse(c.StreamsURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: streams URL must be an absolute http(s) URL", ErrInvalidConfig)
		}
	}
	return nil
}

// TrackerConfig returns the tracker settings described by c.
func (c *Config) TrackerConfig() tracker.Config {
	return tracker.Config{
		HostFilter: c.HostFilter,
		Timeout:    c.Timeout,
	}
}

// Scanner opens the configured Bluetooth adapter.
func (c *Config) Scanner() (connector.Scanner, error) {
	switch c.Backend {
	case "", BackendBLE:
		log.Debug("Opening adapter '%s' with go-ble", c.BtAdapterID)
		return ble.NewScanner(c.BtAdapterID)
	case BackendTinyGo:
		log.Debug("Opening adapter '%s' with tinygo bluetooth", c.BtAdapterID)
		return tinygo.NewScanner(c.BtAdapterID)
	}
	return nil, fmt.Errorf("%w: unknown backend '%s'", ErrInvalidConfig, c.Backend)
}

// AdapterErrorHelp returns a help message for err if it was caused by a misconfigured Bluetooth
// adapter on the configured backend.
func (c *Config) AdapterErrorHelp(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	switch c.Backend {
	case "", BackendBLE:
		if ble.IsAdapterError(err) {
			return ble.AdapterErrorHelpMessage(err), true
		}
	case BackendTinyGo:
		if tinygo.IsAdapterError(err) {
			return tinygo.AdapterErrorHelpMessage(err), true
		}
	}
	return "", false
}

// WeightSink returns the NATS sink if a server is configured, or a sink that logs readings
// otherwise. The returned function releases the sink.
func (c *Config) WeightSink() (tracker.WeightSink, func(), error) {
	if !c.Flags.isSet(FlagNATS) || c.NATSURL == "" {
		return sink.Log{}, func() {}, nil
	}
	token, err := c.NATSToken()
	if err != nil && !errors.Is(err, ErrNoTokenSpecified) {
		return nil, nil, err
	}
	n, err := sink.DialNATS(c.NATSURL, c.NATSSubject, token)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Publishing weights to %s", c.NATSURL)
	return n, func() {
		if err := n.Close(); err != nil {
			log.Warning("Error closing NATS connection: %s", err)
		}
	}, nil
}

// Updater returns an updater for the configured waste-streams URL.
func (c *Config) Updater() (*streams.Updater, error) {
	if c.StreamsURL == "" {
		return nil, ErrNoStreamsURL
	}
	fetcher := streams.NewFetcher(0, 0, 0)
	store := &streams.Store{Dir: c.StreamsDir}
	if store.Dir == "" {
		store.Dir = "."
	}
	return streams.NewUpdater(c.StreamsURL, fetcher, store, streams.DefaultFile), nil
}
