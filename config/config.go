package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"pesaje-scale-link/types"
)

const (
	ServerAddr = ":8080"

	DefaultBaudRate    = 9600
	DefaultDataBits    = 8
	DefaultStopBits    = 1
	DefaultDelimiter   = "="
	DefaultTimeout     = 100 * time.Millisecond
	DefaultReadTimeout = 50 * time.Millisecond

	DefaultWindow         = 5
	DefaultTolerance      = 0.02
	DefaultRunLength      = 3
	DefaultHistory        = 100
	DefaultMaxSubscribers = 32

	DefaultStoreFile = "weighings.jsonl"
)

type Config struct {
	Link types.LinkConfig

	Window    int
	Tolerance float64
	RunLength int

	History        int
	MaxSubscribers int

	ConnectTimeout time.Duration
	AutoConnect    bool
	Mock           bool

	Addr      string
	StoreFile string
	Wedge     string // "off", "clipboard", "keyboard"

	LogLevel  string
	LogPretty bool
}

func Default() Config {
	return Config{
		Link: types.LinkConfig{
			BaudRate:    DefaultBaudRate,
			DataBits:    DefaultDataBits,
			Parity:      types.ParityNone,
			StopBits:    DefaultStopBits,
			Delimiter:   DefaultDelimiter,
			Timeout:     DefaultTimeout,
			Driver:      types.DriverBugst,
			ReadTimeout: DefaultReadTimeout,
		},
		Window:         DefaultWindow,
		Tolerance:      DefaultTolerance,
		RunLength:      DefaultRunLength,
		History:        DefaultHistory,
		MaxSubscribers: DefaultMaxSubscribers,
		Addr:           ServerAddr,
		StoreFile:      DefaultStoreFile,
		Wedge:          "off",
		LogLevel:       "info",
	}
}

// Load reads flags from args; SCALE_* environment variables provide the
// defaults so a flag on the command line always wins.
func Load(args []string) (Config, error) {
	return load(args, os.LookupEnv)
}

func load(args []string, env func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if err := applyEnv(&cfg, env); err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("pesaje-scale-link", flag.ContinueOnError)
	driver := string(cfg.Link.Driver)
	parity := string(cfg.Link.Parity)

	fs.StringVar(&cfg.Link.Port, "port", cfg.Link.Port, "serial device path, example /dev/ttyUSB0")
	fs.IntVar(&cfg.Link.BaudRate, "baud", cfg.Link.BaudRate, "baud rate")
	fs.IntVar(&cfg.Link.DataBits, "data-bits", cfg.Link.DataBits, "data bits")
	fs.StringVar(&parity, "parity", parity, "parity: none, even, odd")
	fs.IntVar(&cfg.Link.StopBits, "stop-bits", cfg.Link.StopBits, "stop bits: 1 or 2")
	fs.StringVar(&cfg.Link.Delimiter, "delimiter", cfg.Link.Delimiter, "frame delimiter")
	fs.DurationVar(&cfg.Link.Timeout, "frame-timeout", cfg.Link.Timeout, "inactivity timeout that closes a frame")
	fs.DurationVar(&cfg.Link.ReadTimeout, "read-timeout", cfg.Link.ReadTimeout, "serial read timeout")
	fs.StringVar(&driver, "driver", driver, "serial driver: bugst, tarm, jacobsa")
	fs.IntVar(&cfg.Window, "window", cfg.Window, "stability history size")
	fs.Float64Var(&cfg.Tolerance, "tolerance", cfg.Tolerance, "stability tolerance in kg")
	fs.IntVar(&cfg.RunLength, "run-length", cfg.RunLength, "consecutive similar readings required for stability")
	fs.IntVar(&cfg.History, "history", cfg.History, "events replayed to new stream subscribers")
	fs.IntVar(&cfg.MaxSubscribers, "max-subscribers", cfg.MaxSubscribers, "maximum live stream subscribers")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "abandon a connect that takes longer (0 disables)")
	fs.BoolVar(&cfg.AutoConnect, "autoconnect", cfg.AutoConnect, "connect to -port on startup")
	fs.BoolVar(&cfg.Mock, "mock", cfg.Mock, "start in mock mode (synthetic scale)")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.StoreFile, "store", cfg.StoreFile, "JSON lines file for confirmed weighings")
	fs.StringVar(&cfg.Wedge, "wedge", cfg.Wedge, "desktop output of saved weights: off, clipboard, keyboard")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.BoolVar(&cfg.LogPretty, "log-pretty", cfg.LogPretty, "human readable console logs")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.Link.Driver = types.Driver(strings.ToLower(strings.TrimSpace(driver)))
	cfg.Link.Parity = types.Parity(strings.ToLower(strings.TrimSpace(parity)))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Link.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("invalid baud rate %d", c.Link.BaudRate))
	}
	if c.Link.DataBits < 5 || c.Link.DataBits > 8 {
		errs = append(errs, fmt.Errorf("invalid data bits %d", c.Link.DataBits))
	}
	if c.Link.StopBits != 1 && c.Link.StopBits != 2 {
		errs = append(errs, fmt.Errorf("invalid stop bits %d", c.Link.StopBits))
	}
	switch c.Link.Parity {
	case types.ParityNone, types.ParityEven, types.ParityOdd:
	default:
		errs = append(errs, fmt.Errorf("unknown parity %q", c.Link.Parity))
	}
	switch c.Link.Driver {
	case types.DriverBugst, types.DriverTarm, types.DriverJacobsa:
	default:
		errs = append(errs, fmt.Errorf("unknown driver %q", c.Link.Driver))
	}
	if c.Link.Delimiter == "" {
		errs = append(errs, errors.New("empty frame delimiter"))
	}
	if c.Link.Timeout <= 0 {
		errs = append(errs, errors.New("frame timeout must be positive"))
	}
	if c.Window < 1 {
		errs = append(errs, fmt.Errorf("invalid window %d", c.Window))
	}
	if c.RunLength < 1 {
		errs = append(errs, fmt.Errorf("invalid run length %d", c.RunLength))
	}
	if c.Tolerance < 0 {
		errs = append(errs, fmt.Errorf("negative tolerance %v", c.Tolerance))
	}
	if c.History < 1 {
		errs = append(errs, fmt.Errorf("invalid history %d", c.History))
	}
	if c.MaxSubscribers < 1 {
		errs = append(errs, fmt.Errorf("invalid max subscribers %d", c.MaxSubscribers))
	}
	switch c.Wedge {
	case "off", "clipboard", "keyboard":
	default:
		errs = append(errs, fmt.Errorf("unknown wedge mode %q", c.Wedge))
	}
	return errors.Join(errs...)
}

func applyEnv(cfg *Config, env func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	driver := string(cfg.Link.Driver)
	str("SCALE_PORT", &cfg.Link.Port)
	num("SCALE_BAUD", &cfg.Link.BaudRate)
	str("SCALE_DRIVER", &driver)
	str("SCALE_DELIMITER", &cfg.Link.Delimiter)
	dur("SCALE_TIMEOUT", &cfg.Link.Timeout)
	num("SCALE_WINDOW", &cfg.Window)
	num("SCALE_RUN_LENGTH", &cfg.RunLength)
	num("SCALE_HISTORY", &cfg.History)
	num("SCALE_MAX_SUBSCRIBERS", &cfg.MaxSubscribers)
	dur("SCALE_CONNECT_TIMEOUT", &cfg.ConnectTimeout)
	boolean("SCALE_MOCK", &cfg.Mock)
	boolean("SCALE_AUTOCONNECT", &cfg.AutoConnect)
	str("SCALE_ADDR", &cfg.Addr)
	str("SCALE_STORE", &cfg.StoreFile)
	str("SCALE_WEDGE", &cfg.Wedge)
	str("SCALE_LOG_LEVEL", &cfg.LogLevel)
	boolean("SCALE_LOG_PRETTY", &cfg.LogPretty)
	cfg.Link.Driver = types.Driver(driver)

	if v, ok := env("SCALE_TOLERANCE"); ok && strings.TrimSpace(v) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("SCALE_TOLERANCE: %w", err))
		} else {
			cfg.Tolerance = f
		}
	}

	return errors.Join(errs...)
}
