package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"query5/internal/logutil"
	"query5/internal/models"
)

const dateLayout = "2006-01-02"

var ErrMissingArgument = errors.New("missing required argument")

type ServeConfig struct {
	Addr string `toml:"addr"`
}

// Config is the full run configuration. Values come from an optional TOML
// file and are overridden by command line flags.
type Config struct {
	RegionName   string `toml:"r_name"`
	StartDate    string `toml:"start_date"`
	EndDate      string `toml:"end_date"`
	Threads      int    `toml:"threads"`
	TablePath    string `toml:"table_path"`
	ResultPath   string `toml:"result_path"`
	StrictRegion bool   `toml:"strict_region"`

	// threadsSet records whether Threads was given at all, zero being a legal value.
	threadsSet bool

	Log   logutil.LogConfig `toml:"log"`
	Serve ServeConfig       `toml:"serve"`
}

func Default() *Config {
	return &Config{
		Log: logutil.LogConfig{
			Level:  "info",
			Format: "console",
		},
		Serve: ServeConfig{Addr: ":8080"},
	}
}

// LoadFile decodes a TOML file over cfg.
func LoadFile(path string, cfg *Config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	if md.IsDefined("threads") {
		cfg.threadsSet = true
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// SetThreads sets the worker count and marks it as provided.
func (c *Config) SetThreads(n int) {
	c.Threads = n
	c.threadsSet = true
}

func validDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}

// Validate checks the values needed to run a query and write its result.
func (c *Config) Validate() error {
	var missing []string
	if c.RegionName == "" {
		missing = append(missing, "--r_name")
	}
	if c.StartDate == "" {
		missing = append(missing, "--start_date")
	}
	if c.EndDate == "" {
		missing = append(missing, "--end_date")
	}
	if !c.threadsSet {
		missing = append(missing, "--threads")
	}
	if c.TablePath == "" {
		missing = append(missing, "--table_path")
	}
	if c.ResultPath == "" {
		missing = append(missing, "--result_path")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingArgument, strings.Join(missing, ", "))
	}
	return ValidateDates(c.StartDate, c.EndDate)
}

// ValidateServe checks the values needed by the HTTP server.
func (c *Config) ValidateServe() error {
	if c.TablePath == "" {
		return fmt.Errorf("%w: --table_path", ErrMissingArgument)
	}
	if c.Serve.Addr == "" {
		return fmt.Errorf("%w: --addr", ErrMissingArgument)
	}
	return nil
}

// ValidateDates requires YYYY-MM-DD dates with start <= end.
func ValidateDates(start, end string) error {
	if !validDate(start) {
		return fmt.Errorf("invalid start date %q, want YYYY-MM-DD", start)
	}
	if !validDate(end) {
		return fmt.Errorf("invalid end date %q, want YYYY-MM-DD", end)
	}
	if start > end {
		return fmt.Errorf("start date %s is after end date %s", start, end)
	}
	return nil
}

func (c *Config) Query() models.Query {
	return models.Query{
		RegionName: c.RegionName,
		StartDate:  c.StartDate,
		EndDate:    c.EndDate,
		Threads:    c.Threads,
	}
}
