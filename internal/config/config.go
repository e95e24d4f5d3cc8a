// Package config loads layered settings: built-in defaults, a TOML file, an
// optional .env file and PUPIL_* environment variables. Command-line flags
// are applied last by the CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"pupil-biou/internal/pupil"
	"pupil-biou/internal/video"
)

const (
	appDir     = "pupil-biou"
	configFile = "config.toml"
	envPrefix  = "PUPIL_"
)

// Config is the complete application configuration.
type Config struct {
	Pupil pupil.Params `toml:"pupil"`

	// Threshold separates real (score above) from synthetic.
	Threshold   float64 `toml:"threshold"`
	Workers     int     `toml:"workers"`
	VideoFrames int     `toml:"video_frames"`

	OutputDir  string `toml:"output_dir"`
	CSVPath    string `toml:"csv_path"`
	ResultsDSN string `toml:"results_dsn"` // sqlite3://path or postgres://...

	Cascades Cascades `toml:"cascades"`

	LogFile string `toml:"log_file"`
	Quiet   bool   `toml:"quiet"`
}

// Cascades locates the Haar cascade files used for face input.
type Cascades struct {
	Face string `toml:"face"`
	Eye  string `toml:"eye"`
	Dir  string `toml:"dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Pupil:       pupil.DefaultParams(),
		Threshold:   0.5,
		Workers:     runtime.NumCPU(),
		VideoFrames: video.DefaultFrames,
	}
}

// DefaultPath returns ~/.config/pupil-biou/config.toml (or the platform
// equivalent).
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, appDir, configFile)
}

// Load builds a Config from defaults, the TOML file at path, the .env file at
// envFile and the environment. An empty path uses DefaultPath, which may be
// absent; an explicit path must exist. An empty envFile means ".env", which
// may also be absent.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := cfg.loadFile(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			err = nil
		}
		if err != nil {
			return nil, err
		}
	}

	explicitEnv := envFile != ""
	if !explicitEnv {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if explicitEnv || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// applyEnv overrides fields from PUPIL_* variables. Malformed values are an
// error rather than silently ignored.
func (c *Config) applyEnv() error {
	var errs []error
	setInt := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, ok := lookup(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	setInt("CANNY_LOW", &c.Pupil.CannyLow)
	setInt("CANNY_HIGH", &c.Pupil.CannyHigh)
	setInt("HOUGH_MIN_RADIUS", &c.Pupil.MinRadius)
	setInt("HOUGH_MAX_RADIUS", &c.Pupil.MaxRadius)
	setFloat("HOUGH_DP", &c.Pupil.DP)
	setInt("HOUGH_MIN_DIST", &c.Pupil.MinDist)
	setFloat("HOUGH_PARAM1", &c.Pupil.Param1)
	setFloat("HOUGH_PARAM2", &c.Pupil.Param2)

	setFloat("THRESHOLD", &c.Threshold)
	setInt("WORKERS", &c.Workers)
	setInt("VIDEO_FRAMES", &c.VideoFrames)
	setString("OUTPUT_DIR", &c.OutputDir)
	setString("CSV", &c.CSVPath)
	setString("RESULTS_DSN", &c.ResultsDSN)
	setString("CASCADE_DIR", &c.Cascades.Dir)
	setString("LOG_FILE", &c.LogFile)
	if v, ok := lookup("QUIET"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sQUIET: %w", envPrefix, err))
		} else {
			c.Quiet = b
		}
	}
	return errors.Join(errs...)
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// Validate reports inconsistent settings.
func (c *Config) Validate() error {
	if err := c.Pupil.Validate(); err != nil {
		return fmt.Errorf("pupil: %w", err)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be in [0,1], got %v", c.Threshold)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.VideoFrames < 1 {
		return fmt.Errorf("video_frames must be at least 1, got %d", c.VideoFrames)
	}
	return nil
}

// Write saves c as TOML, creating parent directories.
func (c *Config) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return f.Close()
}
