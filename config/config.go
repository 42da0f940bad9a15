package config

import (
	"errors"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/domino14/shapstack/board"
)

const (
	ConfigDebug         = "debug"
	ConfigBoardSeed     = "board-seed"
	ConfigSeedOffset    = "seed-offset"
	ConfigBoardWidth    = "board-width"
	ConfigBoardHeight   = "board-height"
	ConfigMaxPieces     = "max-pieces"
	ConfigIterations    = "iterations"
	ConfigBatchSize     = "batch-size"
	ConfigStopTolerance = "stop-tolerance"
	ConfigThreads       = "threads"
	ConfigCPUProfile    = "cpu-profile"
	ConfigFile          = "config-file"
)

type Config struct {
	*viper.Viper
}

// DefaultConfig has every key at its default and no file or env overrides.
func DefaultConfig() *Config {
	c := &Config{Viper: viper.New()}
	setDefaults(c.Viper)
	return c
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(ConfigDebug, false)
	v.SetDefault(ConfigBoardSeed, 12345)
	v.SetDefault(ConfigSeedOffset, 1000)
	v.SetDefault(ConfigBoardWidth, 8)
	v.SetDefault(ConfigBoardHeight, 32)
	v.SetDefault(ConfigMaxPieces, 10)
	v.SetDefault(ConfigIterations, 100)
	v.SetDefault(ConfigBatchSize, 10)
	v.SetDefault(ConfigStopTolerance, 0.05)
	v.SetDefault(ConfigThreads, runtime.NumCPU())
	v.SetDefault(ConfigCPUProfile, "")
	v.SetDefault(ConfigFile, "")
}

// Load reads flags from args, then SHAPSTACK_* environment variables, then
// the optional config file. Flags win over env, env wins over the file.
// Arguments that are not flags are returned.
func (c *Config) Load(args []string) ([]string, error) {
	c.Viper = viper.New()
	setDefaults(c.Viper)

	fs := pflag.NewFlagSet("shapstack", pflag.ContinueOnError)
	fs.Bool(ConfigDebug, false, "debug logging on")
	fs.Int64(ConfigBoardSeed, 12345, "seed for reference board generation")
	fs.Int64(ConfigSeedOffset, 1000, "added to the board seed to seed the permutation sampler")
	fs.Int(ConfigBoardWidth, 8, "board width in columns")
	fs.Int(ConfigBoardHeight, 32, "board height in rows")
	fs.Int(ConfigMaxPieces, 10, "number of pieces to generate")
	fs.Int(ConfigIterations, 100, "default target iteration count for `run`")
	fs.Int(ConfigBatchSize, 10, "iterations per batch for `run`")
	fs.Float64(ConfigStopTolerance, 0.05, "confidence half-width at which `sim` stops")
	fs.Int(ConfigThreads, runtime.NumCPU(), "threads for `sweep`")
	fs.String(ConfigCPUProfile, "", "write a CPU profile to this file")
	fs.String(ConfigFile, "", "optional YAML or TOML config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := c.BindPFlags(fs); err != nil {
		return nil, err
	}

	c.SetEnvPrefix("shapstack")
	c.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.AutomaticEnv()

	if f := c.GetString(ConfigFile); f != "" {
		c.SetConfigFile(f)
		if err := c.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return fs.Args(), c.validate()
}

func (c *Config) validate() error {
	if c.GetInt(ConfigBoardWidth) <= 0 || c.GetInt(ConfigBoardHeight) <= 0 {
		return errors.New("board-width and board-height must be positive")
	}
	if c.GetInt(ConfigMaxPieces) < 1 {
		return errors.New("max-pieces must be at least 1")
	}
	if c.GetInt(ConfigBatchSize) < 1 {
		return errors.New("batch-size must be at least 1")
	}
	return nil
}

// GenOptions returns the board generation options.
func (c *Config) GenOptions() board.GenOptions {
	return board.GenOptions{
		Width:     c.GetInt(ConfigBoardWidth),
		Height:    c.GetInt(ConfigBoardHeight),
		MaxPieces: c.GetInt(ConfigMaxPieces),
	}
}

// SimSeed derives the permutation sampler seed from a board seed.
func (c *Config) SimSeed(boardSeed int64) int64 {
	return boardSeed + c.GetInt64(ConfigSeedOffset)
}

// SanitizedSettings returns all settings, for logging at start-up.
func (c *Config) SanitizedSettings() map[string]any {
	return c.AllSettings()
}
