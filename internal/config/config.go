// Package config loads the specimen HTTP façade's configuration from a
// struct-tagged, gcfg-parsed INI file (see gcfg's docs,
// config/loader.go) instead of a generic YAML/JSON config library.
package config

import (
	"errors"
	"time"

	"github.com/gravwell/gcfg"
)

const (
	envBind          = `SPECIMEN_BIND`
	envProjectRoot   = `SPECIMEN_PROJECT_ROOT`
	envSessionSecret = `SPECIMEN_SESSION_SECRET`

	DefaultBind              = `:8080`
	DefaultMaxFiles          = 100
	DefaultMaxFileSizeMB     = 50
	DefaultMaxSessionMemMB   = 500
	DefaultSessionTTLHours   = 24
	DefaultCleanupIntervalMn = 30
)

var (
	ErrNoProjectRoot  = errors.New("XAS_Project_Root must be set")
	ErrInvalidTTL     = errors.New("Session_TTL_Hours must be positive")
	ErrInvalidQuota   = errors.New("quota values must be positive")
	ErrInvalidBeaconP = errors.New("invalid beamline preset")
)

// Global is the sole top-level config section.
type Global struct {
	Bind                  string
	XAS_Project_Root      string
	Raw_Data_Folder       []string
	Beamline_Preset       string
	Max_Files_Per_Session int
	Max_File_Size_MB      int64
	Max_Session_Memory_MB int64
	Session_TTL_Hours     int
	Cleanup_Interval_Min  int
	Log_Level             string
	Log_File              string
}

type cfgFile struct {
	Global Global
}

// Config is the parsed, validated configuration handed to the façade.
type Config struct {
	cfgFile
}

func (c *Config) loadDefaults() {
	if c.Global.Bind == `` {
		c.Global.Bind = DefaultBind
	}
	if c.Global.Beamline_Preset == `` {
		c.Global.Beamline_Preset = `BM23`
	}
	if c.Global.Max_Files_Per_Session <= 0 {
		c.Global.Max_Files_Per_Session = DefaultMaxFiles
	}
	if c.Global.Max_File_Size_MB <= 0 {
		c.Global.Max_File_Size_MB = DefaultMaxFileSizeMB
	}
	if c.Global.Max_Session_Memory_MB <= 0 {
		c.Global.Max_Session_Memory_MB = DefaultMaxSessionMemMB
	}
	if c.Global.Session_TTL_Hours <= 0 {
		c.Global.Session_TTL_Hours = DefaultSessionTTLHours
	}
	if c.Global.Cleanup_Interval_Min <= 0 {
		c.Global.Cleanup_Interval_Min = DefaultCleanupIntervalMn
	}
	if c.Global.Log_Level == `` {
		c.Global.Log_Level = `INFO`
	}
}

func (c *Config) applyEnv() error {
	if err := LoadEnvVarString(&c.Global.Bind, envBind, c.Global.Bind); err != nil {
		return err
	}
	if err := LoadEnvVarString(&c.Global.XAS_Project_Root, envProjectRoot, c.Global.XAS_Project_Root); err != nil {
		return err
	}
	var secret string
	if err := LoadEnvVarString(&secret, envSessionSecret, ``); err != nil {
		return err
	}
	return nil
}

func (c *Config) validate() error {
	if c.Global.XAS_Project_Root == `` {
		return ErrNoProjectRoot
	}
	if c.Global.Session_TTL_Hours <= 0 {
		return ErrInvalidTTL
	}
	if c.Global.Max_Files_Per_Session <= 0 || c.Global.Max_File_Size_MB <= 0 || c.Global.Max_Session_Memory_MB <= 0 {
		return ErrInvalidQuota
	}
	return nil
}

// TTL returns the session time-to-live as a duration.
func (c *Config) TTL() time.Duration {
	return time.Duration(c.Global.Session_TTL_Hours) * time.Hour
}

// CleanupInterval returns the reaper cadence as a duration.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Global.Cleanup_Interval_Min) * time.Minute
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	var cf cfgFile
	if err := gcfg.ReadFileInto(&cf, path); err != nil {
		return nil, err
	}
	c := &Config{cfgFile: cf}
	c.loadDefaults()
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadBytes parses config content directly, used by tests that don't want
// to touch the filesystem.
func LoadBytes(content []byte) (*Config, error) {
	var cf cfgFile
	if err := gcfg.ReadStringInto(&cf, string(content)); err != nil {
		return nil, err
	}
	c := &Config{cfgFile: cf}
	c.loadDefaults()
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}
