// Package config loads the daemon configuration from the TOML file, the
// environment and command line flags, in increasing precedence.
package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/socpowerd/internal/errors"
	"codeberg.org/mutker/socpowerd/internal/power"
	"codeberg.org/mutker/socpowerd/internal/stats"
	"codeberg.org/mutker/socpowerd/internal/sysfs"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultConfigPath     = "/etc/socpowerd.toml"
	DefaultEnvPrefix      = "SOCPOWERD"
	DefaultLogLevel       = string(LogLevelInfo)
	DefaultListen         = "127.0.0.1:8086"
	DefaultSampleSchedule = "@every 1m"
	DefaultDBPath         = "/var/lib/socpowerd/history.db"
	DefaultPIDFile        = "/run/socpowerd.pid"
	DefaultLaunchDuration = 2 * time.Second

	defaultBatchSize    = 10
	defaultBatchTimeout = 60

	configEnv = "CONFIG"
)

type Config struct {
	LogLevel          string            `mapstructure:"log_level"`
	Listen            string            `mapstructure:"listen"`
	PIDFile           string            `mapstructure:"pid_file"`
	PlatformStatsPath string            `mapstructure:"platform_stats_path"`
	WLANStatsPath     string            `mapstructure:"wlan_stats_path"`
	GovernorPath      string            `mapstructure:"governor_path"`
	SocIDPath         string            `mapstructure:"soc_id_path"`
	SlackNodes        SlackNodes        `mapstructure:"slack_nodes"`
	LockNodes         map[string]string `mapstructure:"lock_nodes"`
	LaunchDuration    time.Duration     `mapstructure:"launch_duration"`
	SampleSchedule    string            `mapstructure:"sample_schedule"`
	History           History           `mapstructure:"history"`
	Metrics           Metrics           `mapstructure:"metrics"`

	// File is the configuration file that was read, empty when none was.
	File string `mapstructure:"-"`

	envPrefix string
	flags     *pflag.FlagSet
}

type SlackNodes struct {
	DCVSCPU0Max   string `mapstructure:"dcvs_cpu0_max"`
	DCVSCPU0Min   string `mapstructure:"dcvs_cpu0_min"`
	MPDecisionMax string `mapstructure:"mpdecision_max"`
	MPDecisionMin string `mapstructure:"mpdecision_min"`
}

type History struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
	// Samples buffered before a write.
	BatchSize int `mapstructure:"batch_size"`
	// Seconds between forced flushes.
	BatchTimeout int `mapstructure:"batch_timeout"`
}

type Metrics struct {
	Enabled bool `mapstructure:"enabled"`
}

// Power returns the slack node set for the arbiter.
func (n SlackNodes) Power() power.SlackNodes {
	return power.SlackNodes{
		DCVSCPU0SlackMax:   n.DCVSCPU0Max,
		DCVSCPU0SlackMin:   n.DCVSCPU0Min,
		MPDecisionSlackMax: n.MPDecisionMax,
		MPDecisionSlackMin: n.MPDecisionMin,
	}
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Configuration file")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.String("listen", DefaultListen, "Hint API listen address")
	fs.String("platform-stats", "", "Platform RPM statistics file")
	fs.String("wlan-stats", "", "WLAN power statistics file")
	fs.String("schedule", DefaultSampleSchedule, "Statistics sampling schedule (cron syntax)")
	fs.Bool("history", false, "Record statistics history")
	fs.Bool("metrics", true, "Expose Prometheus metrics")
}

// flag name -> configuration key
var flagKeys = map[string]string{
	"log-level":      "log_level",
	"listen":         "listen",
	"platform-stats": "platform_stats_path",
	"wlan-stats":     "wlan_stats_path",
	"schedule":       "sample_schedule",
	"history":        "history.enabled",
	"metrics":        "metrics.enabled",
}

func setDefaults(v *viper.Viper) {
	slack := power.DefaultSlackNodes()

	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("pid_file", DefaultPIDFile)
	v.SetDefault("platform_stats_path", stats.PlatformPath)
	v.SetDefault("wlan_stats_path", stats.WLANPath)
	v.SetDefault("governor_path", sysfs.DefaultGovernorPath)
	v.SetDefault("soc_id_path", sysfs.DefaultSocIDPath)
	v.SetDefault("slack_nodes.dcvs_cpu0_max", slack.DCVSCPU0SlackMax)
	v.SetDefault("slack_nodes.dcvs_cpu0_min", slack.DCVSCPU0SlackMin)
	v.SetDefault("slack_nodes.mpdecision_max", slack.MPDecisionSlackMax)
	v.SetDefault("slack_nodes.mpdecision_min", slack.MPDecisionSlackMin)
	v.SetDefault("lock_nodes", map[string]string{})
	v.SetDefault("launch_duration", DefaultLaunchDuration)
	v.SetDefault("sample_schedule", DefaultSampleSchedule)
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.db_path", DefaultDBPath)
	v.SetDefault("history.batch_size", defaultBatchSize)
	v.SetDefault("history.batch_timeout", defaultBatchTimeout)
	v.SetDefault("metrics.enabled", true)
}

func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	path, explicit := configPath(o)

	cfg, err := read(path, explicit, o.envPrefix, o.flags)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// configPath resolves the file to read: the option, then the --config flag,
// then <PREFIX>_CONFIG, then the default location. Only the default may be
// absent.
func configPath(o *options) (string, bool) {
	if o.configPath != "" {
		return o.configPath, true
	}

	if o.flags != nil {
		if f := o.flags.Lookup("config"); f != nil && f.Changed {
			return f.Value.String(), true
		}
	}

	if env, ok := os.LookupEnv(o.envPrefix + "_" + configEnv); ok {
		// An empty value disables the file.
		return env, env != ""
	}

	return DefaultConfigPath, false
}

func read(path string, explicit bool, envPrefix string, flags *pflag.FlagSet) (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file := ""
	if path != "" {
		if _, err := os.Stat(path); err == nil || explicit {
			v.SetConfigFile(path)
			v.SetConfigType("toml")
			if err := v.ReadInConfig(); err != nil {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
			file = path
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	cfg.File = file
	cfg.envPrefix = envPrefix
	cfg.flags = flags

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.Listen == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "listen address is empty")
	}

	if c.PlatformStatsPath == "" || c.WLANStatsPath == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "statistics paths must be set")
	}

	if c.LaunchDuration <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "launch_duration "+c.LaunchDuration.String())
	}

	if _, err := cron.ParseStandard(c.SampleSchedule); err != nil {
		return errFactory.Wrap(errors.ErrInvalidSchedule, err)
	}

	if c.History.Enabled {
		if c.History.DBPath == "" {
			return errFactory.WithMessage(errors.ErrInvalidConfig, "history.db_path is empty")
		}
		if c.History.BatchSize < 0 || c.History.BatchTimeout < 0 {
			return errFactory.WithMessage(errors.ErrInvalidConfig, "history batching must not be negative")
		}
	}

	return nil
}
