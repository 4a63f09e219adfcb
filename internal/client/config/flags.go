package config

import "github.com/spf13/pflag"

// RegisterFlags adds the global configuration flags to fs. Flag defaults are
// empty; ApplyFlags copies only flags that were set, so they override the
// file and the environment without masking them.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "path to a YAML or JSON config file")
	fs.String("store", "", "path to the local SQLite database")
	fs.String("dsn", "", "PostgreSQL DSN of the backend")
	fs.String("token", "", "access token identifying the owner")
	fs.String("owner", "", "owner id used when no token is configured")
	fs.String("api-addr", "", "address of the local control API")
	fs.String("log-level", "", "log level: debug, info, warn, error")
	fs.String("log-format", "", "log format: text or json")
	fs.Int("retry-ceiling", 0, "attempts before a queued mutation needs a manual retry")
	fs.Duration("probe-interval", 0, "interval between reachability probes")
}

// ConfigPath returns the value of the --config flag.
func ConfigPath(fs *pflag.FlagSet) string {
	p, _ := fs.GetString("config")
	return p
}

// ApplyFlags overlays flags set on the command line onto cfg.
func ApplyFlags(fs *pflag.FlagSet, cfg *Config) {
	str := map[string]*string{
		"store":      &cfg.Store.Path,
		"dsn":        &cfg.Backend.DSN,
		"token":      &cfg.Backend.AccessToken,
		"owner":      &cfg.Backend.OwnerID,
		"api-addr":   &cfg.API.Addr,
		"log-level":  &cfg.Log.Level,
		"log-format": &cfg.Log.Format,
	}
	for name, dst := range str {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}

	if fs.Changed("retry-ceiling") {
		cfg.Sync.RetryCeiling, _ = fs.GetInt("retry-ceiling")
	}
	if fs.Changed("probe-interval") {
		cfg.Connectivity.ProbeInterval, _ = fs.GetDuration("probe-interval")
	}
}
