package config

const (
	defaultConfigPath             = "~/.config/shelfscan/config.toml"
	defaultDataDir                = "~/.local/share/shelfscan"
	defaultLogDir                 = "~/.local/share/shelfscan/logs"
	defaultZoteroBaseURL          = "https://api.zotero.org"
	defaultGoogleBooksBaseURL     = "https://www.googleapis.com/books/v1"
	defaultWorkers                = 2
	defaultRequestTimeoutSeconds  = 15
	defaultRatePerSecond          = 5
	defaultBurst                  = 5
	defaultBreakerFailures        = 5
	defaultBreakerCooldownSeconds = 30
	defaultUserAgent              = "shelfscan/dev"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Zotero: Zotero{
			BaseURL: defaultZoteroBaseURL,
		},
		GoogleBooks: GoogleBooks{
			BaseURL: defaultGoogleBooksBaseURL,
		},
		Dispatch: Dispatch{
			Workers:                defaultWorkers,
			RequestTimeoutSeconds:  defaultRequestTimeoutSeconds,
			RatePerSecond:          defaultRatePerSecond,
			Burst:                  defaultBurst,
			BreakerFailures:        defaultBreakerFailures,
			BreakerCooldownSeconds: defaultBreakerCooldownSeconds,
			UserAgent:              defaultUserAgent,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
