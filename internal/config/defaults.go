package config

const (
	defaultDataDir                   = "~/.local/share/reelscout"
	defaultLogDir                    = "~/.local/share/reelscout/logs"
	defaultAPIBind                   = "127.0.0.1:7488"
	defaultCatalogBaseURL            = "https://apis.justwatch.com/graphql"
	defaultCatalogPageSize           = 100
	defaultCatalogIntervalMS         = 1500
	defaultCatalogMaxAttempts        = 5
	defaultCatalogTimeoutSeconds     = 30
	defaultRatingsBaseURL            = "https://letterboxd.com"
	defaultRatingsUserAgent          = "reelscout/dev"
	defaultRatingsIntervalMS         = 2000
	defaultRatingsMaxConcurrent      = 2
	defaultRatingsMaxAttempts        = 4
	defaultRatingsTimeoutSeconds     = 20
	defaultSyncWorkers               = 4
	defaultSyncScheduleTime          = "02:00"
	defaultSyncProgressInterval      = 5
	defaultSyncCommitAttempts        = 3
	defaultLookupTTLHours            = 24
	defaultSnapshotTTLHours          = 48
	defaultRunRetentionDays          = 30
	defaultCompactionIntervalMinutes = 60
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultCountry                   = "US"
	defaultLanguage                  = "en"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Catalog: Catalog{
			BaseURL:           defaultCatalogBaseURL,
			PageSize:          defaultCatalogPageSize,
			RequestIntervalMS: defaultCatalogIntervalMS,
			MaxAttempts:       defaultCatalogMaxAttempts,
			TimeoutSeconds:    defaultCatalogTimeoutSeconds,
		},
		Ratings: Ratings{
			BaseURL:           defaultRatingsBaseURL,
			UserAgent:         defaultRatingsUserAgent,
			RequestIntervalMS: defaultRatingsIntervalMS,
			MaxConcurrent:     defaultRatingsMaxConcurrent,
			MaxAttempts:       defaultRatingsMaxAttempts,
			TimeoutSeconds:    defaultRatingsTimeoutSeconds,
		},
		Sync: Sync{
			Workers:                 defaultSyncWorkers,
			ScheduleEnabled:         true,
			ScheduleTime:            defaultSyncScheduleTime,
			ProgressIntervalSeconds: defaultSyncProgressInterval,
			CommitAttempts:          defaultSyncCommitAttempts,
		},
		Cache: Cache{
			LookupTTLHours:            defaultLookupTTLHours,
			SnapshotTTLHours:          defaultSnapshotTTLHours,
			RunRetentionDays:          defaultRunRetentionDays,
			CompactionIntervalMinutes: defaultCompactionIntervalMinutes,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Platforms: []Platform{
			{Key: "nfx", Name: "Netflix", Country: defaultCountry, Language: defaultLanguage},
		},
	}
}
