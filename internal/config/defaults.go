package config

const (
	ModeAbsolute = "absolute"
	ModeEarly    = "early"
	ModeBoth     = "both"

	CacheBackendDir   = "dir"
	CacheBackendMinio = "minio"
)

const (
	defaultRunsDir         = "~/.local/share/sigilum/runs"
	defaultLogDir          = "~/.local/share/sigilum/logs"
	defaultStorePath       = "~/.local/share/sigilum/ledger.db"
	defaultPipelineProfile = "configs/pipeline_default.yaml"
	defaultSearchProfile   = "configs/search_spaces.yaml"
	defaultMetricsProfile  = "configs/metrics_profile.yaml"
	defaultMinioBucket     = "sigilum-cache"
	defaultMinioPrefix     = "stages"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RunsDir: defaultRunsDir,
			LogDir:  defaultLogDir,
		},
		Profiles: Profiles{
			Pipeline: defaultPipelineProfile,
			Search:   defaultSearchProfile,
			Metrics:  defaultMetricsProfile,
		},
		Run: Run{
			Mode:     ModeBoth,
			Workers:  1,
			UseCache: true,
		},
		Cache: Cache{
			Enabled: true,
			Backend: CacheBackendDir,
			Dir:     defaultCacheDir(),
			Minio: Minio{
				Bucket: defaultMinioBucket,
				Prefix: defaultMinioPrefix,
			},
		},
		Store: Store{
			Enabled: true,
			Path:    defaultStorePath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
