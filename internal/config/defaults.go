package config

const (
	defaultConfigPath         = "~/.config/comicvault/config.toml"
	defaultLibraryDir         = "~/.local/share/comicvault/library"
	defaultStagingDir         = "~/.local/share/comicvault/staging"
	defaultLogDir             = "~/.local/share/comicvault/logs"
	defaultChunkSize          = 50
	defaultWorkers            = 4
	defaultIOTimeoutSeconds   = 120
	defaultSevenZipBinary     = "7z"
	defaultPageCacheMaxMiB    = 2048
	defaultProgressTimeout    = 10
	defaultProgressInterval   = 5
	defaultWatchDebounceMilli = 2000
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Adaptor names accepted in [archive.bindings].
const (
	AdaptorCBZ = "cbz"
	AdaptorCBR = "cbr"
	AdaptorCB7 = "cb7"
)

// DefaultBindings maps detected container subtypes to adaptor names.
func DefaultBindings() map[string]string {
	return map[string]string{
		"zip":              AdaptorCBZ,
		"x-rar-compressed": AdaptorCBR,
		"x-7z-compressed":  AdaptorCB7,
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir:   defaultLibraryDir,
			StagingDir:   defaultStagingDir,
			LogDir:       defaultLogDir,
			PageCacheDir: defaultPageCacheDir(),
		},
		Ingest: Ingest{
			ChunkSize:  defaultChunkSize,
			Workers:    defaultWorkers,
			Extensions: []string{".cbz", ".cbr", ".cb7", ".zip", ".rar", ".7z"},
		},
		Archive: Archive{
			IOTimeoutSeconds: defaultIOTimeoutSeconds,
			SevenZipBinary:   defaultSevenZipBinary,
			Bindings:         DefaultBindings(),
		},
		PageCache: PageCache{
			MaxMiB: defaultPageCacheMaxMiB,
		},
		Progress: Progress{
			RequestTimeout:     defaultProgressTimeout,
			MinIntervalSeconds: defaultProgressInterval,
			Imports:            true,
		},
		Watch: Watch{
			DebounceMillis: defaultWatchDebounceMilli,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
