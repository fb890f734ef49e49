package utils

// Transfer sizing (binary units)
const (
	// ChunkSize is the read buffer of a transfer; one progress event is
	// emitted per chunk.
	ChunkSize = 1024 * 1024 // 1 MiB
	// DiskSpaceHeadroom is kept free on the destination volume
	DiskSpaceHeadroom = 64 * 1024 * 1024
)

// Scheduling
const (
	DefaultConcurrency = 4
	MaxConcurrency     = 32
)

// Retry configuration
const (
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 1000
	MaxRetryDelayMs     = 32000
)

// Cache TTL
const DefaultCacheTTLSeconds = 300

// Progress rendering
const DefaultProgressIntervalMs = 2000

// Schema version
const SchemaVersion = "1.0"

// Local layout
const (
	// PhotosDirName is the directory photos selectors are mirrored under
	PhotosDirName = "Photos"
	// TempFileSuffix marks in-flight full fetches
	TempFileSuffix = ".icdl-tmp"
)

// Duplicate-name policies for path and album resolution
const (
	DuplicatePolicyFirst  = "first"
	DuplicatePolicyStrict = "strict"
)

// Session backends
const (
	BackendHTTP  = "http"
	BackendDrive = "drive"
	BackendS3    = "s3"
)
