package auditlog

const (
	// MaxBodyCapture is the maximum size of request/response bodies to capture (1MB).
	MaxBodyCapture = 1024 * 1024

	// BatchFlushThreshold is the number of entries that triggers an immediate flush.
	BatchFlushThreshold = 100

	// DefaultListLimit is used when ListParams.Limit is not positive.
	DefaultListLimit = 50
)
