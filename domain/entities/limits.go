package entities

// Limits bounds what a guest can ask of the host in a single call.
type Limits struct {
	// MaxTransferSize caps the byte length of a single read, write or transfer.
	MaxTransferSize uint32 `toml:"max_transfer" validate:"gt=0"`

	// MaxTransactionOps caps the number of steps in one transaction.
	MaxTransactionOps uint32 `toml:"max_transaction_ops" validate:"gt=0"`

	// MaxLogMessage caps the byte length of one guest log line.
	MaxLogMessage uint32 `toml:"max_log_message" validate:"gt=0"`

	// MaxRequestSize caps an encoded capability request read from guest memory.
	MaxRequestSize uint32 `toml:"max_request" validate:"gt=0"`
}

// DefaultLimits returns the default guest limits.
func DefaultLimits() Limits {
	return Limits{
		MaxTransferSize:   4096,
		MaxTransactionOps: 64,
		MaxLogMessage:     256,
		MaxRequestSize:    16 * 1024,
	}
}
