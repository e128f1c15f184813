package ir

// Version constants for the ledger schema and engine.
const (
	// SchemaVersion is the burst ledger schema version.
	SchemaVersion = "1"

	// EngineVersion is the NPU engine version.
	EngineVersion = "0.1.0"
)
