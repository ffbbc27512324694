package ir

// Version constants recorded with every stored run.
const (
	// IRVersion is the definition/trace schema version.
	IRVersion = "1"

	// EngineVersion is the mstate engine version.
	EngineVersion = "0.1.0"
)
