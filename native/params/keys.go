package params

const (
	// ParamsKeyPauses stores the module pause configuration.
	ParamsKeyPauses = "system/pauses"
)

// Module names accepted by the pause configuration.
const (
	ModuleCDP     = "cdp"
	ModuleDEX     = "dex"
	ModuleAuction = "auction"
)

// KnownModules lists every pausable module.
var KnownModules = []string{ModuleAuction, ModuleCDP, ModuleDEX}
