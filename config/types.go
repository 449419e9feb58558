package config

// Vault captures the economic parameters of the vault. Durations use Go
// duration syntax ("8h", "168h").
type Vault struct {
	Offset        uint8  `toml:"Offset"`
	VestingPeriod string `toml:"VestingPeriod"`
	Cooldown      string `toml:"Cooldown"`
	MaxCooldown   string `toml:"MaxCooldown"`
	MinShares     uint64 `toml:"MinShares"`
}

// Allocation seeds an account with base assets.
type Allocation struct {
	Address string `toml:"Address"`
	Assets  uint64 `toml:"Assets"`
}

// Access lists the privileged accounts known at genesis.
type Access struct {
	Admin     string   `toml:"Admin"`
	Rewarders []string `toml:"Rewarders"`
}

// Genesis is the on-disk description of a new vault.
type Genesis struct {
	// StartTime is the unix time the vesting clock starts from. Zero means
	// the time the genesis is applied.
	StartTime   uint64       `toml:"StartTime"`
	Vault       Vault        `toml:"Vault"`
	Access      Access       `toml:"Access"`
	Allocations []Allocation `toml:"Allocations"`
}
