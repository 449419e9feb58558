package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	defaultVestingPeriod = "8h"
	defaultCooldown      = "168h"
	defaultMaxCooldown   = "2160h"
)

// LoadGenesis reads a toml genesis file and fills in defaults.
func LoadGenesis(path string) (*Genesis, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("genesis file %s: %w", path, err)
	}
	g := &Genesis{}
	meta, err := toml.DecodeFile(path, g)
	if err != nil {
		return nil, err
	}
	if err := rejectUndecoded(meta); err != nil {
		return nil, fmt.Errorf("genesis file %s: %w", path, err)
	}
	g.normalize()
	return g, nil
}

// ParseGenesis decodes genesis contents held in memory. Unknown keys are
// rejected as in LoadGenesis.
func ParseGenesis(contents string) (*Genesis, error) {
	g := &Genesis{}
	meta, err := toml.Decode(contents, g)
	if err != nil {
		return nil, err
	}
	if err := rejectUndecoded(meta); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}
	g.normalize()
	return g, nil
}

func rejectUndecoded(meta toml.MetaData) error {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown field %s", undecoded[0].String())
	}
	return nil
}

func (g *Genesis) normalize() {
	g.Vault.VestingPeriod = strings.TrimSpace(g.Vault.VestingPeriod)
	if g.Vault.VestingPeriod == "" {
		g.Vault.VestingPeriod = defaultVestingPeriod
	}
	g.Vault.Cooldown = strings.TrimSpace(g.Vault.Cooldown)
	if g.Vault.Cooldown == "" {
		g.Vault.Cooldown = defaultCooldown
	}
	g.Vault.MaxCooldown = strings.TrimSpace(g.Vault.MaxCooldown)
	if g.Vault.MaxCooldown == "" {
		g.Vault.MaxCooldown = defaultMaxCooldown
	}
	g.Access.Admin = strings.TrimSpace(g.Access.Admin)
	for i := range g.Access.Rewarders {
		g.Access.Rewarders[i] = strings.TrimSpace(g.Access.Rewarders[i])
	}
	for i := range g.Allocations {
		g.Allocations[i].Address = strings.TrimSpace(g.Allocations[i].Address)
	}
}
