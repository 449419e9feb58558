package vault

import (
	"errors"
	"fmt"

	nativevault "stakevault/native/vault"
)

// ErrGenesisApplied is returned when a store has already been initialised.
var ErrGenesisApplied = errors.New("vault store: genesis already applied")

type genesisMarker struct {
	StartTime uint64
}

// Initialised reports whether genesis has been applied to the store.
func (tx *Tx) Initialised() (bool, error) {
	return tx.decode(genesisKey, nil)
}

// ApplyGenesis writes the initial ledger, access registry and asset
// allocations. It fails if the store was already initialised.
func ApplyGenesis(tx *Tx, genesis nativevault.Genesis) error {
	if err := genesis.Validate(); err != nil {
		return err
	}
	initialised, err := tx.Initialised()
	if err != nil {
		return err
	}
	if initialised {
		return ErrGenesisApplied
	}
	ledger, err := nativevault.NewLedger(genesis.Params, genesis.StartTime)
	if err != nil {
		return err
	}
	if err := tx.PutLedger(ledger); err != nil {
		return err
	}
	registry := nativevault.NewAccessRegistry(tx)
	if err := registry.InitAdmin(genesis.Admin); err != nil {
		return err
	}
	for _, rewarder := range genesis.Rewarders {
		if err := registry.AddRewarder(genesis.Admin, rewarder); err != nil {
			return fmt.Errorf("vault store: rewarder %s: %w", rewarder.Hex(), err)
		}
	}
	for _, alloc := range genesis.Allocations {
		if err := tx.CreditAssets(alloc.Address, alloc.Assets); err != nil {
			return fmt.Errorf("vault store: allocation %s: %w", alloc.Address.Hex(), err)
		}
	}
	return tx.put(genesisKey, genesisMarker{StartTime: genesis.StartTime})
}
