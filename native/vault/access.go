package vault

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrAlreadyRewarder    = errors.New("vault: address is already a rewarder")
	ErrNotRewarderYet     = errors.New("vault: address is not a rewarder")
	ErrAlreadyBlacklisted = errors.New("vault: address is already blacklisted")
	ErrNotBlacklisted     = errors.New("vault: address is not blacklisted")

	errRegistryNotInitialised = errors.New("vault: access registry not initialised")
	errAdminAlreadySet        = errors.New("vault: admin already initialised")
	errZeroAddress            = errors.New("vault: address required")
)

var accessKey = []byte("vault/access")

type registryState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// accessRecord is the persisted form of the registry.
type accessRecord struct {
	Admin     common.Address
	Rewarders []common.Address
	Blacklist []common.Address
	Paused    bool
}

// AccessRegistry keeps the admin, the approved rewarders, the blacklist and
// the pause switch. It resolves raw addresses into Caller capabilities.
type AccessRegistry struct {
	state registryState
}

// NewAccessRegistry constructs a registry backed by the provided state
// accessor.
func NewAccessRegistry(state registryState) *AccessRegistry {
	return &AccessRegistry{state: state}
}

func (r *AccessRegistry) load() (*accessRecord, error) {
	if r == nil || r.state == nil {
		return nil, errRegistryNotInitialised
	}
	var stored accessRecord
	if _, err := r.state.KVGet(accessKey, &stored); err != nil {
		return nil, fmt.Errorf("vault: load access record: %w", err)
	}
	return &stored, nil
}

func (r *AccessRegistry) store(record *accessRecord) error {
	return r.state.KVPut(accessKey, record)
}

func (r *AccessRegistry) mutate(caller common.Address, fn func(*accessRecord) error) error {
	record, err := r.load()
	if err != nil {
		return err
	}
	if record.Admin == (common.Address{}) || record.Admin != caller {
		return ErrNotAdmin
	}
	if err := fn(record); err != nil {
		return err
	}
	return r.store(record)
}

// InitAdmin assigns the first admin. It succeeds only once.
func (r *AccessRegistry) InitAdmin(admin common.Address) error {
	if admin == (common.Address{}) {
		return errZeroAddress
	}
	record, err := r.load()
	if err != nil {
		return err
	}
	if record.Admin != (common.Address{}) {
		return errAdminAlreadySet
	}
	record.Admin = admin
	return r.store(record)
}

// Admin returns the current admin address.
func (r *AccessRegistry) Admin() (common.Address, error) {
	record, err := r.load()
	if err != nil {
		return common.Address{}, err
	}
	return record.Admin, nil
}

// TransferAdmin hands the admin capability to next.
func (r *AccessRegistry) TransferAdmin(caller, next common.Address) error {
	if next == (common.Address{}) {
		return errZeroAddress
	}
	return r.mutate(caller, func(record *accessRecord) error {
		record.Admin = next
		return nil
	})
}

// AddRewarder approves addr as a reward source.
func (r *AccessRegistry) AddRewarder(caller, addr common.Address) error {
	if addr == (common.Address{}) {
		return errZeroAddress
	}
	return r.mutate(caller, func(record *accessRecord) error {
		if indexOf(record.Rewarders, addr) >= 0 {
			return ErrAlreadyRewarder
		}
		record.Rewarders = append(record.Rewarders, addr)
		return nil
	})
}

// RemoveRewarder revokes addr as a reward source.
func (r *AccessRegistry) RemoveRewarder(caller, addr common.Address) error {
	return r.mutate(caller, func(record *accessRecord) error {
		idx := indexOf(record.Rewarders, addr)
		if idx < 0 {
			return ErrNotRewarderYet
		}
		record.Rewarders = removeAt(record.Rewarders, idx)
		return nil
	})
}

// Blacklist prevents addr from staking or unstaking.
func (r *AccessRegistry) Blacklist(caller, addr common.Address) error {
	if addr == (common.Address{}) {
		return errZeroAddress
	}
	return r.mutate(caller, func(record *accessRecord) error {
		if indexOf(record.Blacklist, addr) >= 0 {
			return ErrAlreadyBlacklisted
		}
		record.Blacklist = append(record.Blacklist, addr)
		return nil
	})
}

// Unblacklist lifts a previous Blacklist.
func (r *AccessRegistry) Unblacklist(caller, addr common.Address) error {
	return r.mutate(caller, func(record *accessRecord) error {
		idx := indexOf(record.Blacklist, addr)
		if idx < 0 {
			return ErrNotBlacklisted
		}
		record.Blacklist = removeAt(record.Blacklist, idx)
		return nil
	})
}

// SetPaused flips the module-wide pause switch.
func (r *AccessRegistry) SetPaused(caller common.Address, paused bool) error {
	return r.mutate(caller, func(record *accessRecord) error {
		record.Paused = paused
		return nil
	})
}

// IsPaused satisfies PauseView. Lookup failures are reported as paused so a
// broken registry never lets mutations through.
func (r *AccessRegistry) IsPaused() bool {
	record, err := r.load()
	if err != nil {
		return true
	}
	return record.Paused
}

// Rewarders returns a copy of the approved rewarder list.
func (r *AccessRegistry) Rewarders() ([]common.Address, error) {
	record, err := r.load()
	if err != nil {
		return nil, err
	}
	return append([]common.Address(nil), record.Rewarders...), nil
}

// Resolve converts addr into the capability the engine checks.
func (r *AccessRegistry) Resolve(addr common.Address) (Caller, error) {
	record, err := r.load()
	if err != nil {
		return Caller{}, err
	}
	caller := Caller{
		Address:     addr,
		Role:        RoleRegular,
		Blacklisted: indexOf(record.Blacklist, addr) >= 0,
	}
	switch {
	case record.Admin != (common.Address{}) && record.Admin == addr:
		caller.Role = RoleAdmin
	case indexOf(record.Rewarders, addr) >= 0:
		caller.Role = RoleRewarder
	}
	return caller, nil
}

func indexOf(list []common.Address, addr common.Address) int {
	for i, entry := range list {
		if entry == addr {
			return i
		}
	}
	return -1
}

func removeAt(list []common.Address, idx int) []common.Address {
	out := make([]common.Address, 0, len(list)-1)
	out = append(out, list[:idx]...)
	return append(out, list[idx+1:]...)
}
