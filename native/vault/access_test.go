package vault

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

type memoryRegistryState struct {
	kv map[string][]byte
}

func newMemoryRegistryState() *memoryRegistryState {
	return &memoryRegistryState{kv: make(map[string][]byte)}
}

func (m *memoryRegistryState) KVGet(key []byte, out interface{}) (bool, error) {
	encoded, ok := m.kv[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *memoryRegistryState) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.kv[string(key)] = encoded
	return nil
}

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func TestAccessRegistryInitAdminOnce(t *testing.T) {
	registry := NewAccessRegistry(newMemoryRegistryState())
	if err := registry.InitAdmin(common.Address{}); err == nil {
		t.Fatalf("expected zero admin rejected")
	}
	if err := registry.InitAdmin(addr(1)); err != nil {
		t.Fatalf("init admin: %v", err)
	}
	if err := registry.InitAdmin(addr(2)); err == nil {
		t.Fatalf("expected second init rejected")
	}
	admin, err := registry.Admin()
	if err != nil || admin != addr(1) {
		t.Fatalf("expected admin %s, got %s (%v)", addr(1).Hex(), admin.Hex(), err)
	}
}

func TestAccessRegistryResolveRoles(t *testing.T) {
	registry := NewAccessRegistry(newMemoryRegistryState())
	admin, rewarder, user := addr(1), addr(2), addr(3)
	if err := registry.InitAdmin(admin); err != nil {
		t.Fatalf("init admin: %v", err)
	}
	if err := registry.AddRewarder(admin, rewarder); err != nil {
		t.Fatalf("add rewarder: %v", err)
	}
	if err := registry.Blacklist(admin, user); err != nil {
		t.Fatalf("blacklist: %v", err)
	}

	caller, err := registry.Resolve(admin)
	if err != nil || caller.Role != RoleAdmin || !caller.CanReward() {
		t.Fatalf("expected admin capability, got %+v (%v)", caller, err)
	}
	caller, err = registry.Resolve(rewarder)
	if err != nil || caller.Role != RoleRewarder || caller.IsAdmin() {
		t.Fatalf("expected rewarder capability, got %+v (%v)", caller, err)
	}
	caller, err = registry.Resolve(user)
	if err != nil || caller.Role != RoleRegular || !caller.Blacklisted {
		t.Fatalf("expected blacklisted regular caller, got %+v (%v)", caller, err)
	}
}

func TestAccessRegistryRequiresAdmin(t *testing.T) {
	registry := NewAccessRegistry(newMemoryRegistryState())
	admin, other := addr(1), addr(9)
	if err := registry.InitAdmin(admin); err != nil {
		t.Fatalf("init admin: %v", err)
	}
	checks := map[string]error{
		"add rewarder": registry.AddRewarder(other, addr(2)),
		"blacklist":    registry.Blacklist(other, addr(3)),
		"pause":        registry.SetPaused(other, true),
		"transfer":     registry.TransferAdmin(other, other),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrNotAdmin) {
			t.Fatalf("%s: expected ErrNotAdmin, got %v", name, err)
		}
	}
	if registry.IsPaused() {
		t.Fatalf("unauthorised pause took effect")
	}
}

func TestAccessRegistryListMaintenance(t *testing.T) {
	registry := NewAccessRegistry(newMemoryRegistryState())
	admin := addr(1)
	if err := registry.InitAdmin(admin); err != nil {
		t.Fatalf("init admin: %v", err)
	}
	for _, b := range []byte{2, 3, 4} {
		if err := registry.AddRewarder(admin, addr(b)); err != nil {
			t.Fatalf("add rewarder %d: %v", b, err)
		}
	}
	if err := registry.AddRewarder(admin, addr(3)); !errors.Is(err, ErrAlreadyRewarder) {
		t.Fatalf("expected ErrAlreadyRewarder, got %v", err)
	}
	if err := registry.RemoveRewarder(admin, addr(3)); err != nil {
		t.Fatalf("remove rewarder: %v", err)
	}
	if err := registry.RemoveRewarder(admin, addr(3)); !errors.Is(err, ErrNotRewarderYet) {
		t.Fatalf("expected ErrNotRewarderYet, got %v", err)
	}
	rewarders, err := registry.Rewarders()
	if err != nil {
		t.Fatalf("rewarders: %v", err)
	}
	if len(rewarders) != 2 || rewarders[0] != addr(2) || rewarders[1] != addr(4) {
		t.Fatalf("unexpected rewarders %v", rewarders)
	}

	if err := registry.Blacklist(admin, addr(5)); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	if err := registry.Blacklist(admin, addr(5)); !errors.Is(err, ErrAlreadyBlacklisted) {
		t.Fatalf("expected ErrAlreadyBlacklisted, got %v", err)
	}
	if err := registry.Unblacklist(admin, addr(5)); err != nil {
		t.Fatalf("unblacklist: %v", err)
	}
	if err := registry.Unblacklist(admin, addr(5)); !errors.Is(err, ErrNotBlacklisted) {
		t.Fatalf("expected ErrNotBlacklisted, got %v", err)
	}
}

func TestAccessRegistryTransferAndPause(t *testing.T) {
	registry := NewAccessRegistry(newMemoryRegistryState())
	first, second := addr(1), addr(2)
	if err := registry.InitAdmin(first); err != nil {
		t.Fatalf("init admin: %v", err)
	}
	if err := registry.TransferAdmin(first, second); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := registry.SetPaused(first, true); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected previous admin rejected, got %v", err)
	}
	if err := registry.SetPaused(second, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !registry.IsPaused() {
		t.Fatalf("expected registry paused")
	}
}

func TestAccessRegistryFailsClosed(t *testing.T) {
	var registry *AccessRegistry
	if !registry.IsPaused() {
		t.Fatalf("expected nil registry to report paused")
	}
}
