package vault

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypeStaked is emitted when assets are deposited and shares minted.
	TypeStaked = "vault.staked"
	// TypeUnstakeStarted is emitted when shares are burned into a cooldown entry.
	TypeUnstakeStarted = "vault.unstakeStarted"
	// TypeSettled is emitted when matured cooldown entries become available.
	TypeSettled = "vault.settled"
	// TypeWithdrawn is emitted when matured assets leave the vault.
	TypeWithdrawn = "vault.withdrawn"
	// TypeRewarded is emitted when a reward restarts the vesting window.
	TypeRewarded = "vault.rewarded"
	// TypeCooldownUpdated is emitted when the admin changes the cooldown.
	TypeCooldownUpdated = "vault.cooldownUpdated"
	// TypeVestingPeriodUpdated is emitted when the admin changes the window.
	TypeVestingPeriodUpdated = "vault.vestingPeriodUpdated"
	// TypeCooldownsRefreshed is emitted when pending maturities are shortened.
	TypeCooldownsRefreshed = "vault.cooldownsRefreshed"

	TypeRewarderAdded    = "vault.rewarderAdded"
	TypeRewarderRemoved  = "vault.rewarderRemoved"
	TypeBlacklisted      = "vault.blacklisted"
	TypeUnblacklisted    = "vault.unblacklisted"
	TypeAdminTransferred = "vault.adminTransferred"
	TypePauseUpdated     = "vault.pauseUpdated"
)

// Event is the flattened representation handed to journals and indexers.
type Event struct {
	Type       string
	Attributes map[string]string
}

// Account returns the address attribute when the event concerns an account.
func (e Event) Account() string {
	if e.Attributes == nil {
		return ""
	}
	return e.Attributes["account"]
}

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

// Staked captures a completed deposit.
type Staked struct {
	Account     common.Address
	Assets      uint64
	Shares      uint64
	TotalAssets uint64
	Timestamp   uint64
}

// Event converts the payload into a broadcastable event.
func (e Staked) Event() Event {
	return Event{Type: TypeStaked, Attributes: map[string]string{
		"account":     e.Account.Hex(),
		"assets":      formatUint(e.Assets),
		"shares":      formatUint(e.Shares),
		"totalAssets": formatUint(e.TotalAssets),
		"timestamp":   formatUint(e.Timestamp),
	}}
}

// UnstakeStarted captures shares burned into a cooldown entry.
type UnstakeStarted struct {
	Account     common.Address
	Shares      uint64
	Assets      uint64
	Maturity    uint64
	TotalAssets uint64
	Timestamp   uint64
}

// Event converts the payload into a broadcastable event.
func (e UnstakeStarted) Event() Event {
	return Event{Type: TypeUnstakeStarted, Attributes: map[string]string{
		"account":     e.Account.Hex(),
		"shares":      formatUint(e.Shares),
		"assets":      formatUint(e.Assets),
		"maturity":    formatUint(e.Maturity),
		"totalAssets": formatUint(e.TotalAssets),
		"timestamp":   formatUint(e.Timestamp),
	}}
}

// Settled captures matured entries moving into the available balance.
type Settled struct {
	Account   common.Address
	Released  uint64
	Available uint64
	Timestamp uint64
}

// Event converts the payload into a broadcastable event.
func (e Settled) Event() Event {
	return Event{Type: TypeSettled, Attributes: map[string]string{
		"account":   e.Account.Hex(),
		"released":  formatUint(e.Released),
		"available": formatUint(e.Available),
		"timestamp": formatUint(e.Timestamp),
	}}
}

// Withdrawn captures matured assets paid out to the owner.
type Withdrawn struct {
	Account   common.Address
	Assets    uint64
	Available uint64
	Timestamp uint64
}

// Event converts the payload into a broadcastable event.
func (e Withdrawn) Event() Event {
	return Event{Type: TypeWithdrawn, Attributes: map[string]string{
		"account":   e.Account.Hex(),
		"assets":    formatUint(e.Assets),
		"available": formatUint(e.Available),
		"timestamp": formatUint(e.Timestamp),
	}}
}

// Rewarded captures a reward injection.
type Rewarded struct {
	Rewarder    common.Address
	Amount      uint64
	TotalAssets uint64
	VestingEnd  uint64
	Timestamp   uint64
}

// Event converts the payload into a broadcastable event.
func (e Rewarded) Event() Event {
	return Event{Type: TypeRewarded, Attributes: map[string]string{
		"account":     e.Rewarder.Hex(),
		"amount":      formatUint(e.Amount),
		"totalAssets": formatUint(e.TotalAssets),
		"vestingEnd":  formatUint(e.VestingEnd),
		"timestamp":   formatUint(e.Timestamp),
	}}
}

// ConfigUpdated captures an admin change to cooldown or vesting period.
type ConfigUpdated struct {
	Kind     string
	Admin    common.Address
	Previous uint64
	Current  uint64
}

// Event converts the payload into a broadcastable event.
func (e ConfigUpdated) Event() Event {
	return Event{Type: e.Kind, Attributes: map[string]string{
		"account":  e.Admin.Hex(),
		"previous": formatUint(e.Previous),
		"current":  formatUint(e.Current),
	}}
}

// CooldownsRefreshed captures an admin-triggered maturity refresh.
type CooldownsRefreshed struct {
	Account   common.Address
	Updated   int
	Cooldown  uint64
	Timestamp uint64
}

// Event converts the payload into a broadcastable event.
func (e CooldownsRefreshed) Event() Event {
	return Event{Type: TypeCooldownsRefreshed, Attributes: map[string]string{
		"account":   e.Account.Hex(),
		"updated":   strconv.Itoa(e.Updated),
		"cooldown":  formatUint(e.Cooldown),
		"timestamp": formatUint(e.Timestamp),
	}}
}

// AccessUpdated captures an admin change to the access registry. Subject is
// the address the change applies to.
type AccessUpdated struct {
	Kind    string
	Admin   common.Address
	Subject common.Address
	Paused  bool
}

// Event converts the payload into a broadcastable event.
func (e AccessUpdated) Event() Event {
	attrs := map[string]string{
		"account": e.Admin.Hex(),
	}
	if e.Kind == TypePauseUpdated {
		attrs["paused"] = strconv.FormatBool(e.Paused)
	} else {
		attrs["subject"] = e.Subject.Hex()
	}
	return Event{Type: e.Kind, Attributes: attrs}
}
