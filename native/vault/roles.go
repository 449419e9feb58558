package vault

import "github.com/ethereum/go-ethereum/common"

// Role is the capability level the host grants a caller.
type Role uint8

const (
	RoleRegular Role = iota
	RoleRewarder
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleRewarder:
		return "rewarder"
	default:
		return "regular"
	}
}

// Caller describes who is invoking an operation. Identity and authorization
// are resolved by the host; the engine only inspects these flags.
type Caller struct {
	Address     common.Address
	Role        Role
	Blacklisted bool
}

// CanReward reports whether the caller may inject rewards. Admins are
// implicitly approved rewarders.
func (c Caller) CanReward() bool {
	return c.Role == RoleRewarder || c.Role == RoleAdmin
}

// IsAdmin reports whether the caller holds the admin capability.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}
