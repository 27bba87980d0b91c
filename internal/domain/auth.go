package domain

// Role classifies a caller's authority. The engine never verifies
// signatures; hosts authenticate however they like and mint a Capability.
type Role string

const (
	RoleTrader     Role = "trader"
	RoleAdmin      Role = "admin"
	RoleGovernance Role = "governance"
	RoleAggregator Role = "aggregator"
)

// Capability is an authenticated caller identity plus the attributes the
// engine's authority checks read. Reputation gates resolution proposals.
type Capability struct {
	Actor      string
	Role       Role
	Reputation int64
}

// Is reports whether the capability carries the given role.
func (c Capability) Is(role Role) bool {
	return c.Role == role
}

// CanGovern reports whether the capability may exercise governance
// authority. Admin subsumes governance.
func (c Capability) CanGovern() bool {
	return c.Role == RoleAdmin || c.Role == RoleGovernance
}
