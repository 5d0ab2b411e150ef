// Package auth implements the session core of the piminder service: the
// five-bit permission model, the signed-token codec, and the token
// authenticator with sliding-window rotation.
package auth

// Capability names one boolean permission flag. Capabilities are an
// explicit enumeration mapped through a fixed table rather than any kind
// of reflective field lookup.
type Capability int

const (
	CapActive Capability = iota // account is enabled at all
	CapReport                   // may use the reporting API (list/ack/delete)
	CapCommand                  // may issue commands
	CapGrant                    // may manage client grants
	CapAdmin                    // may manage user accounts
)

// Permission levels used by the simpler threshold-based endpoints.
const (
	LevelService = 1
	LevelMonitor = 2
	LevelAdmin   = 3
)

// Permissions is the decoded form of a subject's five-bit access field.
// The JSON tags give the external shape used on the users API.
type Permissions struct {
	Active  bool `json:"active"`
	Report  bool `json:"useReportingApi"`
	Command bool `json:"canIssueCommands"`
	Grant   bool `json:"canModifyClients"`
	Admin   bool `json:"isUserAdmin"`
}

// Bit positions within the five-bit field, most significant bit first:
// active, report, command, grant, admin. The width is fixed; raw values
// above 31 do not occur and the high bits of the byte are ignored on
// decode so a short value can never mis-align to the wrong flags.
const (
	bitActive  = 1 << 4
	bitReport  = 1 << 3
	bitCommand = 1 << 2
	bitGrant   = 1 << 1
	bitAdmin   = 1 << 0
)

// DecodePermissions expands the persisted integer into flags.
func DecodePermissions(raw uint8) Permissions {
	return Permissions{
		Active:  raw&bitActive != 0,
		Report:  raw&bitReport != 0,
		Command: raw&bitCommand != 0,
		Grant:   raw&bitGrant != 0,
		Admin:   raw&bitAdmin != 0,
	}
}

// Encode collapses the flags back into the persisted integer. Encode is
// the exact inverse of DecodePermissions for all 32 possible values.
func (p Permissions) Encode() uint8 {
	var raw uint8
	if p.Active {
		raw |= bitActive
	}
	if p.Report {
		raw |= bitReport
	}
	if p.Command {
		raw |= bitCommand
	}
	if p.Grant {
		raw |= bitGrant
	}
	if p.Admin {
		raw |= bitAdmin
	}
	return raw
}

// Has reports whether the named capability is set.
func (p Permissions) Has(c Capability) bool {
	switch c {
	case CapActive:
		return p.Active
	case CapReport:
		return p.Report
	case CapCommand:
		return p.Command
	case CapGrant:
		return p.Grant
	case CapAdmin:
		return p.Admin
	default:
		return false
	}
}

// Level collapses the flags into the coarse integer threshold used by
// the level-based endpoints. An inactive subject has level 0 and passes
// no threshold.
func (p Permissions) Level() int {
	if !p.Active {
		return 0
	}
	switch {
	case p.Admin:
		return LevelAdmin
	case p.Report:
		return LevelMonitor
	default:
		return LevelService
	}
}

// levelNames maps the friendly level strings accepted on the users API
// to their integer thresholds.
var levelNames = map[string]int{
	"service": LevelService,
	"monitor": LevelMonitor,
	"admin":   LevelAdmin,
}

// LevelFromName resolves a friendly level name. The second return is
// false for anything outside service/monitor/admin.
func LevelFromName(name string) (int, bool) {
	lvl, ok := levelNames[name]
	return lvl, ok
}

// LevelName returns the friendly string for a level, or "" when the
// level is outside the known range.
func LevelName(level int) string {
	for name, lvl := range levelNames {
		if lvl == level {
			return name
		}
	}
	return ""
}

// PermissionsForLevel returns the preset flag combination granted when a
// user is created through the level-based surface.
func PermissionsForLevel(level int) Permissions {
	switch level {
	case LevelAdmin:
		return Permissions{Active: true, Report: true, Command: true, Grant: true, Admin: true}
	case LevelMonitor:
		return Permissions{Active: true, Report: true}
	case LevelService:
		return Permissions{Active: true}
	default:
		return Permissions{}
	}
}
