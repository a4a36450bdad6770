package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
	RoleAnalyst    = "analyst"
	RoleAgent      = "agent"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// Role groups used by the route table.
var (
	CallReaders      = []string{RoleSupervisor, RoleAnalyst, RoleAgent}
	Uploaders        = []string{RoleSupervisor, RoleAgent}
	AnalyticsReaders = []string{RoleSupervisor, RoleAnalyst}
)
