package authz

// permission is one row of the role permission table.
type permission struct {
	readOthers   bool
	modifyOthers bool
	deleteOthers bool
}

// permissionTable is the fixed role-keyed permission table. Roles not in
// the table have no permissions on resources they do not own.
//
// Note that the manager's modifyOthers flag exists but is overridden by the
// update rule, which restricts cross-user modification to admins. The table
// records the legacy policy; the engine enforces the stricter one.
var permissionTable = map[string]permission{
	"admin":    {readOthers: true, modifyOthers: true, deleteOthers: true},
	"manager":  {readOthers: true, modifyOthers: false, deleteOthers: false},
	"employee": {readOthers: false, modifyOthers: false, deleteOthers: false},
}

const roleAdmin = "admin"

// lookupPermission returns the permission row for a role. Unknown roles get
// the zero permission, never an error.
func lookupPermission(role string) permission {
	return permissionTable[role]
}
