package permissions

import "time"

type Action string

const (
	AppointmentsView   Action = "appointments:view"
	AppointmentsCreate Action = "appointments:create"
	AppointmentsEdit   Action = "appointments:edit"
	AppointmentsDelete Action = "appointments:delete"
	AppointmentsAssign Action = "appointments:assign"

	HomeRemediesCreate Action = "homeremedies:create"
	HomeRemediesEdit   Action = "homeremedies:edit"
	HomeRemediesDelete Action = "homeremedies:delete"

	PatientsView Action = "patients:view"

	PermissionsGrant Action = "permissions:grant"
)

var knownActions = map[Action]struct{}{
	AppointmentsView:   {},
	AppointmentsCreate: {},
	AppointmentsEdit:   {},
	AppointmentsDelete: {},
	AppointmentsAssign: {},
	HomeRemediesCreate: {},
	HomeRemediesEdit:   {},
	HomeRemediesDelete: {},
	PatientsView:       {},
	PermissionsGrant:   {},
}

// Known indica si la acción existe.
func Known(a Action) bool {
	_, ok := knownActions[a]
	return ok
}

// GlobalResource es el recurso de los grants a nivel colección/global.
const GlobalResource = "*"

// Grant es la arista (subject) -[action]-> (resource).
// Append-only: no hay update ni revoke.
type Grant struct {
	ID string

	Subject  string // _id del usuario
	Resource string // _id del documento o GlobalResource
	Action   Action

	CreatedAt time.Time
}

func (g Grant) Global() bool { return g.Resource == GlobalResource }
