package filing

import "github.com/dmitrijs2005/taxdesk/internal/common"

// Role is the capacity in which an actor touches a request.
type Role string

const (
	RoleOwner        Role = "owner"
	RoleProfessional Role = "professional"
	// RoleOperator stands in for the matching collaborator and may only
	// assign submitted requests.
	RoleOperator Role = "operator"
)

type transition struct {
	role Role
	from Status
	to   Status
}

var transitions = map[transition]struct{}{
	{RoleOwner, StatusSubmitted, StatusCancelled}:         {},
	{RoleProfessional, StatusAssigned, StatusProcessing}:  {},
	{RoleProfessional, StatusProcessing, StatusCompleted}: {},
	{RoleOperator, StatusSubmitted, StatusAssigned}:       {},
}

// CheckTransition validates a status change for role. It performs no I/O.
func CheckTransition(role Role, from, to Status) error {
	if _, ok := transitions[transition{role, from, to}]; !ok {
		return &common.IllegalTransitionError{From: string(from), To: string(to)}
	}
	return nil
}

// CanAdd reports whether role may attach files at status.
func CanAdd(role Role, status Status) bool {
	switch role {
	case RoleOwner:
		return status == StatusSubmitted || status == StatusAssigned || status == StatusProcessing
	case RoleProfessional:
		return status == StatusAssigned || status == StatusProcessing
	}
	return false
}

// CanDelete reports whether role may delete its own file at status. Only
// submitted requests allow deletion, and a professional is never engaged
// at that point.
func CanDelete(role Role, status Status) bool {
	return role == RoleOwner && status == StatusSubmitted
}

// CanEdit reports whether role may change the draft fields at status.
func CanEdit(role Role, status Status) bool {
	return role == RoleOwner && status == StatusSubmitted
}

// Actor is the explicit identity passed into every operation.
type Actor struct {
	UserID               string
	ProfessionalID       string
	VerifiedProfessional bool
	Operator             bool
}

// RoleFor resolves the actor's role on r; ok is false when the actor has
// no relationship with the request.
func (a Actor) RoleFor(r *Request) (Role, bool) {
	switch {
	case a.UserID != "" && r.OwnerID == a.UserID:
		return RoleOwner, true
	case a.VerifiedProfessional && r.AssignedTo(a.ProfessionalID):
		return RoleProfessional, true
	case a.Operator:
		return RoleOperator, true
	}
	return "", false
}

// UploaderID is the storage prefix for files the actor uploads in role.
func (a Actor) UploaderID(role Role) string {
	if role == RoleProfessional {
		return a.ProfessionalID
	}
	return a.UserID
}
