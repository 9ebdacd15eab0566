package assignment

import (
	"fmt"

	"github.com/trezcool/homeschool/core"
)

type transitionRule struct {
	roles []core.Role
	next  []Status
}

// transitions maps a status to who may move an assignment out of it, and where to.
var transitions = map[Status]transitionRule{
	StatusAssigned: {
		roles: []core.Role{core.RoleStudent},
		next:  []Status{StatusCompleted},
	},
	StatusCompleted: { // return for revision
		roles: []core.Role{core.RoleParent, core.RoleSuperAdmin},
		next:  []Status{StatusAssigned},
	},
}

type TransitionReason int

const (
	ReasonUnknownStatus TransitionReason = iota + 1
	ReasonRoleNotPermitted
	ReasonStatusNotPermitted
)

// TransitionError reports an illegal status change. Nothing was written.
type TransitionError struct {
	From   Status
	To     Status
	Role   core.Role
	Reason TransitionReason
}

func (err TransitionError) Error() string {
	switch err.Reason {
	case ReasonUnknownStatus:
		return fmt.Sprintf("assignment has an unknown status %q", err.From)
	case ReasonRoleNotPermitted:
		return fmt.Sprintf("role %s cannot change the status of %s assignments", err.Role, err.From)
	default:
		return fmt.Sprintf("cannot move an assignment from %s to %s", err.From, err.To)
	}
}

// CanTransition reports whether role may move an assignment from current to requested.
func CanTransition(current, requested Status, role core.Role) bool {
	return checkTransition(current, requested, role) == nil
}

func checkTransition(current, requested Status, role core.Role) error {
	rule, ok := transitions[current]
	if !ok {
		return &TransitionError{From: current, To: requested, Role: role, Reason: ReasonUnknownStatus}
	}
	if !containsRole(rule.roles, role) {
		return &TransitionError{From: current, To: requested, Role: role, Reason: ReasonRoleNotPermitted}
	}
	for _, st := range rule.next {
		if st == requested {
			return nil
		}
	}
	return &TransitionError{From: current, To: requested, Role: role, Reason: ReasonStatusNotPermitted}
}

func containsRole(roles []core.Role, role core.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
