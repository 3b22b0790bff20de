// Package approval owns the service record lifecycle: creation by the
// counting unit, edits while pending, role sign-offs and rejection.
//
// There is a single status machine. A record becomes approved once every
// role in Policy.RequiredSignoffs has signed it; with the default policy
// that is the approver alone, while {counting_unit, approver, receiver}
// gives three independent sign-offs in any order.
package approval

import (
	"fmt"
	"slices"

	"churchledger/internal/core"
)

type Policy struct {
	// ApproverRoles may reject a pending record.
	ApproverRoles []core.Role
	// RequiredSignoffs must all sign before a record is approved.
	RequiredSignoffs []core.Role
	// EditorRoles may create and save records.
	EditorRoles []core.Role
	// ResubmitOnSave sends a rejected record back to pending when it is saved.
	ResubmitOnSave bool
}

func DefaultPolicy() Policy {
	return Policy{
		ApproverRoles:    []core.Role{core.RoleApprover, core.RoleAdmin},
		RequiredSignoffs: []core.Role{core.RoleApprover},
		EditorRoles:      []core.Role{core.RoleCountingUnit, core.RoleAdmin},
		ResubmitOnSave:   true,
	}
}

// ThreeRolePolicy requires the counting unit, approver and receiver to sign.
func ThreeRolePolicy() Policy {
	p := DefaultPolicy()
	p.RequiredSignoffs = []core.Role{core.RoleCountingUnit, core.RoleApprover, core.RoleReceiver}
	return p
}

func (p Policy) Validate() error {
	if len(p.RequiredSignoffs) == 0 {
		return fmt.Errorf("at least one required sign-off role is needed")
	}
	if len(p.ApproverRoles) == 0 {
		return fmt.Errorf("at least one approver role is needed")
	}
	if len(p.EditorRoles) == 0 {
		return fmt.Errorf("at least one editor role is needed")
	}
	seen := map[core.Role]bool{}
	for _, r := range p.RequiredSignoffs {
		if r == core.RoleAdmin {
			return fmt.Errorf("admin cannot be a required sign-off; it signs on behalf of other roles")
		}
		if seen[r] {
			return fmt.Errorf("duplicate required sign-off role %q", r)
		}
		seen[r] = true
	}
	return nil
}

func (p Policy) canEdit(r core.Role) bool   { return slices.Contains(p.EditorRoles, r) }
func (p Policy) canReject(r core.Role) bool { return slices.Contains(p.ApproverRoles, r) }

// canSign reports whether the role can ever add a sign-off.
func (p Policy) canSign(r core.Role) bool {
	return r == core.RoleAdmin || slices.Contains(p.RequiredSignoffs, r)
}

// signingRole resolves which required role the actor signs for. Admin
// signs the first required role still missing.
func (p Policy) signingRole(actor core.Role, rec *core.ServiceRecord) (core.Role, bool) {
	if slices.Contains(p.RequiredSignoffs, actor) {
		return actor, true
	}
	if actor != core.RoleAdmin {
		return "", false
	}
	for _, r := range p.RequiredSignoffs {
		if !rec.Signed(r) {
			return r, true
		}
	}
	return "", false
}

// complete reports whether every required role has signed.
func (p Policy) complete(rec *core.ServiceRecord) bool {
	for _, r := range p.RequiredSignoffs {
		if !rec.Signed(r) {
			return false
		}
	}
	return true
}

// Outstanding lists required roles that have not signed yet.
func (p Policy) Outstanding(rec *core.ServiceRecord) []core.Role {
	var out []core.Role
	for _, r := range p.RequiredSignoffs {
		if !rec.Signed(r) {
			out = append(out, r)
		}
	}
	return out
}
