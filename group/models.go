// Package group defines billing groups: sets of members who may share
// transferable prepaid packages.
package group

import (
	"github.com/xraph/punchcard/id"
	"github.com/xraph/punchcard/types"
)

// BillingGroup is a set of members who may consume each other's
// group-owned, transferable packages. The group itself never mutates
// package state; only the deduction and cancellation paths do.
type BillingGroup struct {
	types.Entity
	ID        id.GroupID `json:"id"`
	OrgID     string     `json:"org_id"`
	Name      string     `json:"name"`
	MemberIDs []string   `json:"member_ids"`
}

// Contains reports whether the group includes the given member.
func (g *BillingGroup) Contains(memberID string) bool {
	for _, m := range g.MemberIDs {
		if m == memberID {
			return true
		}
	}
	return false
}
