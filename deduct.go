package punchcard

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/xraph/punchcard/catalog"
	"github.com/xraph/punchcard/id"
	"github.com/xraph/punchcard/pack"
	"github.com/xraph/punchcard/store"
)

// DeductParams describes one billable item to cover from a prepaid package.
type DeductParams struct {
	OrgID    string
	MemberID string
	// ItemKind is the billable item kind to cover (e.g. "private_lesson").
	ItemKind string
	// ItemID references the billable item being covered.
	ItemID  string
	ActorID string
}

// Deduct attempts to cover one billable item from the member's prepaid
// packages, preferring member-owned packages over group-shared ones and
// older purchases over newer ones. A member with no applicable package is
// not an error: the result reports Covered=false so the caller can fall
// back to regular invoicing.
//
// The unit decrement and the deduction ledger entry commit in a single
// optimistic transaction; on a conflict with a concurrent deduction the
// whole search-then-deduct sequence is retried a bounded number of times.
func (e *Engine) Deduct(ctx context.Context, params DeductParams) (*pack.DeductionResult, error) {
	if params.OrgID == "" {
		return nil, ValidationError{Field: "org_id", Message: "required"}
	}
	if params.MemberID == "" {
		return nil, ValidationError{Field: "member_id", Message: "required"}
	}
	if params.ItemKind == "" {
		return nil, ValidationError{Field: "item_kind", Message: "required"}
	}

	res, err := retryOnConflict(ctx, e.conflictRetries, func() (*pack.DeductionResult, error) {
		return e.deductOnce(ctx, params)
	})
	if err != nil {
		return nil, err
	}

	if !res.Covered {
		e.plugins.EmitCoverageMissed(ctx, params.OrgID, params.MemberID, params.ItemKind)
		e.logger.Debug("no package coverage",
			"org_id", params.OrgID,
			"member_id", params.MemberID,
			"item_kind", params.ItemKind,
			"reason", res.Reason,
		)
		return res, nil
	}

	e.plugins.EmitUnitsDeducted(ctx, res.Package, res.Deduction)
	if res.Package.Status == pack.StatusDepleted {
		e.plugins.EmitPackageDepleted(ctx, res.Package)
	}
	e.logger.Debug("unit deducted",
		"package_id", res.Package.ID,
		"member_id", params.MemberID,
		"item_kind", params.ItemKind,
		"remaining", res.Package.RemainingUnits,
	)
	return res, nil
}

// deductOnce runs one search-then-deduct attempt.
func (e *Engine) deductOnce(ctx context.Context, params DeductParams) (*pack.DeductionResult, error) {
	now := time.Now().UTC()

	candidate, err := e.findCandidate(ctx, params, now)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		return &pack.DeductionResult{
			Covered: false,
			Reason:  "no active package covers " + params.ItemKind,
		}, nil
	}

	var result *pack.DeductionResult
	err = e.store.Txn(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.GetMemberPackage(ctx, candidate.ID)
		if err != nil {
			return err
		}
		// The candidate was found on a snapshot read; a concurrent
		// deduction, cancellation, or expiry may have invalidated it.
		if !p.Deductible(now) {
			result = &pack.DeductionResult{
				Covered: false,
				Reason:  "package " + p.ID.String() + " no longer deductible",
			}
			return nil
		}

		p.RemainingUnits--
		if p.RemainingUnits == 0 {
			p.Status = pack.StatusDepleted
		}
		p.Touch()
		if err := tx.PutMemberPackage(ctx, p); err != nil {
			return err
		}

		d := &pack.Deduction{
			ID:              id.NewDeductionID(),
			MemberPackageID: p.ID,
			OrgID:           params.OrgID,
			MemberID:        params.MemberID,
			Units:           1,
			ItemKind:        params.ItemKind,
			ItemID:          params.ItemID,
			ActorID:         params.ActorID,
			At:              now,
		}
		if err := tx.AppendDeduction(ctx, d); err != nil {
			return err
		}

		result = &pack.DeductionResult{Covered: true, Package: p, Deduction: d}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// findCandidate searches the member's own active packages first, then
// packages shared through the member's billing groups. Within each tier the
// oldest purchase wins so packages drain first-bought-first.
func (e *Engine) findCandidate(ctx context.Context, params DeductParams, now time.Time) (*pack.MemberPackage, error) {
	defs := map[id.DefinitionID]*catalog.PackageDefinition{}

	own, err := e.store.ListMemberPackages(ctx, params.OrgID, params.MemberID, pack.ListOpts{Status: pack.StatusActive})
	if err != nil {
		return nil, err
	}
	if c, err := e.pickOldest(ctx, own, params.ItemKind, now, defs, false); err != nil || c != nil {
		return c, err
	}

	groups, err := e.store.ListGroupsForMember(ctx, params.OrgID, params.MemberID)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		shared, err := e.store.ListGroupPackages(ctx, params.OrgID, g.ID, pack.ListOpts{Status: pack.StatusActive})
		if err != nil {
			return nil, err
		}
		if c, err := e.pickOldest(ctx, shared, params.ItemKind, now, defs, true); err != nil || c != nil {
			return c, err
		}
	}

	return nil, nil
}

// pickOldest returns the oldest-purchased deductible package whose
// definition covers kind, or nil. Group-shared candidates additionally
// require the definition to allow transfer within groups.
func (e *Engine) pickOldest(ctx context.Context, pkgs []*pack.MemberPackage, kind string, now time.Time,
	defs map[id.DefinitionID]*catalog.PackageDefinition, shared bool) (*pack.MemberPackage, error) {

	var best *pack.MemberPackage
	for _, p := range pkgs {
		if !p.Deductible(now) {
			continue
		}

		def, ok := defs[p.DefinitionID]
		if !ok {
			var err error
			def, err = e.store.GetDefinition(ctx, p.DefinitionID)
			if err != nil {
				return nil, err
			}
			defs[p.DefinitionID] = def
		}
		if !def.Covers(kind) {
			continue
		}
		if shared && !def.TransferableWithinGroup {
			continue
		}

		if best == nil || p.PurchasedAt.Before(best.PurchasedAt) {
			best = p
		}
	}
	return best, nil
}

// ManualDeductParams describes an administrative multi-unit deduction.
type ManualDeductParams struct {
	OrgID     string
	PackageID id.MemberPackageID
	Units     int64
	// ItemID optionally references what the units were consumed for.
	ItemID  string
	ActorID string
}

// DeductManual consumes an arbitrary positive unit count from a specific
// package, for administrative corrections. It bypasses the coverage search
// but keeps the same transactional guard as Deduct.
func (e *Engine) DeductManual(ctx context.Context, params ManualDeductParams) (*pack.DeductionResult, error) {
	if err := e.authorize(ctx, params.OrgID, params.ActorID); err != nil {
		return nil, err
	}
	if params.Units <= 0 {
		return nil, ErrInvalidUnits
	}

	now := time.Now().UTC()
	res, err := retryOnConflict(ctx, e.conflictRetries, func() (*pack.DeductionResult, error) {
		var result *pack.DeductionResult
		err := e.store.Txn(ctx, func(ctx context.Context, tx store.Tx) error {
			p, err := tx.GetMemberPackage(ctx, params.PackageID)
			if err != nil {
				return err
			}
			if p.OrgID != params.OrgID {
				return ErrPackageNotFound
			}
			if p.Status != pack.StatusActive || p.ExpiredAt(now) {
				return ErrPackageNotActive
			}
			if params.Units > p.RemainingUnits {
				return ErrInvalidUnits
			}

			p.RemainingUnits -= params.Units
			if p.RemainingUnits == 0 {
				p.Status = pack.StatusDepleted
			}
			p.Touch()
			if err := tx.PutMemberPackage(ctx, p); err != nil {
				return err
			}

			d := &pack.Deduction{
				ID:              id.NewDeductionID(),
				MemberPackageID: p.ID,
				OrgID:           p.OrgID,
				MemberID:        p.MemberID,
				Units:           params.Units,
				ItemID:          params.ItemID,
				ActorID:         params.ActorID,
				At:              now,
			}
			if err := tx.AppendDeduction(ctx, d); err != nil {
				return err
			}

			result = &pack.DeductionResult{Covered: true, Package: p, Deduction: d}
			return nil
		})
		return result, err
	})
	if err != nil {
		return nil, err
	}

	e.plugins.EmitUnitsDeducted(ctx, res.Package, res.Deduction)
	if res.Package.Status == pack.StatusDepleted {
		e.plugins.EmitPackageDepleted(ctx, res.Package)
	}
	return res, nil
}

// retryOnConflict re-runs op after optimistic transaction conflicts with
// exponential backoff, up to maxTries attempts. Any other error is
// permanent and returned immediately.
func retryOnConflict[T any](ctx context.Context, maxTries uint, op func() (T, error)) (T, error) {
	attempt := func() (T, error) {
		v, err := op()
		if err != nil && !errors.Is(err, ErrTxnConflict) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = 100 * time.Millisecond

	return backoff.Retry(ctx, attempt,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(maxTries),
	)
}
