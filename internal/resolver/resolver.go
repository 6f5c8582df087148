// Package resolver deduplicates the phone numbers and IP addresses seen
// during one import into persisted entities.
package resolver

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/operis/record-ingestion/internal/database"
	"github.com/operis/record-ingestion/internal/processor"
)

// Resolver resolves phone and IP references for one import run. Both caches
// live exactly as long as one document-processing call and are never shared
// across imports; IP identity is global while phone identity is scoped to
// the operation.
type Resolver struct {
	phones      database.PhoneStore
	ips         database.IPStore
	operationID int64
	logger      *logrus.Logger

	ipCache    map[string]int64
	phoneCache map[string]*cachedPhone
}

type cachedPhone struct {
	id   int64
	role string
}

// New creates a resolver for a single import run.
func New(phones database.PhoneStore, ips database.IPStore, operationID int64, logger *logrus.Logger) *Resolver {
	return &Resolver{
		phones:      phones,
		ips:         ips,
		operationID: operationID,
		logger:      logger,
		ipCache:     make(map[string]int64),
		phoneCache:  make(map[string]*cachedPhone),
	}
}

// Resolve resolves the record's IP to an entity id and upserts every
// phone-bearing role. Storage errors are fatal for the current record; the
// orchestrator aborts the whole document on them.
func (r *Resolver) Resolve(ctx context.Context, record *processor.Record) (int64, error) {
	ipID, err := r.ResolveIP(ctx, record.IPAddress)
	if err != nil {
		return 0, err
	}

	for _, role := range []struct {
		number   string
		isTarget bool
	}{
		{record.Target, true},
		{record.Sender, false},
		{record.Recipient, false},
	} {
		if role.number == "" {
			continue
		}
		if err := r.resolvePhone(ctx, role.number, role.isTarget); err != nil {
			return 0, err
		}
	}

	return ipID, nil
}

// ResolveIP returns the entity id for an address, creating the entity with
// only the address populated on first sight. Lookup is global: the same
// address seen in two operations is the same entity.
func (r *Resolver) ResolveIP(ctx context.Context, address string) (int64, error) {
	if id, ok := r.ipCache[address]; ok {
		return id, nil
	}

	existing, err := r.ips.FindByAddress(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("failed to look up IP %q: %w", address, err)
	}

	if existing != nil {
		r.ipCache[address] = existing.ID
		return existing.ID, nil
	}

	id, err := r.ips.Insert(ctx, address)
	if err != nil {
		// A concurrent import may have created the row between our lookup
		// and insert; fetch the winner instead of failing.
		if database.IsUniqueViolation(err) {
			return r.fetchRacedIP(ctx, address)
		}
		return 0, fmt.Errorf("failed to create IP %q: %w", address, err)
	}

	r.ipCache[address] = id
	return id, nil
}

func (r *Resolver) fetchRacedIP(ctx context.Context, address string) (int64, error) {
	existing, err := r.ips.FindByAddress(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("failed to re-fetch IP %q after conflict: %w", address, err)
	}
	if existing == nil {
		return 0, fmt.Errorf("IP %q vanished after unique conflict", address)
	}

	r.ipCache[address] = existing.ID
	return existing.ID, nil
}

// resolvePhone upserts one phone number, scoped to the current operation.
// Role promotion is monotonic: a SECUNDARIO phone later seen in the target
// position becomes ALVO and never regresses.
func (r *Resolver) resolvePhone(ctx context.Context, number string, isTarget bool) error {
	if cached, ok := r.phoneCache[number]; ok {
		if isTarget && cached.role != database.RoleTarget {
			return r.promote(ctx, cached, number)
		}
		return nil
	}

	existing, err := r.phones.FindByNumber(ctx, r.operationID, number)
	if err != nil {
		return fmt.Errorf("failed to look up phone %q: %w", number, err)
	}

	if existing != nil {
		cached := &cachedPhone{id: existing.ID, role: existing.Role}
		r.phoneCache[number] = cached
		if isTarget && cached.role != database.RoleTarget {
			return r.promote(ctx, cached, number)
		}
		return nil
	}

	role := database.RoleSecondary
	if isTarget {
		role = database.RoleTarget
	}

	phone := &database.Phone{
		OperationID: r.operationID,
		Number:      number,
		Role:        role,
	}

	id, err := r.phones.Insert(ctx, phone)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return r.fetchRacedPhone(ctx, number, isTarget)
		}
		return fmt.Errorf("failed to create phone %q: %w", number, err)
	}

	r.phoneCache[number] = &cachedPhone{id: id, role: role}
	return nil
}

func (r *Resolver) fetchRacedPhone(ctx context.Context, number string, isTarget bool) error {
	existing, err := r.phones.FindByNumber(ctx, r.operationID, number)
	if err != nil {
		return fmt.Errorf("failed to re-fetch phone %q after conflict: %w", number, err)
	}
	if existing == nil {
		return fmt.Errorf("phone %q vanished after unique conflict", number)
	}

	cached := &cachedPhone{id: existing.ID, role: existing.Role}
	r.phoneCache[number] = cached
	if isTarget && cached.role != database.RoleTarget {
		return r.promote(ctx, cached, number)
	}
	return nil
}

func (r *Resolver) promote(ctx context.Context, phone *cachedPhone, number string) error {
	if err := r.phones.UpdateRole(ctx, phone.id, database.RoleTarget); err != nil {
		return fmt.Errorf("failed to promote phone %q: %w", number, err)
	}
	phone.role = database.RoleTarget

	r.logger.WithFields(logrus.Fields{
		"operation_id": r.operationID,
		"number":       number,
	}).Debug("Phone promoted to target role")

	return nil
}
