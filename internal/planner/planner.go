// Package planner merges per-tenant ticker requests into the
// deduplicated, priority-sorted work queue for one cycle.
package planner

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/shalom-ormsby/sagestocks/internal/domain"
	"github.com/shalom-ormsby/sagestocks/internal/registry"
)

// Build produces one QueueItem per distinct normalized ticker, its
// subscriber list being the union of every tenant that requested it.
//
// Item priority is the best (lowest) tier among subscribers; the
// result is sorted ascending by priority, ties broken by ticker, so
// identical input always yields identical order.
//
// Tenants whose delivery target is incomplete are skipped with a
// warning; a misconfigured tenant must not poison the cycle.
// Registrations with an empty ticker or record id are dropped the same
// way. Build has no side effects and persists nothing.
func Build(requests map[string]registry.TenantRequests, logger *zap.Logger) []domain.QueueItem {
	now := time.Now().UTC()
	byTicker := make(map[string][]domain.Subscriber)

	// Deterministic tenant iteration keeps subscriber order stable
	// across rebuilds from identical input.
	tenantIDs := make([]string, 0, len(requests))
	for id := range requests {
		tenantIDs = append(tenantIDs, id)
	}
	sort.Strings(tenantIDs)

	for _, id := range tenantIDs {
		req := requests[id]
		t := req.Tenant

		if !t.Target.Valid() {
			logger.Warn("skipping tenant: delivery target incomplete",
				zap.String("tenant_id", t.ID))
			continue
		}

		for _, reg := range req.Registrations {
			ticker := domain.NormalizeTicker(reg.Ticker)
			if ticker == "" || reg.RecordID == "" {
				logger.Warn("skipping registration: missing ticker or record id",
					zap.String("tenant_id", t.ID),
					zap.String("record_id", reg.RecordID))
				continue
			}
			byTicker[ticker] = append(byTicker[ticker], domain.Subscriber{
				TenantID: t.ID,
				Contact:  t.Contact,
				Tier:     t.Tier,
				Target:   t.Target,
				RecordID: reg.RecordID,
			})
		}
	}

	items := make([]domain.QueueItem, 0, len(byTicker))
	for ticker, subs := range byTicker {
		items = append(items, domain.QueueItem{
			Ticker:      ticker,
			Priority:    bestTier(subs),
			Subscribers: subs,
			CreatedAt:   now,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority < items[j].Priority
		}
		return items[i].Ticker < items[j].Ticker
	})

	return items
}

func bestTier(subs []domain.Subscriber) domain.Tier {
	best := domain.TierDefault
	for _, s := range subs {
		if s.Tier < best {
			best = s.Tier
		}
	}
	return best
}
