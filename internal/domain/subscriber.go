package domain

import "strings"

// Tier orders subscribers by plan privilege. A lower value is a more
// privileged plan and is scheduled first.
type Tier int

const (
	Tier0 Tier = iota // founding accounts
	Tier1
	Tier2
	TierDefault
)

var tierNames = map[Tier]string{
	Tier0:       "tier0",
	Tier1:       "tier1",
	Tier2:       "tier2",
	TierDefault: "default",
}

func (t Tier) String() string {
	if s, ok := tierNames[t]; ok {
		return s
	}
	return "default"
}

func (t Tier) IsValid() bool {
	return t >= Tier0 && t <= TierDefault
}

// ParseTier maps a stored tier label to a Tier. Unknown labels fall
// back to TierDefault rather than failing: an unrecognized plan must
// never drop a tenant from the cycle.
func ParseTier(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tier0", "0":
		return Tier0
	case "tier1", "1":
		return Tier1
	case "tier2", "2":
		return Tier2
	default:
		return TierDefault
	}
}

// TargetHandle locates one tenant's private delivery destination:
// an opaque credential plus the two destination identifiers the
// delivery API needs (the mutable primary records destination and the
// append-only archive destination).
type TargetHandle struct {
	Credential string `json:"credential"`
	PrimaryID  string `json:"primary_id"`
	ArchiveID  string `json:"archive_id"`
}

// Valid reports whether the handle is complete enough to deliver to.
func (h TargetHandle) Valid() bool {
	return h.Credential != "" && h.PrimaryID != "" && h.ArchiveID != ""
}

// Subscriber is one tenant's registered interest in one ticker.
// Immutable once constructed; the engine only reads it.
type Subscriber struct {
	TenantID string       `json:"tenant_id"`
	Contact  string       `json:"contact"`
	Tier     Tier         `json:"tier"`
	Target   TargetHandle `json:"target"`

	// RecordID is the tenant-local record the engine updates for this
	// ticker. A tenant may hold several records for the same ticker,
	// each appearing as its own Subscriber.
	RecordID string `json:"record_id"`
}

// NormalizeTicker produces the deduplication key for a requested
// ticker: trimmed and case-folded to upper case.
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
