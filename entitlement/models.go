package entitlement

import (
	"fmt"
	"math"
	"time"

	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/region"
)

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

func (t Tier) Valid() bool {
	return t == TierFree || t == TierPremium
}

// Unlimited is the credit balance stored for premium users. It stays a
// finite integer so every backend can persist it.
const Unlimited int64 = math.MaxInt32

// DefaultTrialAllotment is the starting balance of a new free entitlement.
const DefaultTrialAllotment int64 = 20

// Entitlement is the per-user record of tier and remaining credits.
type Entitlement struct {
	UserID           string        `json:"user_id"`
	Tier             Tier          `json:"tier"`
	CreditsRemaining int64         `json:"credits_remaining"`
	LastRenewalDate  time.Time     `json:"last_renewal_date"`
	IsYearly         bool          `json:"is_yearly"`
	Region           region.Region `json:"region"`

	// Provisional marks a default synthesized while the remote store was
	// unreachable. It lives only in the cache and is never persisted.
	Provisional bool `json:"-"`
}

// New returns the default free entitlement for a user seen for the first time.
func New(userID string, allotment int64, r region.Region, now time.Time) *Entitlement {
	return &Entitlement{
		UserID:           userID,
		Tier:             TierFree,
		CreditsRemaining: allotment,
		LastRenewalDate:  now.UTC(),
		Region:           r,
	}
}

func (e *Entitlement) IsPremium() bool { return e.Tier == TierPremium }

// Clone returns a copy that can be mutated without affecting e.
func (e *Entitlement) Clone() *Entitlement {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// Upgrade applies the one-way free to premium transition in place.
// Applying it twice with the same plan changes only LastRenewalDate.
func (e *Entitlement) Upgrade(planID plan.ID, now time.Time) {
	e.Tier = TierPremium
	e.CreditsRemaining = Unlimited
	e.IsYearly = planID == plan.Yearly
	e.LastRenewalDate = now.UTC()
}

// Validate checks the record invariants.
func (e *Entitlement) Validate() error {
	switch {
	case e.UserID == "":
		return fmt.Errorf("entitlement: empty user id")
	case !e.Tier.Valid():
		return fmt.Errorf("entitlement: unknown tier %q", e.Tier)
	case e.CreditsRemaining < 0:
		return fmt.Errorf("entitlement: negative credits %d", e.CreditsRemaining)
	case !e.Region.Valid():
		return fmt.Errorf("entitlement: unknown region %q", e.Region)
	}
	return nil
}

// Verdict is the outcome of an access check. A blocked verdict carries the
// feature so callers can present an upgrade path.
type Verdict struct {
	Allowed   bool   `json:"allowed"`
	Feature   string `json:"feature,omitempty"`
	UserID    string `json:"user_id"`
	Remaining int64  `json:"remaining"`
}

// DebitResult is the outcome of an atomic cache debit.
type DebitResult int

const (
	// Debited means one credit was taken.
	Debited DebitResult = iota
	// Exhausted means the balance was already zero and nothing changed.
	Exhausted
	// Unmetered means the user is premium and nothing changed.
	Unmetered
)

func (r DebitResult) String() string {
	switch r {
	case Debited:
		return "debited"
	case Exhausted:
		return "exhausted"
	case Unmetered:
		return "unmetered"
	default:
		return fmt.Sprintf("DebitResult(%d)", int(r))
	}
}
