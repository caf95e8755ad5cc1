package plan

import (
	"github.com/xraph/credits/region"
	"github.com/xraph/credits/types"
)

type ID string

const (
	Monthly ID = "monthly"
	Yearly  ID = "yearly"
)

func (p ID) Valid() bool {
	return p == Monthly || p == Yearly
}

func (p ID) String() string { return string(p) }

// Pricing is the price of one plan in one region. It is derived from a static
// table and never persisted.
type Pricing struct {
	Region         region.Region `json:"region"`
	PlanID         ID            `json:"plan_id"`
	Amount         types.Money   `json:"amount"`
	CurrencySymbol string        `json:"currency_symbol"`
	Description    string        `json:"description"`
}

type Prices struct {
	Monthly Pricing `json:"monthly"`
	Yearly  Pricing `json:"yearly"`
}
