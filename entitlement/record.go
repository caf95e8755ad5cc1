package entitlement

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/credits/region"
)

// Record is the durable shape of an Entitlement. Every backend stores these
// five fields, keyed by user id.
type Record struct {
	Tier             string `json:"tier"`
	CreditsRemaining int64  `json:"credits_remaining"`
	LastRenewalDate  string `json:"last_renewal_date"`
	IsYearly         bool   `json:"is_yearly"`
	Region           string `json:"region"`
}

// ToRecord converts e to its durable shape.
func ToRecord(e *Entitlement) Record {
	return Record{
		Tier:             string(e.Tier),
		CreditsRemaining: e.CreditsRemaining,
		LastRenewalDate:  FormatTime(e.LastRenewalDate),
		IsYearly:         e.IsYearly,
		Region:           string(e.Region),
	}
}

// FromRecord parses and validates a durable record.
func FromRecord(userID string, r Record) (*Entitlement, error) {
	renewed, err := ParseTime(r.LastRenewalDate)
	if err != nil {
		return nil, err
	}
	e := &Entitlement{
		UserID:           userID,
		Tier:             Tier(r.Tier),
		CreditsRemaining: r.CreditsRemaining,
		LastRenewalDate:  renewed,
		IsYearly:         r.IsYearly,
		Region:           region.Region(r.Region),
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Encode serializes e as a JSON document.
func Encode(e *Entitlement) ([]byte, error) {
	return json.Marshal(ToRecord(e))
}

// Decode parses a JSON document written by Encode.
func Decode(userID string, data []byte) (*Entitlement, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("entitlement: decode %s: %w", userID, err)
	}
	return FromRecord(userID, r)
}

// FormatTime renders t as an ISO-8601 (RFC 3339) UTC string.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime parses a string written by FormatTime.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("entitlement: last_renewal_date %q: %w", s, err)
	}
	return t.UTC(), nil
}
