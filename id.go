package credits

import "github.com/xraph/credits/id"

// IntentID identifies one purchase attempt. Gateways echo it back as their
// client reference.
type IntentID = id.IntentID

// ReceiptID identifies a receipt issued for a completed charge.
type ReceiptID = id.ReceiptID

// ParseIntentID parses a client reference returned by a gateway.
func ParseIntentID(s string) (IntentID, error) { return id.ParseIntentID(s) }
