package domain

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PaymentKind names the two payment phases a discount may apply to.
type PaymentKind string

const (
	PaymentDeposit PaymentKind = "deposit"
	PaymentBalance PaymentKind = "balance"
)

// DiscountCode is a registered promotional code. Only its hash is stored.
type DiscountCode struct {
	CodeHash         common.Hash `json:"code_hash"`
	DiscountValue    int64       `json:"discount_value"`
	IsPercentage     bool        `json:"is_percentage"`
	RemainingUses    uint32      `json:"remaining_uses"`
	Active           bool        `json:"active"`
	AppliesToDeposit bool        `json:"applies_to_deposit"`
	AppliesToBalance bool        `json:"applies_to_balance"`
	CreatedAt        time.Time   `json:"created_at"`
}

// AppliesTo reports whether the code is scoped to the given payment phase.
func (c DiscountCode) AppliesTo(kind PaymentKind) bool {
	switch kind {
	case PaymentDeposit:
		return c.AppliesToDeposit
	case PaymentBalance:
		return c.AppliesToBalance
	default:
		return false
	}
}

// Apply returns the amount due on basePrice after the discount.
func (c DiscountCode) Apply(basePrice int64) int64 {
	if c.IsPercentage {
		// Split basePrice around 100 so the multiplication cannot overflow.
		keep := 100 - c.DiscountValue
		return basePrice/100*keep + basePrice%100*keep/100
	}
	if c.DiscountValue >= basePrice {
		return 0
	}
	return basePrice - c.DiscountValue
}

// Redemption records that an address used a code. Each address redeems a code once.
type Redemption struct {
	CodeHash      common.Hash    `json:"code_hash"`
	Address       common.Address `json:"address"`
	BatchID       uint64         `json:"batch_id"`
	Kind          PaymentKind    `json:"kind"`
	ChargedAmount int64          `json:"charged_amount"`
	RedeemedAt    time.Time      `json:"redeemed_at"`
}

// HashDiscountCode turns a human-readable code into its storage key.
// Codes are case-insensitive and surrounding whitespace is ignored.
func HashDiscountCode(code string) common.Hash {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	return crypto.Keccak256Hash([]byte(normalized))
}
