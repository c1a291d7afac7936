package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Role is the privilege attached to an address.
type Role string

const (
	RoleNone  Role = ""
	RoleAdmin Role = "admin"
)

// RoleAssignment is one row of the role table. RoleNone marks a revocation.
type RoleAssignment struct {
	Address   common.Address `json:"address"`
	Role      Role           `json:"role"`
	GrantedAt time.Time      `json:"granted_at"`
}

// GlobalState holds the ledger-wide mutable values.
type GlobalState struct {
	DepositPrice   int64  `json:"deposit_price"`
	DefaultMaxSize uint32 `json:"default_max_size"`
	CurrentBatchID uint64 `json:"current_batch_id"`
	Paused         bool   `json:"paused"`
	// OperatingFunds is custody money the admin may withdraw or refund from.
	OperatingFunds int64 `json:"operating_funds"`
	// SlashedFunds is the penalty pool, tracked apart from operating funds.
	SlashedFunds int64 `json:"slashed_funds"`
}

// Funds is the read view of the two custody pools.
type Funds struct {
	Operating int64 `json:"operating"`
	Slashed   int64 `json:"slashed"`
	Total     int64 `json:"total"`
}

// Policy carries the timing and penalty parameters of the ledger.
type Policy struct {
	PaymentWindow       time.Duration
	PatienceWindow      time.Duration
	SlashPenaltyPercent int64
}
