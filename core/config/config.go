// Package config holds the Config collaborator from spec.md section 6: a
// plain struct, never a package-level global, passed explicitly into every
// component constructor.
package config

import (
	"time"

	"github.com/sa2shinakamo2/bt2c-sub002/core/types"
)

// NetworkType selects the mainnet/testnet parameter preset.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config is the full set of tunables the core consumes. Zero-value fields
// are invalid; always build via Default.
type Config struct {
	NetworkType NetworkType

	MinStake           types.Amount
	BlockTimeSec        int
	MempoolMaxBytes     int
	MempoolExpirySec    int
	MaxBlockBytes       int
	MaxTxPerBlock       int
	FairnessWindow      int
	SlashJailThreshold  int
	UnjailWaitDays      int
	MaxExitQueueDays    int
	FinalityConfirmations int

	HalvingInterval    uint64
	DistributionPeriod time.Duration
}

// DeveloperReward is the one-time bonus paid to the first validator to
// register during the distribution window (spec.md §4.2).
var DeveloperReward = types.MustParseAmount("100")

// DistributionReward is the bonus every validator receives for registering
// during the distribution window (spec.md §4.2).
var DistributionReward = types.MustParseAmount("1")

// InitialReward is the block subsidy at height 1 before any halving.
var InitialReward = types.MustParseAmount("21")

// SupplyCap is the hard cap on subsidies plus pre-mines (spec.md §8 invariant 4).
var SupplyCap = types.MustParseAmount("21000000")

// Default returns the parameter preset for the given network type.
func Default(nt NetworkType) Config {
	switch nt {
	case Testnet:
		return Config{
			NetworkType:           Testnet,
			MinStake:              types.MustParseAmount("0.1"),
			BlockTimeSec:          60,
			MempoolMaxBytes:       32 * 1024 * 1024,
			MempoolExpirySec:      3600,
			MaxBlockBytes:         4 * 1024 * 1024,
			MaxTxPerBlock:         5000,
			FairnessWindow:        100,
			SlashJailThreshold:    5,
			UnjailWaitDays:        7,
			MaxExitQueueDays:      7,
			FinalityConfirmations: 6,
			HalvingInterval:       2_100_000,
			DistributionPeriod:    7 * 24 * time.Hour,
		}
	default:
		return Config{
			NetworkType:           Mainnet,
			MinStake:              types.MustParseAmount("1.0"),
			BlockTimeSec:          300,
			MempoolMaxBytes:       64 * 1024 * 1024,
			MempoolExpirySec:      3600,
			MaxBlockBytes:         8 * 1024 * 1024,
			MaxTxPerBlock:         10000,
			FairnessWindow:        100,
			SlashJailThreshold:    5,
			UnjailWaitDays:        7,
			MaxExitQueueDays:      7,
			FinalityConfirmations: 6,
			HalvingInterval:       210_000,
			DistributionPeriod:    14 * 24 * time.Hour,
		}
	}
}
