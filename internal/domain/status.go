// Package domain defines core data structures shared by the registry view.
package domain

import "fmt"

// AssetStatus is the lifecycle state of an asset as reported by the registry.
type AssetStatus uint8

const (
	StatusIdle AssetStatus = iota
	StatusFundraising
	StatusLocked
	StatusListedForRent
	StatusRented
	StatusSettling
)

// status string constants to avoid magic strings
const (
	statusStringIdle          = "idle"
	statusStringFundraising   = "fundraising"
	statusStringLocked        = "locked"
	statusStringListedForRent = "listed_for_rent"
	statusStringRented        = "rented"
	statusStringSettling      = "settling"
)

// String returns the string representation of the status.
func (s AssetStatus) String() string {
	switch s {
	case StatusIdle:
		return statusStringIdle
	case StatusFundraising:
		return statusStringFundraising
	case StatusLocked:
		return statusStringLocked
	case StatusListedForRent:
		return statusStringListedForRent
	case StatusRented:
		return statusStringRented
	case StatusSettling:
		return statusStringSettling
	default:
		return "unknown"
	}
}

// IsValid checks if the status is one the registry can report.
func (s AssetStatus) IsValid() bool {
	return s <= StatusSettling
}

// ParseAssetStatus converts a raw registry value into an AssetStatus.
func ParseAssetStatus(raw uint8) (AssetStatus, error) {
	s := AssetStatus(raw)
	if !s.IsValid() {
		return 0, fmt.Errorf("unknown asset status %d", raw)
	}
	return s, nil
}

// MarshalText implements encoding.TextMarshaler.
func (s AssetStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
