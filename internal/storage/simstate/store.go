package simstate

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/estate/internal/domain"
)

const defaultStateDir = "./wal/simulate"

// Store persists the simulated registry so restarts keep assets, holdings and balances.
type Store struct {
	path string
}

func getStateDir() string {
	if stateDir := os.Getenv("ESTATE_SIMULATE_STATE_DIR"); stateDir != "" {
		return stateDir
	}
	return defaultStateDir
}

// NewStore creates a registry state store for the given scope.
func NewStore(scope string) (*Store, error) {
	return NewStoreAt(getStateDir(), scope)
}

// NewStoreAt creates a registry state store under dir.
func NewStoreAt(dir, scope string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create simulate state dir")
	}

	name := sanitizeScope(scope)
	if name == "" {
		name = "registry"
	}

	return &Store{path: filepath.Join(dir, fmt.Sprintf("%s.json", name))}, nil
}

// State represents all persisted registry data.
type State struct {
	NextID   uint64            `json:"next_id"`
	Assets   []StoredAsset     `json:"assets"`
	Holdings []StoredHolding   `json:"holdings"`
	Balances map[string]string `json:"balances"`
}

// StoredHolding is one account's position in one asset.
type StoredHolding struct {
	AssetID       uint64 `json:"asset_id"`
	Address       string `json:"address"`
	Shares        uint64 `json:"shares"`
	RentWithdrawn string `json:"rent_withdrawn"`
}

// StoredAsset is a serializable form of domain.AssetRecord.
type StoredAsset struct {
	ID                   uint64    `json:"id"`
	Name                 string    `json:"name"`
	PhysicalAddress      string    `json:"physical_address"`
	Category             string    `json:"category"`
	Area                 uint64    `json:"area"`
	OwnerPhone           string    `json:"owner_phone"`
	Status               uint8     `json:"status"`
	Owner                string    `json:"owner"`
	Tenant               string    `json:"tenant"`
	MonthlyRent          string    `json:"monthly_rent"`
	SharePrice           string    `json:"share_price"`
	TotalSharesSold      uint64    `json:"total_shares_sold"`
	FundraisingEnd       time.Time `json:"fundraising_end"`
	RightsDurationMonths uint64    `json:"rights_duration_months"`
	RightsStart          time.Time `json:"rights_start"`
	OwnerDeposit         string    `json:"owner_deposit"`
	TenantDeposit        string    `json:"tenant_deposit"`
	RentStart            time.Time `json:"rent_start"`
	RentEnd              time.Time `json:"rent_end"`
	TerminationRequest   time.Time `json:"termination_request"`
}

// Load reads registry state from disk.
func (s *Store) Load() (*State, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "read simulate state")
	}

	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode simulate state")
	}

	return &state, nil
}

// Save writes registry state to disk atomically via temp file.
func (s *Store) Save(state State) error {
	if s == nil || s.path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode simulate state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write simulate state temp file")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist simulate state")
	}

	return nil
}

// NewStoredAsset converts a record into its stored representation.
func NewStoredAsset(rec domain.AssetRecord) StoredAsset {
	return StoredAsset{
		ID:                   uint64(rec.ID),
		Name:                 rec.Info.Name,
		PhysicalAddress:      rec.Info.PhysicalAddress,
		Category:             rec.Info.Category,
		Area:                 rec.Info.Area,
		OwnerPhone:           rec.Info.OwnerPhone,
		Status:               uint8(rec.Status),
		Owner:                rec.Owner.Hex(),
		Tenant:               rec.Tenant.Hex(),
		MonthlyRent:          EncodeAmount(rec.MonthlyRent),
		SharePrice:           EncodeAmount(rec.SharePrice),
		TotalSharesSold:      rec.TotalSharesSold,
		FundraisingEnd:       rec.FundraisingEnd,
		RightsDurationMonths: rec.RightsDurationMonths,
		RightsStart:          rec.RightsStart,
		OwnerDeposit:         EncodeAmount(rec.OwnerDeposit),
		TenantDeposit:        EncodeAmount(rec.TenantDeposit),
		RentStart:            rec.RentStart,
		RentEnd:              rec.RentEnd,
		TerminationRequest:   rec.TerminationRequest,
	}
}

// ToRecord reconstructs the record from stored data.
func (sa StoredAsset) ToRecord() (domain.AssetRecord, error) {
	status, err := domain.ParseAssetStatus(sa.Status)
	if err != nil {
		return domain.AssetRecord{}, errors.Wrapf(err, "decode asset %d status", sa.ID)
	}

	amounts := make([]*big.Int, 4)
	for i, raw := range []string{sa.MonthlyRent, sa.SharePrice, sa.OwnerDeposit, sa.TenantDeposit} {
		amounts[i], err = DecodeAmount(raw)
		if err != nil {
			return domain.AssetRecord{}, errors.Wrapf(err, "decode asset %d", sa.ID)
		}
	}

	return domain.AssetRecord{
		ID: domain.AssetID(sa.ID),
		Info: domain.AssetInfo{
			Name:            sa.Name,
			PhysicalAddress: sa.PhysicalAddress,
			Category:        sa.Category,
			Area:            sa.Area,
			OwnerPhone:      sa.OwnerPhone,
		},
		Status:               status,
		Owner:                common.HexToAddress(sa.Owner),
		Tenant:               common.HexToAddress(sa.Tenant),
		MonthlyRent:          amounts[0],
		SharePrice:           amounts[1],
		TotalSharesSold:      sa.TotalSharesSold,
		FundraisingEnd:       sa.FundraisingEnd,
		RightsDurationMonths: sa.RightsDurationMonths,
		RightsStart:          sa.RightsStart,
		OwnerDeposit:         amounts[2],
		TenantDeposit:        amounts[3],
		RentStart:            sa.RentStart,
		RentEnd:              sa.RentEnd,
		TerminationRequest:   sa.TerminationRequest,
	}, nil
}

// EncodeAmount renders a wei amount as a base-10 string; nil encodes as "0".
func EncodeAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// DecodeAmount parses a base-10 wei amount; empty decodes as zero.
func DecodeAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return new(big.Int), nil
	}

	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, errors.Errorf("invalid amount %q", raw)
	}

	return v, nil
}

func sanitizeScope(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}

	var b strings.Builder

	prevUnderscore := false

	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)

			prevUnderscore = false

			continue
		}

		if !prevUnderscore {
			b.WriteByte('_')

			prevUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}
