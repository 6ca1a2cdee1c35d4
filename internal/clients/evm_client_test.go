package clients

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/estate/internal/domain"
)

// nopBackend satisfies EVMBackend; any RPC made through it panics.
type nopBackend struct {
	EVMBackend
}

func propertyOutputs() []any {
	return []any{
		"Harbor Loft",
		"12 Quay Street",
		big.NewInt(85),
		"apartment",
		"+100200300",
		common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		uint8(4),
		big.NewInt(1200),
		big.NewInt(1700000000),
		big.NewInt(36000),
		big.NewInt(100),
		big.NewInt(500),
		big.NewInt(1500),
		big.NewInt(1700100000),
		big.NewInt(1702700000),
		common.HexToAddress("0x00000000000000000000000000000000000000bb"),
		big.NewInt(12),
		big.NewInt(1700050000),
		big.NewInt(0),
	}
}

func TestDecodeAsset(t *testing.T) {
	rec, err := decodeAsset(7, propertyOutputs())
	require.NoError(t, err)

	assert.Equal(t, domain.AssetID(7), rec.ID)
	assert.Equal(t, "Harbor Loft", rec.Info.Name)
	assert.Equal(t, "apartment", rec.Info.Category)
	assert.Equal(t, uint64(85), rec.Info.Area)
	assert.Equal(t, domain.StatusRented, rec.Status)
	assert.Equal(t, common.HexToAddress("0xaa"), rec.Owner)
	assert.Equal(t, common.HexToAddress("0xbb"), rec.Tenant)
	assert.Equal(t, int64(1200), rec.SharePrice.Int64())
	assert.Equal(t, uint64(100), rec.TotalSharesSold)
	assert.Equal(t, uint64(12), rec.RightsDurationMonths)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), rec.FundraisingEnd)
	assert.True(t, rec.TerminationRequest.IsZero())
	assert.False(t, rec.IsTombstoned())
}

func TestDecodeAsset_RejectsUnexpectedShapes(t *testing.T) {
	t.Run("wrong field count", func(t *testing.T) {
		_, err := decodeAsset(1, propertyOutputs()[:5])
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected 19 outputs")
	})

	t.Run("wrong field type", func(t *testing.T) {
		out := propertyOutputs()
		out[5] = "not an address"
		_, err := decodeAsset(1, out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "want address")
	})

	t.Run("unknown status", func(t *testing.T) {
		out := propertyOutputs()
		out[6] = uint8(9)
		_, err := decodeAsset(1, out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown asset status")
	})

	t.Run("overflowing integer", func(t *testing.T) {
		out := propertyOutputs()
		out[10] = new(big.Int).Lsh(big.NewInt(1), 70)
		_, err := decodeAsset(1, out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "overflows uint64")
	})
}

func TestDecodeHolding(t *testing.T) {
	h, err := decodeHolding([]any{big.NewInt(30), big.NewInt(42)})
	require.NoError(t, err)
	assert.Equal(t, uint64(30), h.SharesOwned)
	assert.Equal(t, int64(42), h.RentWithdrawn.Int64())

	_, err = decodeHolding([]any{big.NewInt(30)})
	assert.Error(t, err)
}

func TestParsePrivateKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := common.Bytes2Hex(crypto.FromECDSA(key))

	for _, in := range []string{hexKey, "0x" + hexKey, " 0X" + hexKey + " "} {
		parsed, err := ParsePrivateKey(in)
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(parsed.PublicKey))
	}

	_, err = ParsePrivateKey("zz")
	assert.Error(t, err)
}

func TestEVMClient_Accounts(t *testing.T) {
	view := common.HexToAddress("0x00000000000000000000000000000000000000cc")

	t.Run("read only client uses view account and refuses writes", func(t *testing.T) {
		c, err := NewEVMClient(nopBackend{}, common.HexToAddress("0x01"), big.NewInt(1337), nil, WithViewAccount(view))
		require.NoError(t, err)
		assert.Equal(t, view, c.Account())

		_, err = c.LockFinancing(context.Background(), 1)
		assert.True(t, errors.Is(err, domain.ErrNotConnected))
	})

	t.Run("signing client ignores view account", func(t *testing.T) {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		c, err := NewEVMClient(nopBackend{}, common.HexToAddress("0x01"), big.NewInt(1337), key, WithViewAccount(view), WithReadLimit(5, 0))
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), c.Account())
		require.NotNil(t, c.limiter)
		assert.Equal(t, 1, c.limiter.Burst())
	})
}
