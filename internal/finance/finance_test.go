package finance

import (
	"math/big"
	"testing"
	"testing/quick"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/estate/internal/domain"
)

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), weiPerEther)
}

func milliEther(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil))
}

func TestRequiredDepositAndSharePrice(t *testing.T) {
	t.Run("ten ether for twelve months", func(t *testing.T) {
		assert.Equal(t, 0, RequiredDeposit(ether(10), 12).Cmp(ether(36)))
		assert.Equal(t, 0, SharePrice(ether(10), 12).Cmp(milliEther(1200)))
		assert.Equal(t, "36", FormatEther(RequiredDeposit(ether(10), 12)).String())
		assert.Equal(t, "1.2", FormatEther(SharePrice(ether(10), 12)).String())
	})

	t.Run("truncates to whole wei", func(t *testing.T) {
		assert.Equal(t, int64(0), RequiredDeposit(big.NewInt(1), 1).Int64())
		assert.Equal(t, int64(2), RequiredDeposit(big.NewInt(7), 1).Int64())
		assert.Equal(t, int64(0), SharePrice(big.NewInt(99), 1).Int64())
	})

	t.Run("nil valuation is zero", func(t *testing.T) {
		assert.Equal(t, 0, RequiredDeposit(nil, 12).Sign())
	})
}

func TestRequiredDepositNeverExceedsThirtyPercent(t *testing.T) {
	prop := func(monthly uint64, months uint16) bool {
		v := new(big.Int).SetUint64(monthly)
		deposit := RequiredDeposit(v, uint64(months))

		exact := TotalValuation(v, uint64(months))
		exact.Mul(exact, big.NewInt(30))

		scaled := new(big.Int).Mul(deposit, big.NewInt(100))
		gap := new(big.Int).Sub(exact, scaled)

		return gap.Sign() >= 0 && gap.Cmp(big.NewInt(100)) < 0
	}
	require.NoError(t, quick.Check(prop, nil))
}

func TestProRataMonthlyIncome(t *testing.T) {
	assert.Equal(t, 0, ProRataMonthlyIncome(ether(5), 20).Cmp(ether(1)))
	assert.Equal(t, 0, ProRataMonthlyIncome(ether(5), 0).Sign())
	assert.Equal(t, 0, ProRataMonthlyIncome(ether(5), 100).Cmp(ether(5)))

	prop := func(rent uint64, a, b uint8) bool {
		lo, hi := uint64(a%101), uint64(b%101)
		if lo > hi {
			lo, hi = hi, lo
		}
		r := new(big.Int).SetUint64(rent)
		return ProRataMonthlyIncome(r, lo).Cmp(ProRataMonthlyIncome(r, hi)) <= 0 &&
			ProRataMonthlyIncome(r, hi).Cmp(r) <= 0
	}
	require.NoError(t, quick.Check(prop, nil))
}

func TestAnnualYieldPercent(t *testing.T) {
	t.Run("defined", func(t *testing.T) {
		yield, ok := AnnualYieldPercent(ether(1), milliEther(1200))
		require.True(t, ok)
		assert.Equal(t, "10", yield.String())
	})

	t.Run("undefined for zero share price", func(t *testing.T) {
		_, ok := AnnualYieldPercent(ether(1), big.NewInt(0))
		assert.False(t, ok)
		_, ok = AnnualYieldPercent(ether(1), nil)
		assert.False(t, ok)
		assert.Equal(t, "—", DisplayYield(domain.Figures{}))
	})
}

func TestRemainingShares(t *testing.T) {
	tests := []struct {
		name      string
		sold      uint64
		remaining uint64
		wantErr   bool
	}{
		{name: "nothing sold", sold: 0, remaining: 100},
		{name: "partially sold", sold: 40, remaining: 60},
		{name: "sold out", sold: 100, remaining: 0},
		{name: "over sold", sold: 101, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := domain.AssetRecord{ID: 3, TotalSharesSold: tt.sold}
			remaining, err := RemainingShares(a)
			progress, progressErr := FundingProgressPercent(a)
			if tt.wantErr {
				assert.True(t, errors.Is(err, domain.ErrDataIntegrity))
				assert.True(t, errors.Is(progressErr, domain.ErrDataIntegrity))
				return
			}
			require.NoError(t, err)
			require.NoError(t, progressErr)
			assert.Equal(t, tt.remaining, remaining)
			assert.Equal(t, tt.sold, progress)
		})
	}
}

func TestPayments(t *testing.T) {
	assert.Equal(t, 0, TenantDeposit(ether(2)).Cmp(ether(6)))
	assert.Equal(t, 0, RentPayment(ether(1), 6).Cmp(ether(9)))
	assert.Equal(t, 0, SharesCost(5, milliEther(1200)).Cmp(ether(6)))
}

func TestDerive(t *testing.T) {
	a := domain.AssetRecord{
		ID:              1,
		Status:          domain.StatusRented,
		MonthlyRent:     ether(5),
		SharePrice:      ether(2),
		TotalSharesSold: 40,
	}

	f, err := Derive(a, domain.Holding{SharesOwned: 20, RentWithdrawn: new(big.Int)})
	require.NoError(t, err)
	assert.Equal(t, uint64(40), f.FundingProgress)
	assert.Equal(t, uint64(60), f.RemainingShares)
	assert.Equal(t, 0, f.MonthlyIncome.Cmp(ether(1)))
	assert.Equal(t, 0, f.HoldingValue.Cmp(ether(40)))
	assert.True(t, f.HasYield)

	_, err = Derive(a, domain.Holding{SharesOwned: 120})
	assert.True(t, errors.Is(err, domain.ErrDataIntegrity))
}

func TestDisplayEther(t *testing.T) {
	assert.Equal(t, "1.2000", DisplayEther(milliEther(1200), 4))
	assert.Equal(t, "0.00", DisplayEther(nil, 2))
	assert.Equal(t, 0, Sum(ether(1), nil, ether(2)).Cmp(ether(3)))
}
