package model

import (
	"testing"
	"time"

	"zentum/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatchApplyLeavesUntouchedFields(t *testing.T) {
	base := Account{
		ID:             "acc-1",
		ForexBalance:   decimal.NewFromInt(100),
		CryptoBalance:  decimal.NewFromInt(50),
		ForexPositions: []Position{{ID: "p1", Symbol: "EURUSD"}},
		Version:        3,
	}
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	out := AccountPatch{}.WithForexBalance(decimal.NewFromInt(120)).Apply(base, now)
	assert.True(t, out.ForexBalance.Equal(decimal.NewFromInt(120)))
	assert.True(t, out.CryptoBalance.Equal(decimal.NewFromInt(50)))
	assert.Len(t, out.ForexPositions, 1)
	assert.Equal(t, int64(4), out.Version)
	assert.Equal(t, now, out.UpdatedAt)

	out.ForexPositions[0].Symbol = "GBPUSD"
	assert.Equal(t, "EURUSD", base.ForexPositions[0].Symbol)
}

func TestPatchCopiesSlices(t *testing.T) {
	positions := []Position{{ID: "p1"}}
	p := AccountPatch{}.WithForexPositions(positions)
	positions[0].ID = "changed"
	require.NotNil(t, p.ForexPositions)
	assert.Equal(t, "p1", (*p.ForexPositions)[0].ID)

	out := p.Apply(Account{}, time.Now())
	assert.Equal(t, "p1", out.ForexPositions[0].ID)
}

func TestPatchEmptyAndFields(t *testing.T) {
	assert.True(t, AccountPatch{}.Empty())
	assert.Empty(t, AccountPatch{}.Fields())

	p := AccountPatch{}.WithCryptoBalance(decimal.Zero).WithHistory(nil)
	assert.False(t, p.Empty())
	assert.Equal(t, []string{"crypto_balance", "history"}, p.Fields())

	settle := AccountPatch{}.WithSettlement(Settlement{RequestID: "r1"})
	assert.False(t, settle.Empty())
	assert.Empty(t, settle.Fields())
}

func TestSettle(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.FixedZone("x", 3600))
	dep := DepositRequest{RequestHeader: RequestHeader{ID: "r1", Status: types.RequestStatusPending}, Coin: "USDT"}

	got := Settle(dep, Settlement{RequestID: "r1", Status: types.RequestStatusApproved, DecidedBy: "admin", DecidedAt: at})
	h := got.Header()
	assert.Equal(t, types.RequestStatusApproved, h.Status)
	assert.Equal(t, "admin", h.DecidedBy)
	require.NotNil(t, h.DecidedAt)
	assert.Equal(t, time.UTC, h.DecidedAt.Location())
	assert.Equal(t, types.RequestKindDeposit, got.Kind())
	assert.Equal(t, types.RequestStatusPending, dep.Status)
}
