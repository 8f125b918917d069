package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	apperrors "github.com/viewplay/vpc-sale-service/internal/domain/errors"
)

type stubTreasury struct {
	sig        string
	err        error
	delay      time.Duration
	calls      int
	lastMint   string
	lastAmount int64
}

func (s *stubTreasury) SendToken(ctx context.Context, recipient, mint string, amount int64) (string, error) {
	s.calls++
	s.lastMint = mint
	s.lastAmount = amount
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.sig, s.err
}

func TestSolanaIssuer_Send(t *testing.T) {
	t.Run("returns the treasury signature", func(t *testing.T) {
		treasury := &stubTreasury{sig: "5YxSig"}
		issuer := NewSolanaIssuer(treasury, "VPCMint111", time.Second, zap.NewNop())

		sig, err := issuer.Send(context.Background(), "9xRecipient", 42_000)

		assert.NoError(t, err)
		assert.Equal(t, "5YxSig", sig)
		assert.Equal(t, "VPCMint111", treasury.lastMint)
		assert.Equal(t, int64(42_000), treasury.lastAmount)
	})

	t.Run("rejects non-positive amounts without calling the treasury", func(t *testing.T) {
		treasury := &stubTreasury{sig: "unused"}
		issuer := NewSolanaIssuer(treasury, "VPCMint111", time.Second, zap.NewNop())

		_, err := issuer.Send(context.Background(), "9xRecipient", 0)

		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		assert.Zero(t, treasury.calls)
	})

	t.Run("maps a timeout to a send failure", func(t *testing.T) {
		treasury := &stubTreasury{sig: "late", delay: 200 * time.Millisecond}
		issuer := NewSolanaIssuer(treasury, "VPCMint111", 20*time.Millisecond, zap.NewNop())

		_, err := issuer.Send(context.Background(), "9xRecipient", 10)

		assert.ErrorIs(t, err, apperrors.ErrSendFailed)
	})

	t.Run("propagates treasury errors", func(t *testing.T) {
		treasury := &stubTreasury{err: errors.New("insufficient treasury balance")}
		issuer := NewSolanaIssuer(treasury, "VPCMint111", time.Second, zap.NewNop())

		_, err := issuer.Send(context.Background(), "9xRecipient", 10)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "insufficient treasury balance")
	})
}

func TestProratedAmount(t *testing.T) {
	d := decimal.RequireFromString

	t.Run("full payment pays the full amount", func(t *testing.T) {
		assert.Equal(t, int64(1000), ProratedAmount(1000, d("0.01"), d("0.01")))
	})

	t.Run("overpayment never exceeds the full amount", func(t *testing.T) {
		assert.Equal(t, int64(1000), ProratedAmount(1000, d("0.02"), d("0.01")))
	})

	t.Run("partial payment is floored pro rata", func(t *testing.T) {
		// 60% of expected pays floor(1000 * 0.6) tokens.
		assert.Equal(t, int64(600), ProratedAmount(1000, d("0.006"), d("0.01")))
		assert.Equal(t, int64(333), ProratedAmount(1000, d("1"), d("3")))
	})

	t.Run("a payable order never settles below one token", func(t *testing.T) {
		assert.Equal(t, int64(1), ProratedAmount(1000, d("0.0000001"), d("1")))
	})

	t.Run("zero full amount settles nothing", func(t *testing.T) {
		assert.Equal(t, int64(0), ProratedAmount(0, d("1"), d("1")))
	})

	t.Run("non-positive expected falls back to the full amount", func(t *testing.T) {
		assert.Equal(t, int64(50), ProratedAmount(50, d("1"), decimal.Zero))
	})
}
