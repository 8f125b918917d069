package watch

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/viewplay/vpc-sale-service/internal/adapters/blockstream"
	"github.com/viewplay/vpc-sale-service/internal/adapters/trongrid"
	"github.com/viewplay/vpc-sale-service/internal/domain/entities"
)

type stubExplorer struct {
	txs []blockstream.Transaction
	err error
}

func (s *stubExplorer) AddressTransactions(ctx context.Context, address string) ([]blockstream.Transaction, error) {
	return s.txs, s.err
}

func btcOrder(expected string) *entities.Order {
	return &entities.Order{
		ID:             "ord_1",
		PayMethod:      entities.MethodBTC,
		DepositAddress: "bc1qdeposit",
		ExpectedAmount: decimal.RequireFromString(expected),
	}
}

func btcTx(txid string, confirmed bool, toAddr string, sats int64) blockstream.Transaction {
	tx := blockstream.Transaction{TxID: txid}
	tx.Status.Confirmed = confirmed
	tx.Vout = []blockstream.Output{
		{ScriptPubKeyAddress: "bc1qother", Value: 999},
		{ScriptPubKeyAddress: toAddr, Value: sats},
	}
	return tx
}

func TestBTCWatcher_NoTransactionsIsNotAnError(t *testing.T) {
	w := NewBTCWatcher(&stubExplorer{}, 0.5, zap.NewNop())

	res, err := w.Check(context.Background(), btcOrder("0.01"))
	require.NoError(t, err)
	assert.False(t, res.Seen)
	assert.False(t, res.Confirmed)
}

func TestBTCWatcher_ExactTolerance(t *testing.T) {
	// 0.00995 BTC is exactly the widened lower bound for 0.01 at 0.5%
	explorer := &stubExplorer{txs: []blockstream.Transaction{
		btcTx("tx_match", true, "bc1qdeposit", 995_000),
	}}
	w := NewBTCWatcher(explorer, 0.5, zap.NewNop())

	res, err := w.Check(context.Background(), btcOrder("0.01"))
	require.NoError(t, err)
	assert.True(t, res.Seen)
	assert.True(t, res.Confirmed)
	assert.Equal(t, "tx_match", res.TxID)
	assert.True(t, res.Received.Equal(decimal.RequireFromString("0.00995")))
}

func TestBTCWatcher_ShortfallWithinWiderTolerance(t *testing.T) {
	// 0.0099 BTC misses a 0.5% tolerance but matches at 1%
	explorer := &stubExplorer{txs: []blockstream.Transaction{
		btcTx("tx_short", true, "bc1qdeposit", 990_000),
	}}

	tight := NewBTCWatcher(explorer, 0.5, zap.NewNop())
	res, err := tight.Check(context.Background(), btcOrder("0.01"))
	require.NoError(t, err)
	assert.True(t, res.Seen, "any positive credit sets paymentSeen")
	assert.False(t, res.Confirmed)

	wide := NewBTCWatcher(explorer, 1.0, zap.NewNop())
	res, err = wide.Check(context.Background(), btcOrder("0.01"))
	require.NoError(t, err)
	assert.True(t, res.Confirmed)
}

func TestBTCWatcher_UnconfirmedMatchIsSeenNotConfirmed(t *testing.T) {
	explorer := &stubExplorer{txs: []blockstream.Transaction{
		btcTx("tx_mempool", false, "bc1qdeposit", 1_000_000),
	}}
	w := NewBTCWatcher(explorer, 0.5, zap.NewNop())

	res, err := w.Check(context.Background(), btcOrder("0.01"))
	require.NoError(t, err)
	assert.True(t, res.Seen)
	assert.False(t, res.Confirmed)
	assert.Equal(t, "tx_mempool", res.TxID)
}

func TestBTCWatcher_FirstMatchInNaturalOrderWins(t *testing.T) {
	explorer := &stubExplorer{txs: []blockstream.Transaction{
		btcTx("tx_dust", true, "bc1qdeposit", 100),
		btcTx("tx_first_match", true, "bc1qdeposit", 1_000_000),
		btcTx("tx_second_match", true, "bc1qdeposit", 2_000_000),
	}}
	w := NewBTCWatcher(explorer, 0.5, zap.NewNop())

	res, err := w.Check(context.Background(), btcOrder("0.01"))
	require.NoError(t, err)
	assert.Equal(t, "tx_first_match", res.TxID)
}

func TestBTCWatcher_TransportErrorSurfaces(t *testing.T) {
	w := NewBTCWatcher(&stubExplorer{err: errors.New("HTTP 502")}, 0.5, zap.NewNop())

	_, err := w.Check(context.Background(), btcOrder("0.01"))
	assert.Error(t, err)
}

type stubTronAPI struct {
	transfers []trongrid.Transfer
	err       error
}

func (s *stubTronAPI) TRC20Transfers(ctx context.Context, address, contract string) ([]trongrid.Transfer, error) {
	return s.transfers, s.err
}

func tronTransfer(txid, value string, decimals int32) trongrid.Transfer {
	tr := trongrid.Transfer{TransactionID: txid, Value: value}
	tr.TokenInfo.Decimals = decimals
	return tr
}

func TestTronWatcher_MatchedTransferIsConfirmed(t *testing.T) {
	api := &stubTronAPI{transfers: []trongrid.Transfer{
		tronTransfer("trx_1", "100000000", 6), // 100 USDT
	}}
	w := NewTronWatcher(api, "TRcontract", 0.5, zap.NewNop())

	order := &entities.Order{
		PayMethod:      entities.MethodUSDTTRC20,
		DepositAddress: "TDeposit",
		ExpectedAmount: decimal.NewFromInt(100),
	}

	res, err := w.Check(context.Background(), order)
	require.NoError(t, err)
	assert.True(t, res.Seen)
	assert.True(t, res.Confirmed)
	assert.Equal(t, "trx_1", res.TxID)
	assert.True(t, res.Received.Equal(decimal.NewFromInt(100)))
}

func TestTronWatcher_PartialTransferSeenOnly(t *testing.T) {
	api := &stubTronAPI{transfers: []trongrid.Transfer{
		tronTransfer("trx_partial", "60000000", 6), // 60 of 100 expected
	}}
	w := NewTronWatcher(api, "TRcontract", 0.5, zap.NewNop())

	order := &entities.Order{
		PayMethod:      entities.MethodUSDTTRC20,
		DepositAddress: "TDeposit",
		ExpectedAmount: decimal.NewFromInt(100),
	}

	res, err := w.Check(context.Background(), order)
	require.NoError(t, err)
	assert.True(t, res.Seen)
	assert.False(t, res.Confirmed)
	assert.True(t, res.Received.Equal(decimal.NewFromInt(60)))
}

func TestRegistry_UnsupportedMethodGetsStub(t *testing.T) {
	reg := NewRegistry(nil)

	w := reg.Lookup(entities.MethodETH)
	res, err := w.Check(context.Background(), btcOrder("0.01"))
	require.NoError(t, err)
	assert.False(t, res.Seen)
}
