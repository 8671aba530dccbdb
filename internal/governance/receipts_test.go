package governance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myles1663/lancelot-sub000/internal/connector"
)

func receiptFor(tier connector.RiskTier) Receipt {
	return newReceipt("connector.echo.get", tier, &connector.Response{
		ConnectorID: "echo", OperationID: "get", StatusCode: 200, Success: true,
	})
}

func TestMemoryStoreBounded(t *testing.T) {
	s := NewMemoryReceiptStore(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, receiptFor(connector.TierReversible)))
	}
	total, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total, "count survives eviction")

	recent, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 3, "ring keeps only max receipts")
}

func TestPipelineImmediateForT1Plus(t *testing.T) {
	store := NewMemoryReceiptStore(100)
	p := NewReceiptPipeline(store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	p.Emit(receiptFor(connector.TierControlled))
	require.Eventually(t, func() bool {
		n, _ := store.Count(context.Background())
		return n == 1
	}, time.Second, 5*time.Millisecond, "T1+ receipts bypass the batch buffer")

	cancel()
	p.Wait()
}

func TestPipelineBatchesT0(t *testing.T) {
	store := NewMemoryReceiptStore(1000)
	p := NewReceiptPipeline(store, nil)
	p.flushInterval = time.Hour // only size-based flushing in this test
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	for i := 0; i < p.batchSize-1; i++ {
		p.Emit(receiptFor(connector.TierInert))
	}
	time.Sleep(50 * time.Millisecond)
	n, _ := store.Count(context.Background())
	assert.Equal(t, int64(0), n, "an unfilled batch stays buffered")

	p.Emit(receiptFor(connector.TierInert))
	require.Eventually(t, func() bool {
		n, _ := store.Count(context.Background())
		return n == int64(p.batchSize)
	}, time.Second, 5*time.Millisecond, "a full batch flushes")

	cancel()
	p.Wait()
}

func TestPipelineFlushesOnShutdown(t *testing.T) {
	store := NewMemoryReceiptStore(1000)
	p := NewReceiptPipeline(store, nil)
	p.flushInterval = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	p.Emit(receiptFor(connector.TierInert))
	p.Emit(receiptFor(connector.TierInert))
	time.Sleep(20 * time.Millisecond)

	cancel()
	p.Wait()

	n, _ := store.Count(context.Background())
	assert.Equal(t, int64(2), n, "shutdown flushes buffered receipts")
}

func TestReceiptCarriesNoPayload(t *testing.T) {
	r := receiptFor(connector.TierIrreversible)
	assert.NotEmpty(t, r.ReceiptID)
	assert.Equal(t, "T3_IRREVERSIBLE", r.Tier)
	assert.Equal(t, "connector.echo.get", r.Capability)
	// The struct has no field for params, bodies, or credentials; this
	// test documents that the wire form stays that way.
	assert.Equal(t, 200, r.StatusCode)
}
