package governance

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/myles1663/lancelot-sub000/internal/connector"
)

// Receipt is the immutable audit record of one governed execution. It
// never contains credentials, parameters, or response bodies.
type Receipt struct {
	ReceiptID   string    `json:"receipt_id"`
	Timestamp   time.Time `json:"timestamp"`
	ConnectorID string    `json:"connector_id"`
	OperationID string    `json:"operation_id"`
	Capability  string    `json:"capability"`
	Tier        string    `json:"tier"`
	StatusCode  int       `json:"status_code"`
	Success     bool      `json:"success"`
}

func newReceipt(capability string, tier connector.RiskTier, resp *connector.Response) Receipt {
	return Receipt{
		ReceiptID:   uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		ConnectorID: resp.ConnectorID,
		OperationID: resp.OperationID,
		Capability:  capability,
		Tier:        tier.String(),
		StatusCode:  resp.StatusCode,
		Success:     resp.Success,
	}
}

// ReceiptStore persists receipts. Implementations must be safe for
// concurrent use.
type ReceiptStore interface {
	Append(ctx context.Context, r Receipt) error
	Recent(ctx context.Context, limit int) ([]Receipt, error)
	Count(ctx context.Context) (int64, error)
}

// ============================================================================
// MEMORY STORE
// ============================================================================

// MemoryReceiptStore keeps receipts in a bounded ring.
type MemoryReceiptStore struct {
	mu       sync.RWMutex
	receipts []Receipt
	max      int
	total    int64
}

// NewMemoryReceiptStore builds a store holding at most max receipts.
func NewMemoryReceiptStore(max int) *MemoryReceiptStore {
	if max <= 0 {
		max = 10000
	}
	return &MemoryReceiptStore{max: max}
}

func (s *MemoryReceiptStore) Append(_ context.Context, r Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	s.total++
	if len(s.receipts) > s.max {
		s.receipts = s.receipts[len(s.receipts)-s.max:]
	}
	return nil
}

func (s *MemoryReceiptStore) Recent(_ context.Context, limit int) ([]Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.receipts)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Receipt, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.receipts[n-1-i]
	}
	return out, nil
}

func (s *MemoryReceiptStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total, nil
}

// ============================================================================
// REDIS STORE
// ============================================================================

const redisReceiptKey = "connectorplane:receipts"

// RedisReceiptStore persists receipts to a Redis list, newest first.
type RedisReceiptStore struct {
	client *redis.Client
	max    int64
}

// NewRedisReceiptStore builds a store trimming the list to max entries.
func NewRedisReceiptStore(client *redis.Client, max int64) *RedisReceiptStore {
	if max <= 0 {
		max = 100000
	}
	return &RedisReceiptStore{client: client, max: max}
}

func (s *RedisReceiptStore) Append(ctx context.Context, r Receipt) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, redisReceiptKey, raw)
	pipe.LTrim(ctx, redisReceiptKey, 0, s.max-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisReceiptStore) Recent(ctx context.Context, limit int) ([]Receipt, error) {
	if limit <= 0 {
		limit = 100
	}
	raws, err := s.client.LRange(ctx, redisReceiptKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Receipt, 0, len(raws))
	for _, raw := range raws {
		var r Receipt
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *RedisReceiptStore) Count(ctx context.Context) (int64, error) {
	return s.client.LLen(ctx, redisReceiptKey).Result()
}

// ============================================================================
// PIPELINE
// ============================================================================

const (
	defaultBatchSize     = 50
	defaultFlushInterval = 5 * time.Second
)

// ReceiptPipeline routes receipts off the request path. T0 receipts are
// batched and flushed on a timer or when the batch fills; T1 and above go
// to the store immediately.
type ReceiptPipeline struct {
	ch    chan Receipt
	store ReceiptStore

	batchSize     int
	flushInterval time.Duration

	mu      sync.Mutex
	batch   []Receipt
	dropped int64

	done   chan struct{}
	logger *slog.Logger
}

// NewReceiptPipeline builds a pipeline over the given store.
func NewReceiptPipeline(store ReceiptStore, logger *slog.Logger) *ReceiptPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiptPipeline{
		ch:            make(chan Receipt, 1024),
		store:         store,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		done:          make(chan struct{}),
		logger:        logger.With("component", "receipts"),
	}
}

// Emit queues a receipt. Never blocks the request path; if the channel is
// full the receipt is dropped and counted.
func (p *ReceiptPipeline) Emit(r Receipt) {
	select {
	case p.ch <- r:
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		p.logger.Warn("receipt dropped, pipeline backlogged", "receipt_id", r.ReceiptID)
	}
}

// Start runs the drainer until ctx ends, then flushes what remains.
func (p *ReceiptPipeline) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case r := <-p.ch:
				p.handle(ctx, r)
			case <-ticker.C:
				p.flush(ctx)
			case <-ctx.Done():
				p.drainRemaining()
				p.flush(context.Background())
				return
			}
		}
	}()
}

// Wait blocks until the drainer has exited.
func (p *ReceiptPipeline) Wait() { <-p.done }

func (p *ReceiptPipeline) handle(ctx context.Context, r Receipt) {
	if r.Tier == connector.TierInert.String() {
		p.mu.Lock()
		p.batch = append(p.batch, r)
		full := len(p.batch) >= p.batchSize
		p.mu.Unlock()
		if full {
			p.flush(ctx)
		}
		return
	}
	if err := p.store.Append(ctx, r); err != nil {
		p.logger.Error("storing receipt failed", "receipt_id", r.ReceiptID, "err", err)
	}
}

func (p *ReceiptPipeline) flush(ctx context.Context) {
	p.mu.Lock()
	batch := p.batch
	p.batch = nil
	p.mu.Unlock()
	for _, r := range batch {
		if err := p.store.Append(ctx, r); err != nil {
			p.logger.Error("flushing batched receipt failed", "receipt_id", r.ReceiptID, "err", err)
		}
	}
}

func (p *ReceiptPipeline) drainRemaining() {
	for {
		select {
		case r := <-p.ch:
			p.mu.Lock()
			p.batch = append(p.batch, r)
			p.mu.Unlock()
		default:
			return
		}
	}
}

// Dropped reports how many receipts were shed under backpressure.
func (p *ReceiptPipeline) Dropped() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}
