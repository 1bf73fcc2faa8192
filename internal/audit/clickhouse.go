package audit

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	mirrorBufferSize    = 10_000
	mirrorFlushInterval = 100 * time.Millisecond
	mirrorFlushBatch    = 1000
	mirrorDrainTimeout  = 2 * time.Second
)

// EventWriter receives copies of appended events for analytics. Write must
// never block the caller: the mirror is an observer, not the log of record,
// and may drop under pressure without affecting request handling.
type EventWriter interface {
	Write(e Event)
	Close()
}

// ClickHouseMirror streams audit events to ClickHouse asynchronously.
// Events are buffered and batch-inserted in a background goroutine.
type ClickHouseMirror struct {
	conn    driver.Conn
	buffer  chan Event
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	logger  *zap.Logger
}

// NewClickHouseMirror connects to ClickHouse and starts the flush loop.
func NewClickHouseMirror(dsn string, logger *zap.Logger) (*ClickHouseMirror, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	m := &ClickHouseMirror{
		conn:    conn,
		buffer:  make(chan Event, mirrorBufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}
	go m.flushLoop()
	return m, nil
}

// Write queues an event for async insertion. Non-blocking: drops the event
// if the buffer is full.
func (m *ClickHouseMirror) Write(e Event) {
	select {
	case m.buffer <- e:
	default:
		m.logger.Warn("clickhouse mirror buffer full, dropping event",
			zap.String("event_id", e.EventID),
		)
	}
}

// Close signals the flush loop to drain remaining events and waits for it.
func (m *ClickHouseMirror) Close() {
	close(m.done)
	<-m.flushed
}

func (m *ClickHouseMirror) flushLoop() {
	defer close(m.flushed)

	ticker := time.NewTicker(mirrorFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, mirrorFlushBatch)

	for {
		select {
		case e := <-m.buffer:
			batch = append(batch, e)
			if len(batch) >= mirrorFlushBatch {
				m.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				m.flush(batch)
				batch = batch[:0]
			}
		case <-m.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), mirrorDrainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case e := <-m.buffer:
					batch = append(batch, e)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				m.flush(batch)
			}
			return
		}
	}
}

func (m *ClickHouseMirror) flush(events []Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := m.conn.PrepareBatch(ctx, `
		INSERT INTO audit_events_mirror (
			event_id, correlation_id, component, action_type, risk_level,
			inputs_summary, outputs_summary, policy_decision, rationale,
			timestamp, seq, prev_hash, hash
		)
	`)
	if err != nil {
		m.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range events {
		if err := batch.Append(
			e.EventID, e.CorrelationID, e.Component, e.ActionType, e.RiskLevel,
			e.InputsSummary, e.OutputsSummary, e.PolicyDecision, e.Rationale,
			e.Timestamp, e.Seq, e.PrevHash, e.Hash,
		); err != nil {
			m.logger.Error("clickhouse append event failed",
				zap.String("event_id", e.EventID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		m.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

// LogWriter is the EventWriter fallback for local development, emitting
// events as structured log lines.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter on the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(e Event) {
	w.logger.Info("audit_event",
		zap.String("event_id", e.EventID),
		zap.String("correlation_id", e.CorrelationID),
		zap.String("component", e.Component),
		zap.String("action_type", e.ActionType),
		zap.String("risk_level", e.RiskLevel),
		zap.String("policy_decision", e.PolicyDecision),
		zap.String("rationale", e.Rationale),
		zap.Uint64("seq", e.Seq),
	)
}

func (w *LogWriter) Close() {}
