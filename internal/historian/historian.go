// internal/historian/historian.go
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/beezo-bot/beezo/internal/database"
	"github.com/beezo-bot/beezo/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Queue is the slice of the Redis API the historian reads with; *redis.Client satisfies it.
type Queue interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Store persists action batches.
type Store interface {
	InsertSessionActions(ctx context.Context, recs []models.SessionActionRecord) error
	MarkSessionAbandoned(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

// PGStore is the Postgres Store.
type PGStore struct {
	Pool *pgxpool.Pool
}

func (s PGStore) InsertSessionActions(ctx context.Context, recs []models.SessionActionRecord) error {
	return database.InsertSessionActions(ctx, s.Pool, recs)
}

func (s PGStore) MarkSessionAbandoned(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	return database.MarkSessionAbandoned(ctx, s.Pool, sessionID)
}

type Config struct {
	QueueName     string
	BatchSize     int
	FlushInterval time.Duration
	// Inactivity is how long a session may go without actions before it is marked abandoned.
	Inactivity    time.Duration
	SweepInterval time.Duration
	PopTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueName == "" {
		c.QueueName = "beezo_actions"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 500 * time.Millisecond
	}
	if c.Inactivity <= 0 {
		c.Inactivity = 10 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.PopTimeout <= 0 {
		c.PopTimeout = 3 * time.Second
	}
	return c
}

// Service pops session action records from the Redis queue, persists them in batches and marks
// sessions abandoned after a period of inactivity.
type Service struct {
	queue  Queue
	store  Store
	cfg    Config
	logger logrus.FieldLogger
	now    func() time.Time

	lastActivity sync.Map // uuid.UUID -> time.Time

	batchMu sync.Mutex
	batch   []models.SessionActionRecord
}

func New(queue Queue, store Store, cfg Config, logger logrus.FieldLogger) *Service {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		queue:  queue,
		store:  store,
		cfg:    cfg,
		logger: logger.WithField("component", "historian"),
		now:    time.Now,
		batch:  make([]models.SessionActionRecord, 0, cfg.BatchSize),
	}
}

// Run reads until ctx is cancelled, then flushes what is left.
func (s *Service) Run(ctx context.Context) {
	go s.inactivityLoop(ctx)
	s.logger.WithField("queue", s.cfg.QueueName).Info("historian started")

	s.readLoop(ctx)

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Flush(flushCtx)
	s.logger.Info("historian stopped")
}

func (s *Service) readLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			s.Flush(ctx)

		default:
			res, err := s.queue.BLPop(ctx, s.cfg.PopTimeout, s.cfg.QueueName).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					s.logger.WithError(err).Error("BLPop failed")
					time.Sleep(s.cfg.FlushInterval)
				}
				continue
			}
			if len(res) < 2 {
				continue
			}
			// res[0] is the queue name and res[1] the payload.
			s.Handle(ctx, res[1])
		}
	}
}

// Handle decodes one queue payload and adds it to the batch, flushing when the batch is full.
func (s *Service) Handle(ctx context.Context, payload string) {
	var rec models.SessionActionRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		s.logger.WithError(err).Warn("invalid action record")
		return
	}

	if rec.ActionType == models.ActionSessionEnd {
		s.lastActivity.Delete(rec.SessionID)
	} else {
		s.lastActivity.Store(rec.SessionID, s.now())
	}

	s.batchMu.Lock()
	s.batch = append(s.batch, rec)
	full := len(s.batch) >= s.cfg.BatchSize
	s.batchMu.Unlock()

	if full {
		s.Flush(ctx)
	}
}

// Flush writes the pending batch in one transaction and reports how many records it held.
// A failed batch is logged and dropped.
func (s *Service) Flush(ctx context.Context) int {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return 0
	}
	pending := make([]models.SessionActionRecord, len(s.batch))
	copy(pending, s.batch)
	s.batch = s.batch[:0]
	s.batchMu.Unlock()

	if err := s.store.InsertSessionActions(ctx, pending); err != nil {
		s.logger.WithError(err).WithField("count", len(pending)).Error("failed to flush action batch")
		return 0
	}
	s.logger.WithField("count", len(pending)).Debug("flushed actions")
	return len(pending)
}

// Pending reports the number of buffered records.
func (s *Service) Pending() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}

func (s *Service) inactivityLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep marks every session idle for longer than the inactivity timeout as abandoned and
// returns how many it marked.
func (s *Service) Sweep(ctx context.Context) int {
	now := s.now()
	marked := 0
	s.lastActivity.Range(func(key, val interface{}) bool {
		sessionID, ok1 := key.(uuid.UUID)
		last, ok2 := val.(time.Time)
		if !ok1 || !ok2 || now.Sub(last) <= s.cfg.Inactivity {
			return true
		}
		changed, err := s.store.MarkSessionAbandoned(ctx, sessionID)
		if err != nil {
			s.logger.WithError(err).WithField("session", sessionID).Error("failed to mark session abandoned")
			return true
		}
		s.lastActivity.Delete(sessionID)
		if changed {
			marked++
			s.logger.WithField("session", sessionID).Info("marked session abandoned due to inactivity")
		}
		return true
	})
	return marked
}
