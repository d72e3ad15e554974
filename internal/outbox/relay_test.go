package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"civicdesk/pkg/platform/circuit"
	"civicdesk/pkg/platform/tx"
)

type fakeStore struct {
	mu        sync.Mutex
	rows      []Message
	published map[uuid.UUID]time.Time
}

func (f *fakeStore) ClaimBatch(_ context.Context, limit int) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, m := range f.rows {
		if _, ok := f.published[m.ID]; ok {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) MarkPublished(_ context.Context, ids []uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msgID := range ids {
		f.published[msgID] = at
	}
	return nil
}

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]Message
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, msgs []Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, append([]Message(nil), msgs...))
	return nil
}

func (f *fakePublisher) sent() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

type RelaySuite struct {
	suite.Suite
	store     *fakeStore
	publisher *fakePublisher
	metrics   *Metrics
	relay     *Relay
	now       time.Time
}

func TestRelaySuite(t *testing.T) {
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupTest() {
	s.now = time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	s.store = &fakeStore{published: map[uuid.UUID]time.Time{}}
	s.publisher = &fakePublisher{}
	s.metrics = NewMetrics(prometheus.NewRegistry())

	relay, err := NewRelay(s.store, tx.NewMemoryTransactor(), s.publisher,
		WithBatchSize(2),
		WithInterval(10*time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)
	s.relay = relay
}

func (s *RelaySuite) seed(n int) []Message {
	msgs := make([]Message, n)
	for i := range msgs {
		msgs[i] = Message{
			ID:            uuid.New(),
			AggregateType: "complaint",
			AggregateID:   uuid.NewString(),
			EventType:     "CREATE_COMPLAINT",
			Payload:       []byte(`{}`),
			CreatedAt:     s.now.Add(time.Duration(i) * time.Second),
		}
	}
	s.store.rows = append(s.store.rows, msgs...)
	return msgs
}

func (s *RelaySuite) TestNewRelay() {
	s.Run("requires dependencies", func() {
		_, err := NewRelay(nil, tx.NewMemoryTransactor(), s.publisher)
		s.Error(err)
		_, err = NewRelay(s.store, nil, s.publisher)
		s.Error(err)
		_, err = NewRelay(s.store, tx.NewMemoryTransactor(), nil)
		s.Error(err)
	})
}

func (s *RelaySuite) TestRunOnce() {
	s.Run("drains every batch in creation order", func() {
		msgs := s.seed(5)

		n, err := s.relay.RunOnce(context.Background())
		s.Require().NoError(err)
		s.Equal(5, n)

		sent := s.publisher.sent()
		s.Require().Len(sent, 5)
		for i := range msgs {
			s.Equal(msgs[i].ID, sent[i].ID)
			s.Equal(s.now, s.store.published[msgs[i].ID])
		}
		s.Len(s.publisher.batches, 3)
		s.Equal(float64(5), testutil.ToFloat64(s.metrics.Published))
	})

	s.Run("published rows are not sent again", func() {
		n, err := s.relay.RunOnce(context.Background())
		s.Require().NoError(err)
		s.Zero(n)
		s.Len(s.publisher.sent(), 5)
	})
}

func (s *RelaySuite) TestPublishFailure() {
	msgs := s.seed(3)
	s.publisher.err = errors.New("broker unavailable")

	n, err := s.relay.RunOnce(context.Background())
	s.Require().Error(err)
	s.Zero(n)
	s.Empty(s.store.published)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.PublishFailures))

	s.publisher.err = nil
	n, err = s.relay.RunOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(3, n)
	for _, m := range msgs {
		s.Contains(s.store.published, m.ID)
	}
}

func (s *RelaySuite) TestBrokerCircuit() {
	relay, err := NewRelay(s.store, tx.NewMemoryTransactor(), s.publisher,
		WithInterval(time.Second),
		WithMetrics(s.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithBreaker(circuit.New("kafka", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1))),
	)
	s.Require().NoError(err)
	s.seed(1)
	s.publisher.err = errors.New("broker unavailable")

	s.Run("repeated failures slow polling", func() {
		_, err := relay.RunOnce(context.Background())
		s.Require().Error(err)
		s.Equal(time.Second, relay.nextWait())

		_, err = relay.RunOnce(context.Background())
		s.Require().Error(err)
		s.Equal(openBackoff*time.Second, relay.nextWait())
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.CircuitOpen))
	})

	s.Run("a successful publish restores polling", func() {
		s.publisher.err = nil
		n, err := relay.RunOnce(context.Background())
		s.Require().NoError(err)
		s.Equal(1, n)
		s.Equal(time.Second, relay.nextWait())
		s.Zero(testutil.ToFloat64(s.metrics.CircuitOpen))
	})
}

func (s *RelaySuite) TestRunStopsOnCancel() {
	s.seed(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.relay.Run(ctx) }()

	s.Eventually(func() bool { return len(s.publisher.sent()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(time.Second):
		s.Fail("relay did not stop after cancel")
	}
}
