package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bubuagent/bubu-agent/internal/model"
	"github.com/bubuagent/bubu-agent/internal/repository"
	"github.com/bubuagent/bubu-agent/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock Redis adapter for testing
type mockRedisAdapter struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Time
}

func newMockRedisAdapter() *mockRedisAdapter {
	return &mockRedisAdapter{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Time),
	}
}

func (m *mockRedisAdapter) SetNX(key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.data[key]; exists {
		return false, nil
	}
	m.data[key] = value
	if ttl > 0 {
		m.ttls[key] = time.Now().Add(ttl)
	}
	return true, nil
}

func (m *mockRedisAdapter) Set(key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockRedisAdapter) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value, ok := m.data[key]; ok {
		return value, nil
	}
	return nil, redis.NilError
}

func (m *mockRedisAdapter) Del(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.ttls, key)
	return nil
}

func (m *mockRedisAdapter) Exist(key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return 1, nil
	}
	return 0, nil
}

func (m *mockRedisAdapter) Client() goredis.UniversalClient {
	return nil
}

// fakeStorage is an in-memory Storage with injectable failures.
type fakeStorage struct {
	mu       sync.Mutex
	rows     map[string]model.RecordStatus
	readErr  error
	claimErr error
	writeErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{rows: make(map[string]model.RecordStatus)}
}

func storageKey(date time.Time, slot model.MessageType) string {
	return model.DateKey(date) + "/" + slot.String()
}

func (f *fakeStorage) Exists(ctx context.Context, date time.Time, slot model.MessageType) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return false, f.readErr
	}
	return f.rows[storageKey(date, slot)] == model.RecordSent, nil
}

func (f *fakeStorage) TryClaim(ctx context.Context, date time.Time, slot model.MessageType) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return false, f.claimErr
	}
	key := storageKey(date, slot)
	if status, ok := f.rows[key]; ok && status != model.RecordFailed {
		return false, nil
	}
	f.rows[key] = model.RecordClaimed
	return true, nil
}

func (f *fakeStorage) Commit(ctx context.Context, rec *model.SentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	date, _ := time.Parse(model.DateLayout, rec.Date)
	f.rows[storageKey(date, rec.Slot)] = rec.Status
	return nil
}

func TestGate_IsAlreadySent(t *testing.T) {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	t.Run("unsent slot", func(t *testing.T) {
		g := New(newFakeStorage(), nil, DefaultConfig())
		assert.False(t, g.IsAlreadySent(context.Background(), day, model.TypeMorning))
	})

	t.Run("delivered slot", func(t *testing.T) {
		storage := newFakeStorage()
		g := New(storage, nil, DefaultConfig())
		require.True(t, g.Claim(context.Background(), day, model.TypeMorning))
		require.NoError(t, g.Record(context.Background(), &model.SentRecord{
			Date:   model.DateKey(day),
			Slot:   model.TypeMorning,
			Status: model.RecordSent,
		}))
		assert.True(t, g.IsAlreadySent(context.Background(), day, model.TypeMorning))
	})

	t.Run("fails open on storage error", func(t *testing.T) {
		storage := newFakeStorage()
		storage.readErr = errors.New("connection refused")
		g := New(storage, nil, DefaultConfig())
		assert.False(t, g.IsAlreadySent(context.Background(), day, model.TypeMorning))
	})
}

func TestGate_Claim(t *testing.T) {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	t.Run("only one of two racing claims wins", func(t *testing.T) {
		g := New(newFakeStorage(), newMockRedisAdapter(), DefaultConfig())

		results := make(chan bool, 2)
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- g.Claim(context.Background(), day, model.TypeNight)
			}()
		}
		wg.Wait()
		close(results)

		wins := 0
		for won := range results {
			if won {
				wins++
			}
		}
		assert.Equal(t, 1, wins)
	})

	t.Run("claim proceeds when storage is down", func(t *testing.T) {
		storage := newFakeStorage()
		storage.claimErr = errors.New("connection refused")
		g := New(storage, nil, DefaultConfig())
		assert.True(t, g.Claim(context.Background(), day, model.TypeMorning))
	})

	t.Run("failed slot can be reclaimed after record", func(t *testing.T) {
		storage := newFakeStorage()
		g := New(storage, newMockRedisAdapter(), DefaultConfig())

		require.True(t, g.Claim(context.Background(), day, model.TypeFlirty))
		require.NoError(t, g.Record(context.Background(), &model.SentRecord{
			Date:   model.DateKey(day),
			Slot:   model.TypeFlirty,
			Status: model.RecordFailed,
		}))

		assert.True(t, g.Claim(context.Background(), day, model.TypeFlirty))
	})

	t.Run("delivered slot stays closed", func(t *testing.T) {
		storage := newFakeStorage()
		g := New(storage, nil, DefaultConfig())

		require.True(t, g.Claim(context.Background(), day, model.TypeMorning))
		require.NoError(t, g.Record(context.Background(), &model.SentRecord{
			Date:   model.DateKey(day),
			Slot:   model.TypeMorning,
			Status: model.RecordSent,
		}))

		assert.False(t, g.Claim(context.Background(), day, model.TypeMorning))
	})
}

func TestGate_Record(t *testing.T) {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	t.Run("write failure is surfaced", func(t *testing.T) {
		storage := newFakeStorage()
		storage.writeErr = errors.New("disk full")
		g := New(storage, nil, DefaultConfig())
		err := g.Record(context.Background(), &model.SentRecord{
			Date:   model.DateKey(day),
			Slot:   model.TypeMorning,
			Status: model.RecordSent,
		})
		assert.Error(t, err)
	})
}

func TestGate_NullStorage(t *testing.T) {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	g := New(repository.NewNullStorage(), nil, DefaultConfig())

	assert.False(t, g.IsAlreadySent(context.Background(), day, model.TypeMorning))
	assert.True(t, g.Claim(context.Background(), day, model.TypeMorning))
	// without real storage nothing ever sticks
	assert.True(t, g.Claim(context.Background(), day, model.TypeMorning))
	assert.NoError(t, g.Record(context.Background(), &model.SentRecord{
		Date:   model.DateKey(day),
		Slot:   model.TypeMorning,
		Status: model.RecordSent,
	}))
}

func TestGate_WithRealRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	adapter, err := redis.NewRedisAdapter("gate-test", "bubu:", &redis.Options{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	g := New(newFakeStorage(), adapter, DefaultConfig())

	assert.True(t, g.Claim(context.Background(), day, model.TypeNight))
	// the fence alone rejects the second attempt before storage is consulted
	assert.False(t, g.Claim(context.Background(), day, model.TypeNight))
}
