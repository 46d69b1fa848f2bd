package checkpointer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ava-labs/evm-address-scanner/pkg/extractor"
	"github.com/ava-labs/evm-address-scanner/pkg/metrics"
)

const (
	addrA = extractor.Address("0xaaaa000000000000000000000000000000000001")
	addrB = extractor.Address("0xbbbb000000000000000000000000000000000002")
	addrC = extractor.Address("0xcccc000000000000000000000000000000000003")
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Initialize(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockBackend) ReadCursor(ctx context.Context) (uint64, bool, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Bool(1), args.Error(2)
}

func (m *mockBackend) LoadAddresses(ctx context.Context, fn func(string) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}

func (m *mockBackend) Write(ctx context.Context, cursor uint64, addrs []extractor.Address) error {
	args := m.Called(ctx, cursor, addrs)
	return args.Error(0)
}

func (m *mockBackend) Delete(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockBackend) Close() error {
	args := m.Called()
	return args.Error(0)
}

type headStub struct {
	head uint64
	err  error
}

func (h headStub) BlockNumber(context.Context) (uint64, error) { return h.head, h.err }

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishBatch(ctx context.Context, cursor uint64, addrs []extractor.Address) error {
	args := m.Called(ctx, cursor, addrs)
	return args.Error(0)
}

func testConfig() Config {
	return Config{WriteTimeout: time.Second, MaxRetries: 0, RetryBackoff: time.Millisecond}
}

// streamAddresses makes LoadAddresses feed raw to its callback.
func streamAddresses(raw ...string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		fn := args.Get(1).(func(string) error)
		for _, r := range raw {
			_ = fn(r)
		}
	}
}

// loadedStore returns a store loaded at cursor with no persisted addresses.
func loadedStore(t *testing.T, b *mockBackend, cursor uint64, opts ...Option) *Store {
	t.Helper()
	b.On("Initialize", mock.Anything).Return(nil).Once()
	b.On("ReadCursor", mock.Anything).Return(cursor, true, nil).Once()
	b.On("LoadAddresses", mock.Anything, mock.Anything).Return(nil).Once()

	s, err := NewStore(b, testConfig(), zap.NewNop().Sugar(), opts...)
	require.NoError(t, err)
	got, err := s.Load(t.Context(), headStub{})
	require.NoError(t, err)
	require.Equal(t, cursor, got)
	return s
}

func TestNewStore_Validation(t *testing.T) {
	t.Parallel()
	_, err := NewStore(nil, testConfig(), zap.NewNop().Sugar())
	require.ErrorIs(t, err, ErrInvalidBackend)

	_, err = NewStore(&mockBackend{}, testConfig(), nil)
	require.ErrorIs(t, err, ErrInvalidLogger)
}

func TestLoad_PersistedCursorAndAddresses(t *testing.T) {
	t.Parallel()
	b := &mockBackend{}
	b.On("Initialize", mock.Anything).Return(nil).Once()
	b.On("ReadCursor", mock.Anything).Return(uint64(42), true, nil).Once()
	b.On("LoadAddresses", mock.Anything, mock.Anything).
		Run(streamAddresses(
			"0xAAAA000000000000000000000000000000000001",
			"0xaaaa000000000000000000000000000000000001",
			"garbage",
			"bbbb000000000000000000000000000000000002",
		)).
		Return(nil).Once()

	s, err := NewStore(b, testConfig(), zap.NewNop().Sugar())
	require.NoError(t, err)

	cursor, err := s.Load(t.Context(), headStub{head: 1000})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), cursor)
	assert.Equal(t, uint64(42), s.Cursor())
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 0, s.Pending())
	assert.True(t, s.Contains(addrA))
	assert.True(t, s.Contains(addrB))
	b.AssertExpectations(t)
}

func TestLoad_FallsBackToAboveHead(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		exists  bool
		readErr error
	}{
		{name: "absent cursor", exists: false},
		{name: "unreadable cursor", readErr: errors.New("corrupt cursor file")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := &mockBackend{}
			b.On("Initialize", mock.Anything).Return(nil).Once()
			b.On("ReadCursor", mock.Anything).Return(uint64(0), tt.exists, tt.readErr).Once()
			b.On("LoadAddresses", mock.Anything, mock.Anything).Return(nil).Once()

			s, err := NewStore(b, testConfig(), zap.NewNop().Sugar())
			require.NoError(t, err)

			cursor, err := s.Load(t.Context(), headStub{head: 19_000_000})
			require.NoError(t, err)
			require.Equal(t, uint64(19_000_001), cursor, "head block is scanned first")
			b.AssertExpectations(t)
		})
	}
}

func TestLoad_HeadFailureIsReturned(t *testing.T) {
	t.Parallel()
	b := &mockBackend{}
	b.On("Initialize", mock.Anything).Return(nil).Once()
	b.On("ReadCursor", mock.Anything).Return(uint64(0), false, nil).Once()

	s, err := NewStore(b, testConfig(), zap.NewNop().Sugar())
	require.NoError(t, err)

	headErr := errors.New("all endpoints down")
	_, err = s.Load(t.Context(), headStub{err: headErr})
	require.ErrorIs(t, err, headErr)
}

func TestLoad_UnreadableAddressLogStartsEmpty(t *testing.T) {
	t.Parallel()
	b := &mockBackend{}
	b.On("Initialize", mock.Anything).Return(nil).Once()
	b.On("ReadCursor", mock.Anything).Return(uint64(500), true, nil).Once()
	b.On("LoadAddresses", mock.Anything, mock.Anything).
		Run(streamAddresses(string(addrA))).
		Return(errors.New("truncated log")).Once()

	s, err := NewStore(b, testConfig(), zap.NewNop().Sugar())
	require.NoError(t, err)

	cursor, err := s.Load(t.Context(), headStub{})
	require.NoError(t, err)
	require.Equal(t, uint64(500), cursor)
	require.Equal(t, 0, s.Len())
}

func TestLoad_InitializeFailure(t *testing.T) {
	t.Parallel()
	b := &mockBackend{}
	initErr := errors.New("permission denied")
	b.On("Initialize", mock.Anything).Return(initErr).Once()

	s, err := NewStore(b, testConfig(), zap.NewNop().Sugar())
	require.NoError(t, err)

	_, err = s.Load(t.Context(), headStub{})
	require.ErrorIs(t, err, initErr)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "initialize", perr.Op)
}

func TestLoad_StartCursorOverridesPersisted(t *testing.T) {
	t.Parallel()
	b := &mockBackend{}
	b.On("Initialize", mock.Anything).Return(nil).Once()
	b.On("LoadAddresses", mock.Anything, mock.Anything).Return(nil).Once()

	s, err := NewStore(b, testConfig(), zap.NewNop().Sugar(), WithStartCursor(100))
	require.NoError(t, err)

	cursor, err := s.Load(t.Context(), headStub{head: 5000})
	require.NoError(t, err)
	require.Equal(t, uint64(100), cursor)
	b.AssertNotCalled(t, "ReadCursor", mock.Anything)
}

func TestRecord_Idempotent(t *testing.T) {
	t.Parallel()
	s := loadedStore(t, &mockBackend{}, 100)

	require.True(t, s.Record(addrA))
	require.False(t, s.Record(addrA))
	require.True(t, s.Record(addrB))
	require.False(t, s.Record(addrA))

	require.Equal(t, 2, s.Len())
	require.Equal(t, 2, s.Pending())
}

func TestFlush_WritesPendingAndClears(t *testing.T) {
	t.Parallel()
	b := &mockBackend{}
	s := loadedStore(t, b, 100)
	s.Record(addrA)
	s.Record(addrB)

	b.On("Write", mock.Anything, uint64(90), []extractor.Address{addrA, addrB}).Return(nil).Once()

	require.NoError(t, s.Flush(t.Context(), 90))
	require.Equal(t, 0, s.Pending())
	require.Equal(t, uint64(90), s.Cursor())
	require.Equal(t, 2, s.Len())
	b.AssertExpectations(t)
}

func TestFlush_NoopWhenNothingChanged(t *testing.T) {
	t.Parallel()
	b := &mockBackend{}
	s := loadedStore(t, b, 100)

	require.NoError(t, s.Flush(t.Context(), 100))
	b.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything)
}

func TestFlush_CursorOnlyAdvance(t *testing.T) {
	t.Parallel()
	b := &mockBackend{}
	s := loadedStore(t, b, 100)

	b.On("Write", mock.Anything, uint64(50), []extractor.Address(nil)).Return(nil).Once()
	require.NoError(t, s.Flush(t.Context(), 50))
	b.AssertExpectations(t)
}

func TestFlush_RejectsRegression(t *testing.T) {
	t.Parallel()
	b := &mockBackend{}
	s := loadedStore(t, b, 100)

	err := s.Flush(t.Context(), 101)
	require.ErrorIs(t, err, ErrCursorRegression)
	b.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything)
}

func TestFlush_BeforeLoad(t *testing.T) {
	t.Parallel()
	s, err := NewStore(&mockBackend{}, testConfig(), zap.NewNop().Sugar())
	require.NoError(t, err)
	require.ErrorIs(t, s.Flush(t.Context(), 1), ErrNotLoaded)
}

func TestFlush_FailureRetainsBatch(t *testing.T) {
	t.Parallel()
	b := &mockBackend{}
	s := loadedStore(t, b, 100)
	s.Record(addrA)

	writeErr := errors.New("disk full")
	b.On("Write", mock.Anything, uint64(90), []extractor.Address{addrA}).Return(writeErr).Once()

	err := s.Flush(t.Context(), 90)
	require.ErrorIs(t, err, writeErr)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, uint64(90), perr.Cursor)
	require.Equal(t, 1, s.Pending())
	require.Equal(t, uint64(100), s.Cursor())

	// The retained batch goes out with the next flush.
	s.Record(addrB)
	b.On("Write", mock.Anything, uint64(80), []extractor.Address{addrA, addrB}).Return(nil).Once()
	require.NoError(t, s.Flush(t.Context(), 80))
	require.Equal(t, 0, s.Pending())
	b.AssertExpectations(t)
}

func TestFlush_RetriesWithinFlush(t *testing.T) {
	t.Parallel()
	b := &mockBackend{}
	b.On("Initialize", mock.Anything).Return(nil).Once()
	b.On("ReadCursor", mock.Anything).Return(uint64(100), true, nil).Once()
	b.On("LoadAddresses", mock.Anything, mock.Anything).Return(nil).Once()

	cfg := Config{WriteTimeout: time.Second, MaxRetries: 2, RetryBackoff: time.Millisecond}
	s, err := NewStore(b, cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	_, err = s.Load(t.Context(), headStub{})
	require.NoError(t, err)

	s.Record(addrC)
	b.On("Write", mock.Anything, uint64(99), []extractor.Address{addrC}).Return(errors.New("timeout")).Twice()
	b.On("Write", mock.Anything, uint64(99), []extractor.Address{addrC}).Return(nil).Once()

	require.NoError(t, s.Flush(t.Context(), 99))
	b.AssertNumberOfCalls(t, "Write", 3)
}

func TestFlush_MonotonicCursors(t *testing.T) {
	t.Parallel()
	b := &mockBackend{}
	s := loadedStore(t, b, 10)

	var written []uint64
	b.On("Write", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { written = append(written, args.Get(1).(uint64)) }).
		Return(nil)

	for c := uint64(9); c >= 2; c-- {
		require.NoError(t, s.Flush(t.Context(), c))
	}
	for i := 1; i < len(written); i++ {
		require.Less(t, written[i], written[i-1])
	}
}

func TestFlush_PublishesBatch(t *testing.T) {
	t.Parallel()
	b := &mockBackend{}
	p := &mockPublisher{}
	s := loadedStore(t, b, 100, WithPublisher(p))
	s.Record(addrA)

	b.On("Write", mock.Anything, uint64(90), []extractor.Address{addrA}).Return(nil).Once()
	p.On("PublishBatch", mock.Anything, uint64(90), []extractor.Address{addrA}).
		Return(errors.New("broker down")).Once()

	// Publish failures do not fail the flush.
	require.NoError(t, s.Flush(t.Context(), 90))
	require.Equal(t, 0, s.Pending())

	// Cursor-only flushes publish nothing.
	b.On("Write", mock.Anything, uint64(80), []extractor.Address(nil)).Return(nil).Once()
	require.NoError(t, s.Flush(t.Context(), 80))

	p.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestFlush_RecordsMetrics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	b := &mockBackend{}
	s := loadedStore(t, b, 100, WithMetrics(m))
	s.Record(addrA)

	b.On("Write", mock.Anything, uint64(95), mock.Anything).Return(errors.New("boom")).Once()
	require.Error(t, s.Flush(t.Context(), 95))
	b.On("Write", mock.Anything, uint64(95), mock.Anything).Return(nil).Once()
	require.NoError(t, s.Flush(t.Context(), 95))

	expected := `
# HELP scanner_cursor Last block handled by the descending scan
# TYPE scanner_cursor gauge
scanner_cursor 95
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "scanner_cursor"))
}

func TestClose(t *testing.T) {
	t.Parallel()
	b := &mockBackend{}
	b.On("Close").Return(nil).Once()
	s, err := NewStore(b, testConfig(), zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	b.AssertExpectations(t)
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 300*time.Millisecond, cfg.RetryBackoff)
}
