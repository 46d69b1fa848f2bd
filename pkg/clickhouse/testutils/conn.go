// Package testutils provides testify mocks of the ClickHouse driver types.
package testutils

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/mock"
)

var _ driver.Conn = (*MockConn)(nil)

// MockConn is a mock implementation of driver.Conn. Query arguments are
// passed to Called after ctx and the query text.
type MockConn struct {
	mock.Mock
}

func (m *MockConn) Contributors() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *MockConn) ServerVersion() (*driver.ServerVersion, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*driver.ServerVersion), args.Error(1)
}

func (m *MockConn) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return m.Called(append([]interface{}{ctx, query}, args...)...).Error(0)
}

func (m *MockConn) Query(ctx context.Context, query string, args ...interface{}) (driver.Rows, error) {
	res := m.Called(append([]interface{}{ctx, query}, args...)...)
	if res.Get(0) == nil {
		return nil, res.Error(1)
	}
	return res.Get(0).(driver.Rows), res.Error(1)
}

func (m *MockConn) QueryRow(ctx context.Context, query string, args ...interface{}) driver.Row {
	res := m.Called(append([]interface{}{ctx, query}, args...)...)
	if res.Get(0) == nil {
		return nil
	}
	return res.Get(0).(driver.Row)
}

func (m *MockConn) Exec(ctx context.Context, query string, args ...interface{}) error {
	return m.Called(append([]interface{}{ctx, query}, args...)...).Error(0)
}

func (m *MockConn) AsyncInsert(ctx context.Context, query string, wait bool, args ...interface{}) error {
	return m.Called(append([]interface{}{ctx, query, wait}, args...)...).Error(0)
}

func (m *MockConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	callArgs := []interface{}{ctx, query}
	for _, opt := range opts {
		callArgs = append(callArgs, opt)
	}
	res := m.Called(callArgs...)
	if res.Get(0) == nil {
		return nil, res.Error(1)
	}
	return res.Get(0).(driver.Batch), res.Error(1)
}

func (m *MockConn) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockConn) Stats() driver.Stats {
	args := m.Called()
	if args.Get(0) == nil {
		return driver.Stats{}
	}
	return args.Get(0).(driver.Stats)
}

func (m *MockConn) Close() error {
	return m.Called().Error(0)
}

// MockBatch records appended rows. Only the methods used by batch inserts
// are implemented; anything else panics through the nil embedded interface.
type MockBatch struct {
	driver.Batch
	mock.Mock

	Appended [][]interface{}
}

func (b *MockBatch) Append(v ...interface{}) error {
	b.Appended = append(b.Appended, v)
	return b.Called(v...).Error(0)
}

func (b *MockBatch) Send() error {
	return b.Called().Error(0)
}

func (b *MockBatch) Abort() error {
	return b.Called().Error(0)
}

// StringRows is a driver.Rows over a single string column.
type StringRows struct {
	driver.Rows

	Values  []string
	ScanErr error
	pos     int
	closed  bool
}

func (r *StringRows) Next() bool {
	if r.pos >= len(r.Values) {
		return false
	}
	r.pos++
	return true
}

func (r *StringRows) Scan(dest ...interface{}) error {
	if r.ScanErr != nil {
		return r.ScanErr
	}
	if p, ok := dest[0].(*string); ok {
		*p = r.Values[r.pos-1]
	}
	return nil
}

func (r *StringRows) Err() error { return nil }

func (r *StringRows) Close() error {
	r.closed = true
	return nil
}

// Closed reports whether Close was called.
func (r *StringRows) Closed() bool { return r.closed }
