package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// --- DeviceRepository Tests ---

func TestDeviceRepository_DisplayName_Found(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDeviceRepository(db)

	row := &mockRow{scanFn: func(dest ...any) error {
		*(dest[0].(*string)) = "Loading Dock Camera"
		return nil
	}}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(row)

	name, err := repo.DisplayName(context.Background(), "AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)
	assert.Equal(t, "Loading Dock Camera", name)
	db.AssertExpectations(t)
}

func TestDeviceRepository_DisplayName_Unknown(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDeviceRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.DisplayName(context.Background(), "00:00:00:00:00:00")
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestDeviceRepository_DisplayName_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDeviceRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("connection reset")})

	_, err := repo.DisplayName(context.Background(), "AA:BB")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownDevice)
}

// --- StaticRegistry Tests ---

func TestStaticRegistry_CaseInsensitive(t *testing.T) {
	reg := NewStaticRegistry(map[string]string{
		"AA:BB:CC:DD:EE:FF": "Front Door",
	})

	name, err := reg.DisplayName(context.Background(), "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.Equal(t, "Front Door", name)

	_, err = reg.DisplayName(context.Background(), "11:22:33:44:55:66")
	assert.ErrorIs(t, err, ErrUnknownDevice)
}
