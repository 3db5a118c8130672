package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-fulfillment/pkg/apperr"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func TestDerivedStatus(t *testing.T) {
	r := NewRecord("p-1", "Mug", 0, now)
	assert.Equal(t, StatusOutOfStock, r.Status())

	require.NoError(t, r.Restock(2, now))
	assert.Equal(t, StatusAvailable, r.Status())

	_, err := r.Reserve("o-1", 2, "RES-1", now, DefaultReservationTTL)
	require.NoError(t, err)
	assert.Equal(t, StatusReserved, r.Status())
	assert.Equal(t, 0, r.Available)
	assert.Equal(t, 2, r.Reserved)
}

func TestReserveRules(t *testing.T) {
	r := NewRecord("p-1", "Mug", 5, now)
	_, err := r.Reserve("o-1", 6, "RES-1", now, DefaultReservationTTL)
	assert.True(t, apperr.Is(err, apperr.CodeInsufficientStock))
	assert.Contains(t, err.Error(), "Available: 5, Requested: 6")
	assert.Equal(t, 5, r.Available)

	_, err = r.Reserve("o-1", 0, "RES-1", now, DefaultReservationTTL)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	res, err := r.Reserve("o-1", 3, "RES-1", now, DefaultReservationTTL)
	require.NoError(t, err)
	assert.Equal(t, now.Add(24*time.Hour), res.ExpiresAt)

	_, err = r.Reserve("o-1", 1, "RES-2", now, DefaultReservationTTL)
	assert.Error(t, err)
	assert.Len(t, r.Reservations, 1)
}

func TestReleaseAndConfirm(t *testing.T) {
	r := NewRecord("p-1", "Mug", 5, now)
	_, err := r.Reserve("o-1", 3, "RES-1", now, DefaultReservationTTL)
	require.NoError(t, err)

	res, err := r.Release("o-1", now)
	require.NoError(t, err)
	assert.Equal(t, ReservationCancelled, res.Status)
	assert.Equal(t, 5, r.Available)
	assert.Equal(t, 0, r.Reserved)

	res, err = r.Release("o-1", now)
	require.NoError(t, err)
	assert.Nil(t, res)

	_, err = r.Reserve("o-2", 2, "RES-2", now, DefaultReservationTTL)
	require.NoError(t, err)
	_, err = r.Confirm("o-2", now)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Available)
	assert.Equal(t, 0, r.Reserved)

	_, err = r.Release("o-2", now)
	assert.True(t, apperr.Is(err, apperr.CodeReservationConfirmed))
	_, err = r.Confirm("o-2", now)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))
	_, err = r.Confirm("o-3", now)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestExpire(t *testing.T) {
	r := NewRecord("p-1", "Mug", 4, now)
	_, err := r.Reserve("o-1", 4, "RES-1", now, time.Hour)
	require.NoError(t, err)

	assert.Empty(t, r.Expire(now.Add(time.Hour)))
	expired := r.Expire(now.Add(time.Hour + time.Second))
	require.Len(t, expired, 1)
	assert.Equal(t, ReservationExpired, expired[0].Status)
	assert.Equal(t, 4, r.Available)
	assert.Equal(t, 0, r.Reserved)

	res, err := r.Release("o-1", now)
	require.NoError(t, err)
	assert.Equal(t, ReservationCancelled, res.Status)
	assert.Equal(t, 4, r.Available)
}

func TestReferenceAndClone(t *testing.T) {
	assert.Regexp(t, `^RES-\d{13}-[0-9A-F]{8}$`, NewReference(now))

	r := NewRecord("p-1", "Mug", 4, now)
	_, err := r.Reserve("o-1", 1, "RES-1", now, time.Hour)
	require.NoError(t, err)
	c := r.Clone()
	c.Reservations[0].Status = ReservationConfirmed
	assert.Equal(t, ReservationPending, r.Reservations[0].Status)
}
