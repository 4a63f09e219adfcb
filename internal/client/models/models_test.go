package models

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/logsync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntry() Entry {
	remarks := "pattern work"
	total := 1.5
	return Entry{
		Date:         "2024-03-01",
		Role:         "PIC",
		Registration: "ABC123",
		Departure:    "KPAO",
		Destination:  "KSQL",
		Remarks:      &remarks,
		FlightTime:   FlightTime{Total: &total},
	}
}

func TestIsCanonicalID(t *testing.T) {
	assert.True(t, IsCanonicalID(NewID()))
	assert.True(t, IsCanonicalID("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))
	assert.False(t, IsCanonicalID("local-123"))
	assert.False(t, IsCanonicalID("6ba7b8109dad11d180b400c04fd430c8"))
	assert.False(t, IsCanonicalID("{6ba7b810-9dad-11d1-80b4-00c04fd430c8}"))
	assert.False(t, IsCanonicalID(""))
}

func TestEntry_Validate(t *testing.T) {
	require.NoError(t, sampleEntry().Validate())

	bad := sampleEntry()
	bad.Date = "03/01/2024"
	require.ErrorIs(t, bad.Validate(), common.ErrInvalidEntry)

	bad = sampleEntry()
	bad.Registration = " "
	bad.Destination = ""
	err := bad.Validate()
	require.ErrorIs(t, err, common.ErrInvalidEntry)
	assert.Contains(t, err.Error(), "registration, destination")
}

func TestEntry_Key(t *testing.T) {
	k := sampleEntry().Key()
	assert.Equal(t, BusinessKey{Date: "2024-03-01", Registration: "ABC123", Departure: "KPAO", Destination: "KSQL"}, k)
	assert.Equal(t, "2024-03-01 ABC123 KPAO-KSQL", k.String())
}

func TestChangedFields(t *testing.T) {
	a := sampleEntry()
	b := sampleEntry()
	total := 2.0
	b.FlightTime.Total = &total
	b.Registration = "N12345"

	assert.Equal(t, []string{"flight_time", "registration"}, ChangedFields(a, b))
	assert.Empty(t, ChangedFields(a, a))
}

func TestQueueEntry_PayloadRoundTrip(t *testing.T) {
	rec := &Record{ID: "local-1", Entry: sampleEntry()}
	payload, err := EncodePayload(rec)
	require.NoError(t, err)

	q := QueueEntry{ID: 1, Operation: OpInsert, EntryID: "local-1", Payload: payload}
	got, err := q.Record()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.Entry, got.Entry)
	assert.Equal(t, "local-1", got.ID)

	empty := QueueEntry{ID: 2, Operation: OpDelete}
	got, err = empty.Record()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueueEntry_Eligible(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Second)
	earlier := now.Add(-time.Second)

	assert.True(t, QueueEntry{}.Eligible(now, 3))
	assert.True(t, QueueEntry{NotBefore: &earlier}.Eligible(now, 3))
	assert.True(t, QueueEntry{NotBefore: &now}.Eligible(now, 3))
	assert.False(t, QueueEntry{NotBefore: &later}.Eligible(now, 3))
	assert.False(t, QueueEntry{RetryCount: 3}.Eligible(now, 3))
}

func TestOperation_Valid(t *testing.T) {
	assert.True(t, OpInsert.Valid())
	assert.True(t, OpDelete.Valid())
	assert.False(t, Operation("upsert").Valid())
}
