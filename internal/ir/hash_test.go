package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateDigestDeterministic(t *testing.T) {
	entries := []Entry{
		{Key: "stream/messages/counter", Value: []byte(`{"next_id":2,"total_count":1}`)},
		{Key: "stream/messages/records", Value: []byte(`[]`)},
	}
	a := StateDigest(entries)
	b := StateDigest(entries)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestStateDigestFraming(t *testing.T) {
	// Moving bytes between key and value must change the digest.
	a := StateDigest([]Entry{{Key: "ab", Value: []byte("c")}})
	b := StateDigest([]Entry{{Key: "a", Value: []byte("bc")}})
	assert.NotEqual(t, a, b)
}

func TestRecordDigest(t *testing.T) {
	rec := Record{
		ID:        1,
		Actors:    Actors{Primary: "GA", Secondary: "GB"},
		Payload:   Object{"hash": String("e\u0301")},
		CreatedAt: 10,
	}
	d1, err := RecordDigest("messages", rec)
	require.NoError(t, err)

	rec.Payload = Object{"hash": String("\u00e9")}
	d2, err := RecordDigest("messages", rec)
	require.NoError(t, err)
	assert.Equal(t, d1, d2, "NFC-equivalent payloads share a digest")

	d3, err := RecordDigest("trades", rec)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3, "stream name is part of the address")

	rec.ID = 2
	d4, err := RecordDigest("messages", rec)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d4)
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		total uint64
		step  uint64
		want  uint32
	}{
		{0, 100, 1},
		{99, 100, 1},
		{100, 100, 2},
		{110, 100, 2},
		{90, 100, 1},
		{5, 0, 6},
		{^uint64(0), 1, ^uint32(0)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierFor(tt.total, tt.step), "total=%d step=%d", tt.total, tt.step)
	}
}

func TestActorsInvolves(t *testing.T) {
	a := Actors{Primary: "A", Secondary: "B"}
	assert.True(t, a.Involves("A"))
	assert.True(t, a.Involves("B"))
	assert.False(t, a.Involves("C"))
	assert.False(t, Actors{Primary: "A"}.Involves(""), "empty secondary never matches")
}

func TestRecordCloneIsDeep(t *testing.T) {
	r := Record{ID: 1, Payload: Object{"a": Int(1)}, Flags: map[string]bool{"read": false}}
	c := r.Clone()
	c.Flags["read"] = true
	c.Payload["a"] = Int(2)
	assert.False(t, r.Flag("read"))
	assert.Equal(t, Int(1), r.Payload["a"])
}
