package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SRI-CSL/prism-sub001/pkg/wire"
)

func at(seconds int64) time.Time { return time.Unix(seconds, 0) }

func newMsgs() (m1, m1a, m2, m3, m4, m5 *wire.RelayMessage) {
	m1 = wire.NewRelayMessage([]byte("hi1"), false)
	m1a = wire.NewRelayMessage([]byte("hi1"), false)
	m2 = wire.NewRelayMessage([]byte("hi2"), false)
	m3 = wire.NewRelayMessage([]byte("hi3"), false)
	m4 = wire.NewRelayMessage([]byte("hi4"), false)
	m5 = wire.NewRelayMessage([]byte("hi5"), false)
	return
}

func TestAdd(t *testing.T) {
	m1, m1a, _, _, _, _ := newMsgs()
	db := New()
	existing, seq := db.Add(m1)
	assert.Nil(t, existing)
	assert.Equal(t, uint64(1), seq)
	assert.True(t, db.Contains(m1))

	got, ok := db.GetByKey(m1.Key())
	require.True(t, ok)
	assert.Same(t, m1, got)

	got, ok = db.GetBySeq(1)
	require.True(t, ok)
	assert.Same(t, m1, got)

	got, ok = db.GetByKey(m1a.Key())
	require.True(t, ok)
	assert.Same(t, m1, got)
}

func TestAddDuplicate(t *testing.T) {
	m1, m1a, _, _, _, _ := newMsgs()
	db := New()
	db.Add(m1)
	existing, seq := db.Add(m1a)
	assert.Same(t, m1, existing)
	assert.Equal(t, uint64(1), seq)
}

func TestContains(t *testing.T) {
	m1, m1a, _, _, _, _ := newMsgs()
	db := New()
	db.Add(m1)
	assert.True(t, db.Contains(m1a))
}

func TestCountLimit(t *testing.T) {
	m1, _, m2, m3, m4, _ := newMsgs()
	db := New(WithMaxCount(2))
	db.Add(m1)
	db.Add(m2)
	assert.True(t, db.Contains(m1))
	assert.True(t, db.Contains(m2))
	assert.Equal(t, uint64(1), db.State().Least)

	db.Add(m3)
	assert.False(t, db.Contains(m1))
	assert.True(t, db.Contains(m2))
	assert.True(t, db.Contains(m3))

	db.Add(m4)
	assert.False(t, db.Contains(m1))
	assert.False(t, db.Contains(m2))
	assert.True(t, db.Contains(m3))
	assert.True(t, db.Contains(m4))
	assert.Equal(t, uint64(3), db.State().Least)
	assert.Equal(t, uint64(5), db.NextSequence())
}

func TestSizeLimit(t *testing.T) {
	m1, _, m2, m3, m4, _ := newMsgs()
	db := New(WithMaxCount(100), WithMaxSize(10))
	db.Add(m1)
	db.Add(m2)
	db.Add(m3)
	assert.True(t, db.Contains(m1))
	assert.True(t, db.Contains(m2))
	assert.True(t, db.Contains(m3))

	db.Add(m4)
	assert.False(t, db.Contains(m1))
	assert.True(t, db.Contains(m2))
	assert.True(t, db.Contains(m3))
	assert.True(t, db.Contains(m4))
	assert.Equal(t, uint64(2), db.State().Least)
	assert.Equal(t, uint64(5), db.NextSequence())
}

func TestAgeLimit(t *testing.T) {
	m1, _, m2, m3, _, _ := newMsgs()
	db := New(WithMaxCount(100), WithMaxSize(10), WithMaxAge(10*time.Second))
	db.Add(m1, at(1))
	assert.True(t, db.Contains(m1))
	st := db.State()
	assert.Equal(t, uint64(1), st.Least)
	assert.Equal(t, uint64(1), st.Greatest)

	db.Add(m2, at(400))
	st = db.State()
	assert.Equal(t, uint64(2), st.Least)
	assert.Equal(t, uint64(2), st.Greatest)
	assert.False(t, db.Contains(m1))
	assert.True(t, db.Contains(m2))

	db.Purge(at(1000))
	assert.False(t, db.Contains(m1))
	assert.False(t, db.Contains(m2))
	st = db.State()
	assert.False(t, st.HasRange)

	db.Add(m3, at(1001))
	st = db.State()
	assert.Equal(t, uint64(3), st.Least)
	assert.Equal(t, uint64(3), st.Greatest)
}

func TestMessagesForListener(t *testing.T) {
	m1, _, m2, m3, _, _ := newMsgs()
	db := New()
	db.Add(m1)
	db.Add(m2)

	got := db.MessagesForListener("id1")
	assert.ElementsMatch(t, []*wire.RelayMessage{m1, m2}, got)

	got = db.MessagesForListener("id1")
	assert.Empty(t, got)

	db.Add(m3)
	got = db.MessagesForListener("id1")
	assert.Equal(t, []*wire.RelayMessage{m3}, got)

	got = db.MessagesForListener("id2")
	assert.ElementsMatch(t, []*wire.RelayMessage{m1, m2, m3}, got)
}

func TestFlush(t *testing.T) {
	m1, _, m2, _, _, _ := newMsgs()
	db := New()
	uuid1 := db.State().UUID
	db.Add(m1)
	db.Add(m2)
	assert.True(t, db.Contains(m1))
	assert.True(t, db.Contains(m2))
	st := db.State()
	assert.Equal(t, uint64(1), st.Least)
	assert.Equal(t, uint64(2), st.Greatest)
	assert.Equal(t, uuid1, st.UUID)

	db.Flush()
	uuid2 := db.State().UUID
	assert.NotEqual(t, uuid1, uuid2)
	assert.False(t, db.Contains(m1))
	assert.False(t, db.Contains(m2))

	st = db.State()
	assert.False(t, st.HasRange)
	assert.Equal(t, uuid2, st.UUID)
	assert.Equal(t, uint64(1), db.NextSequence())
}

func TestSeenArePurged(t *testing.T) {
	m1, _, m2, m3, _, _ := newMsgs()
	db := New(WithMaxCount(2))
	db.Add(m1)
	db.Add(m2)
	db.MessagesForListener("id1")
	db.Add(m3)

	got := db.MessagesForListener("id1")
	assert.Equal(t, []*wire.RelayMessage{m3}, got)
}

func TestGetRange(t *testing.T) {
	m1, _, m2, m3, m4, m5 := newMsgs()
	db := New(WithMaxCount(4))
	db.Add(m1)
	db.Add(m2)
	db.Add(m3)
	db.Add(m4)
	db.Add(m5)

	got := db.GetRange(1, 2)
	assert.Equal(t, []RangeEntry{{Seq: 2, Message: m2}}, got)

	got = db.GetRange(2, 3)
	assert.Equal(t, []RangeEntry{
		{Seq: 2, Message: m2},
		{Seq: 3, Message: m3},
		{Seq: 4, Message: m4},
	}, got)

	got = db.GetRange(100, 200)
	assert.Empty(t, got)
}
