package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SRI-CSL/prism-sub001/pkg/store"
	"github.com/SRI-CSL/prism-sub001/pkg/wire"
)

func TestInjectFloodsToAllNeighborsExceptOriginator(t *testing.T) {
	s := newTestServer("10.53.0.1")
	s.Store = store.New()
	originator := NewPeer("10.53.0.2", nil)
	s.mu.Lock()
	s.neighbors["10.53.0.2"] = originator
	s.neighbors["10.53.0.3"] = NewPeer("10.53.0.3", nil)
	s.mu.Unlock()

	seq, created := s.Inject(wire.NewRelayMessage([]byte("hello"), true), originator)

	assert.True(t, created)
	assert.NotZero(t, seq)

	select {
	case <-originator.Channel():
		t.Fatal("originator must not receive its own message back")
	default:
	}
	select {
	case out := <-s.neighbors["10.53.0.3"].Channel():
		relay, ok := out.(*wire.RelayMessage)
		require.True(t, ok)
		assert.Equal(t, []byte("hello"), relay.Payload)
	default:
		t.Fatal("expected the non-originator neighbor to receive the relayed message")
	}
}

func TestInjectDedupsAgainstStore(t *testing.T) {
	s := newTestServer("10.53.0.1")
	s.Store = store.New()
	s.mu.Lock()
	s.neighbors["10.53.0.2"] = NewPeer("10.53.0.2", nil)
	s.mu.Unlock()

	payload := []byte("dup")
	seq1, created1 := s.Inject(wire.NewRelayMessage(payload, true), nil)
	<-s.neighbors["10.53.0.2"].Channel() // drain the first flood

	seq2, created2 := s.Inject(wire.NewRelayMessage(payload, true), nil)

	assert.True(t, created1)
	assert.False(t, created2)
	assert.Equal(t, seq1, seq2)

	select {
	case <-s.neighbors["10.53.0.2"].Channel():
		t.Fatal("a message already broadcast must not be re-flooded on a duplicate Inject")
	default:
	}
}

func TestInjectAlwaysFloodsNeighborsMessage(t *testing.T) {
	s := newTestServer("10.53.0.1")
	s.Store = store.New()
	s.mu.Lock()
	s.neighbors["10.53.0.2"] = NewPeer("10.53.0.2", nil)
	s.mu.Unlock()

	_, created := s.Inject(wire.NewNeighborsMessage([]string{"10.53.0.9"}), nil)

	assert.True(t, created)
	select {
	case out := <-s.neighbors["10.53.0.2"].Channel():
		_, ok := out.(*wire.NeighborsMessage)
		assert.True(t, ok)
	default:
		t.Fatal("expected the NeighborsMessage to be flooded")
	}
}
