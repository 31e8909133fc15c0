package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SRI-CSL/prism-sub001/pkg/wire"
)

func TestNewPeerNeighbors(t *testing.T) {
	p := NewPeer("10.53.0.2", []string{"10.53.0.3", "10.53.0.4"})
	assert.ElementsMatch(t, []string{"10.53.0.3", "10.53.0.4"}, p.Neighbors())
	assert.True(t, p.HasNeighbor("10.53.0.3"))
	assert.False(t, p.HasNeighbor("10.53.0.9"))
}

func TestSetNeighborsReportsChange(t *testing.T) {
	p := NewPeer("10.53.0.2", []string{"10.53.0.3"})

	assert.False(t, p.SetNeighbors([]string{"10.53.0.3"}), "same set should report no change")
	assert.True(t, p.SetNeighbors([]string{"10.53.0.3", "10.53.0.4"}), "added member should report change")
	assert.ElementsMatch(t, []string{"10.53.0.3", "10.53.0.4"}, p.Neighbors())
}

func TestResetChannelDropsQueued(t *testing.T) {
	p := NewPeer("10.53.0.2", nil)
	p.Enqueue(wire.NewNeighborsMessage(nil))

	p.ResetChannel()

	select {
	case <-p.Channel():
		t.Fatal("expected fresh channel to be empty after reset")
	default:
	}
}

func TestAvailableAndCanceled(t *testing.T) {
	p := NewPeer("10.53.0.2", nil)
	assert.False(t, p.Available())
	p.SetAvailable(true)
	assert.True(t, p.Available())

	assert.False(t, p.Canceled())
	p.Cancel()
	assert.True(t, p.Canceled())
}

func TestEnqueueDeliversOnChannel(t *testing.T) {
	p := NewPeer("10.53.0.2", nil)
	msg := wire.NewNeighborsMessage([]string{"10.53.0.3"})
	p.Enqueue(msg)

	select {
	case got := <-p.Channel():
		require.Equal(t, msg, got)
	default:
		t.Fatal("expected message to be queued")
	}
}
