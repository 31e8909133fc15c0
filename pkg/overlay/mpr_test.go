package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SRI-CSL/prism-sub001/pkg/store"
)

// setNeighbor installs peer in s's neighbor table and marks it
// available, matching a live sender connection. The original Python
// fixtures never set Neighbor.available themselves (real peers are
// only marked available by the sender loop on a live connection); we
// do it explicitly here since compute_mpr is documented to filter on
// availability.
func setNeighbor(t *testing.T, s *Server, address string, neighbors ...string) {
	t.Helper()
	p := NewPeer(address, neighbors)
	p.SetAvailable(true)
	s.mu.Lock()
	s.neighbors[address] = p
	s.mu.Unlock()
}

func newTestServer(host string) *Server {
	return NewServer(Config{Host: host}, store.New(), nil)
}

func TestComputeMPRBasicIsolated(t *testing.T) {
	s := newTestServer("10.53.0.1")
	setNeighbor(t, s, "10.53.0.2", "10.53.0.5")
	setNeighbor(t, s, "10.53.0.3", "10.53.0.6", "10.53.0.7")
	setNeighbor(t, s, "10.53.0.4", "10.53.0.7")

	s.computeMPR()

	mpr, has := s.mprSnapshot()
	assert.True(t, has)
	assert.Equal(t, map[string]struct{}{"10.53.0.2": {}, "10.53.0.3": {}}, mpr)
}

func TestComputeMPRBasicMaxCoverage(t *testing.T) {
	// No 2-hop neighbor has a single coverer here, so nothing is forced
	// in; greedy selection picks 10.53.0.3, which alone covers all of
	// 10.53.0.5, 10.53.0.6 and 10.53.0.7.
	s := newTestServer("10.53.0.1")
	setNeighbor(t, s, "10.53.0.2", "10.53.0.5")
	setNeighbor(t, s, "10.53.0.3", "10.53.0.5", "10.53.0.6", "10.53.0.7")
	setNeighbor(t, s, "10.53.0.4", "10.53.0.6", "10.53.0.7")

	s.computeMPR()

	mpr, has := s.mprSnapshot()
	assert.True(t, has)
	assert.Equal(t, map[string]struct{}{"10.53.0.3": {}}, mpr)
}

func TestComputeMPRIgnoreMe(t *testing.T) {
	s := newTestServer("10.53.0.1")
	setNeighbor(t, s, "10.53.0.2", "10.53.0.5")
	setNeighbor(t, s, "10.53.0.3", "10.53.0.6", "10.53.0.7")
	setNeighbor(t, s, "10.53.0.4", "10.53.0.7", "10.53.0.1")

	s.computeMPR()

	mpr, has := s.mprSnapshot()
	assert.True(t, has)
	assert.Equal(t, map[string]struct{}{"10.53.0.2": {}, "10.53.0.3": {}}, mpr)
}

func TestComputeMPRIgnoreOneHop(t *testing.T) {
	s := newTestServer("10.53.0.1")
	setNeighbor(t, s, "10.53.0.2", "10.53.0.3")
	setNeighbor(t, s, "10.53.0.3", "10.53.0.6", "10.53.0.7")
	setNeighbor(t, s, "10.53.0.4", "10.53.0.7", "10.53.0.1")

	s.computeMPR()

	mpr, has := s.mprSnapshot()
	assert.True(t, has)
	assert.Equal(t, map[string]struct{}{"10.53.0.3": {}}, mpr)
}

func TestComputeMPRNoMPRDisables(t *testing.T) {
	s := newTestServer("10.53.0.1")
	s.NoMPR = true
	setNeighbor(t, s, "10.53.0.2", "10.53.0.5")

	s.computeMPR()

	_, has := s.mprSnapshot()
	assert.False(t, has)
	assert.True(t, s.InMPR("10.53.0.2"))
}
