package overlay

// computeMPR recomputes the multi-point relay set used to restrict
// flooding to a covering subset of 1-hop neighbors. Ported
// algorithm-for-algorithm from the OLSR-style MPR selection: first
// force in any 1-hop neighbor that is the sole path to some 2-hop
// neighbor, then greedily add whichever remaining 1-hop neighbor
// covers the most still-uncovered 2-hop neighbors until none are left.
//
// If NoMPR is set, or no flood restriction is needed (every 2-hop
// neighbor is already covered and the set would be empty), MPR
// restriction is disabled and every neighbor receives every flooded
// message.
func (s *Server) computeMPR() {
	if s.NoMPR {
		s.mu.Lock()
		s.mpr = nil
		s.hasMPR = false
		s.mu.Unlock()
		return
	}

	neighbors := s.Neighbors()

	oneHop := make(map[string]struct{})
	for addr, p := range neighbors {
		if p.Available() {
			oneHop[addr] = struct{}{}
		}
	}

	strictTwoHop := make(map[string]struct{})
	neighborsOf := make(map[string][]string)
	for addr, p := range neighbors {
		if !p.Available() {
			continue
		}
		for _, y := range p.Neighbors() {
			strictTwoHop[y] = struct{}{}
			neighborsOf[y] = append(neighborsOf[y], addr)
		}
	}
	for y := range oneHop {
		delete(strictTwoHop, y)
	}
	delete(strictTwoHop, s.Host)

	mpr := make(map[string]struct{})
	remove := make(map[string]struct{})
	for z := range strictTwoHop {
		n := neighborsOf[z]
		if len(n) == 1 {
			y := n[0]
			mpr[y] = struct{}{}
			remove[z] = struct{}{}
			if yp, ok := neighbors[y]; ok {
				for _, yn := range yp.Neighbors() {
					remove[yn] = struct{}{}
				}
			}
		}
	}
	for z := range remove {
		delete(strictTwoHop, z)
	}

	for len(strictTwoHop) > 0 {
		var maxNode string
		maxCount := 0
		var maxCovered map[string]struct{}
		found := false
		for y := range oneHop {
			if _, already := mpr[y]; already {
				continue
			}
			covered := make(map[string]struct{})
			for _, yn := range neighbors[y].Neighbors() {
				if _, ok := strictTwoHop[yn]; ok {
					covered[yn] = struct{}{}
				}
			}
			if len(covered) > maxCount {
				maxCount = len(covered)
				maxNode = y
				maxCovered = covered
				found = true
			}
		}
		if !found {
			break
		}
		mpr[maxNode] = struct{}{}
		for z := range maxCovered {
			delete(strictTwoHop, z)
		}
	}

	s.mu.Lock()
	if len(mpr) == 0 {
		s.mpr = nil
		s.hasMPR = false
	} else {
		s.mpr = mpr
		s.hasMPR = true
	}
	s.mu.Unlock()
}

// InMPR reports whether address is currently a multi-point relay
// (i.e. should receive flooded traffic we originate or forward).
// When no MPR set is active every neighbor qualifies.
func (s *Server) InMPR(address string) bool {
	mpr, has := s.mprSnapshot()
	if !has {
		return true
	}
	_, ok := mpr[address]
	return ok
}
