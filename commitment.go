package raft

import "sort"

// commitCalculator is Component C5. It is stateless between calls: it is
// handed the Progress Table's current matchIndex snapshot and the active
// topology/topologies on every invocation, rather than accumulating its own
// copy the way the teacher's commitment (commitment.go) does. This follows
// §4.5 directly and keeps joint consensus a matter of calling
// quorumIndex twice and intersecting, with no extra state to keep in sync
// when a topology change is applied.
type commitCalculator struct{}

// quorumIndex implements §4.5's per-topology algorithm: bucket matchIndex
// values of the topology's voters, walk them descending while accumulating
// a "boost" of voters already known to exceed the current value, and return
// the highest value whose confirmations (count[v] + boost) reach quorum.
// Voters with no entry in matchIndexes have not reported and are not
// counted. Returns -1 if no value reaches quorum.
func quorumIndex(topology Topology, matchIndexes map[ServerID]uint64) int64 {
	voters := topology.Voters()
	quorumSize := topology.QuorumSize()
	if len(voters) == 0 {
		return -1
	}

	counts := make(map[uint64]int, len(voters))
	for _, v := range voters {
		if mi, ok := matchIndexes[v]; ok {
			counts[mi]++
		}
	}

	values := make([]uint64, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] > values[j] })

	var boost int
	for _, v := range values {
		confirmations := counts[v] + boost
		if confirmations >= quorumSize {
			return int64(v)
		}
		boost += counts[v]
	}
	return -1
}

// quorumCommitIndex implements §4.5's joint-consensus rule: an index is
// committed only once it is majority-agreed in both the current and the
// changing topology, if one is active. changing is the zero Topology when
// no joint consensus is in progress, and Voters() on a zero Topology is
// empty, so quorumIndex would wrongly report -1 for it; callers must pass
// hasChanging to distinguish "no second topology" from "second topology
// with zero voters".
func quorumCommitIndex(current Topology, changing Topology, hasChanging bool, matchIndexes map[ServerID]uint64) int64 {
	n := quorumIndex(current, matchIndexes)
	if !hasChanging {
		return n
	}
	c := quorumIndex(changing, matchIndexes)
	if n < c {
		return n
	}
	return c
}
