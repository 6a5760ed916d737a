package raft

import "testing"

func topologyOf(voters ...ServerID) Topology {
	t := Topology{}
	for _, v := range voters {
		t.Servers = append(t.Servers, Server{Suffrage: Voter, ID: v})
	}
	return t
}

func TestQuorumIndex_S1_threeNodes(t *testing.T) {
	topo := topologyOf("A", "B", "C")
	matches := map[ServerID]uint64{"a": 5, "b": 5, "c": 3}
	if got := quorumIndex(topo, matches); got != 5 {
		t.Fatalf("expected quorum index 5, got %d", got)
	}
}

func TestQuorumIndex_noQuorumYet(t *testing.T) {
	topo := topologyOf("A", "B", "C", "D", "E")
	matches := map[ServerID]uint64{"a": 30, "b": 20}
	if got := quorumIndex(topo, matches); got != -1 {
		t.Fatalf("expected -1 with only two of five reporting, got %d", got)
	}
}

func TestQuorumIndex_boostWalk(t *testing.T) {
	topo := topologyOf("s1", "s2", "s3", "s4", "s5")
	matches := map[ServerID]uint64{"s1": 30, "s2": 20, "s3": 10, "s4": 0, "s5": 0}
	if got := quorumIndex(topo, matches); got != 10 {
		t.Fatalf("expected quorum index 10, got %d", got)
	}
}

func TestQuorumIndex_singleVoter(t *testing.T) {
	topo := topologyOf("s1")
	matches := map[ServerID]uint64{"s1": 10}
	if got := quorumIndex(topo, matches); got != 10 {
		t.Fatalf("expected 10, got %d", got)
	}
}

func TestQuorumIndex_noVoters(t *testing.T) {
	topo := Topology{}
	if got := quorumIndex(topo, map[ServerID]uint64{"s1": 10}); got != -1 {
		t.Fatalf("expected -1 with no voters, got %d", got)
	}
}

// TestQuorumCommitIndex_S4_jointConsensus mirrors scenario S4: current
// {A,B,C} q=2, changing {C,D,E} q=2, matches A=10,B=10,C=10,D=4,E=4.
// quorumCommitIndex(current)=10, quorumCommitIndex(changing)=4, min=4.
func TestQuorumCommitIndex_S4_jointConsensus(t *testing.T) {
	current := topologyOf("A", "B", "C")
	changing := topologyOf("C", "D", "E")
	matches := map[ServerID]uint64{"a": 10, "b": 10, "c": 10, "d": 4, "e": 4}

	if got := quorumIndex(current, matches); got != 10 {
		t.Fatalf("expected current quorum index 10, got %d", got)
	}
	if got := quorumIndex(changing, matches); got != 4 {
		t.Fatalf("expected changing quorum index 4, got %d", got)
	}
	if got := quorumCommitIndex(current, changing, true, matches); got != 4 {
		t.Fatalf("expected joint quorum index 4, got %d", got)
	}
}

func TestQuorumCommitIndex_noJointConsensus(t *testing.T) {
	current := topologyOf("A", "B", "C")
	matches := map[ServerID]uint64{"a": 5, "b": 5, "c": 3}
	if got := quorumCommitIndex(current, Topology{}, false, matches); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
}
