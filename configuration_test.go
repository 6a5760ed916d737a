package raft

import "testing"

func TestCheckTopology(t *testing.T) {
	var topo Topology
	if checkTopology(topo) == nil {
		t.Fatalf("empty topology should be error")
	}

	topo.Servers = append(topo.Servers, Server{
		Suffrage: Nonvoter,
		ID:       "s0",
		Address:  "addr0",
	})
	if checkTopology(topo) == nil {
		t.Fatalf("lack of voter should be error")
	}

	topo.Servers = append(topo.Servers, Server{
		Suffrage: Voter,
		ID:       "s1",
		Address:  "addr1",
	})
	if err := checkTopology(topo); err != nil {
		t.Fatalf("should be OK: %v", err)
	}

	topo.Servers[1].ID = "s0"
	if checkTopology(topo) == nil {
		t.Fatalf("duplicate ID should be error")
	}
	topo.Servers[1].ID = "S0"
	if checkTopology(topo) == nil {
		t.Fatalf("duplicate ID should be error case-insensitively")
	}
}

func TestTopology_QuorumSizeAndVoters(t *testing.T) {
	topo := Topology{Servers: []Server{
		{Suffrage: Voter, ID: "a"},
		{Suffrage: Voter, ID: "b"},
		{Suffrage: Nonvoter, ID: "c"},
	}}
	if got := topo.QuorumSize(); got != 2 {
		t.Fatalf("expected quorum size 2, got %d", got)
	}
	if got := len(topo.Voters()); got != 2 {
		t.Fatalf("expected 2 voters, got %d", got)
	}
	if !topo.HasVoter("A") {
		t.Fatalf("expected case-insensitive voter lookup to succeed")
	}
	if topo.HasVoter("c") {
		t.Fatalf("nonvoter should not report as voter")
	}
}

func TestUnionVoterIDs(t *testing.T) {
	current := topologyOf("a", "b", "c")
	changing := topologyOf("c", "d", "e")
	union := unionVoterIDs(current, changing)
	if len(union) != 5 {
		t.Fatalf("expected 5 unique voters, got %d: %v", len(union), union)
	}
}

func TestUnionVoterIDs_noChanging(t *testing.T) {
	current := topologyOf("a", "b", "c")
	union := unionVoterIDs(current, Topology{})
	if len(union) != 3 {
		t.Fatalf("expected 3 voters, got %d", len(union))
	}
}

func TestEncodeDecodeTopology(t *testing.T) {
	topo := topologyOf("a", "b", "c")
	buf, err := encodeTopology(topo)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := decodeTopology(buf)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(decoded.Servers) != len(topo.Servers) {
		t.Fatalf("round trip mismatch: %+v vs %+v", topo, decoded)
	}
}
