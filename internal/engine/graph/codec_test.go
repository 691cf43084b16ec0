package graph

import (
	"testing"

	"nbcollab/internal/core/errors"
)

func TestGraphJSONRoundTrip(t *testing.T) {
	g := build(
		code(0, "import pd"),
		md(1, "## Load"),
		code(2, "def df\nuse pd"),
		code(3, "use df"),
	)

	data, err := g.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(decoded.Nodes()) != len(g.Nodes()) {
		t.Fatalf("node count: got %d, want %d", len(decoded.Nodes()), len(g.Nodes()))
	}
	for _, want := range g.Nodes() {
		got, ok := decoded.Node(want.ID)
		if !ok {
			t.Errorf("node %v missing after round trip", want.ID)
			continue
		}
		if *got != *want {
			t.Errorf("node %v: got %+v, want %+v", want.ID, *got, *want)
		}
	}

	if len(decoded.Edges()) != len(g.Edges()) {
		t.Fatalf("edge count: got %d, want %d", len(decoded.Edges()), len(g.Edges()))
	}
	for _, want := range g.Edges() {
		got, ok := decoded.Edge(want.From, want.To)
		if !ok || got.Weight != want.Weight {
			t.Errorf("edge %v -> %v lost or changed: %+v", want.From, want.To, got)
		}
	}
	if n, ok := decoded.CellByExternalID("cc"); !ok || n.ID != CellID(2) {
		t.Errorf("cell index not rebuilt: %+v", n)
	}
}

func TestNodeKeysDoNotCollide(t *testing.T) {
	const cells = 500
	keys := make(map[int]NodeID)
	add := func(id NodeID) {
		if prev, dup := keys[id.Key()]; dup {
			t.Fatalf("key %d shared by %v and %v", id.Key(), prev, id)
		}
		keys[id.Key()] = id
	}
	add(StartID)
	for i := 0; i < cells; i++ {
		add(CellID(i))
		add(SectionID(i))
	}
}

func TestDecode_Invalid(t *testing.T) {
	for _, doc := range []string{
		`{"nodes": [{"id": 1, "kind": "widget"}], "edges": []}`,
		`{"nodes": [{"id": 1, "kind": "cell"}], "edges": [{"source": 1, "target": 9}]}`,
		`not json`,
	} {
		if _, err := Decode([]byte(doc)); !errors.IsCode(err, errors.CodeValidationError) {
			t.Errorf("Decode(%q): expected validation error, got %v", doc, err)
		}
	}
}
