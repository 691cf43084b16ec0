package graph

import (
	"reflect"
	"testing"
)

func TestIdealSchedule_Layers(t *testing.T) {
	g := build(
		code(0, "import pd"),
		md(1, "# Load"),
		code(2, "def df\nuse pd"),
		md(3, "# Plot"),
		code(4, "use df"),
		md(5, "# Stats"),
		code(6, "use pd"),
	)

	levels := IdealSchedule(g)
	want := []Level{
		{StartID},
		{SectionID(1), SectionID(5)},
		{SectionID(3)},
	}
	if !reflect.DeepEqual(levels, want) {
		t.Fatalf("got %v, want %v", levels, want)
	}
}

func TestIdealSchedule_PartitionsSections(t *testing.T) {
	g := build(
		md(0, "# A"), code(1, "def a"),
		md(2, "# B"), code(3, "use a\ndef b"),
		md(4, "# C"), code(5, "use b"), code(6, "use a"),
		md(7, "# D"), code(8, "def d"),
		md(9, "# E"), code(10, "use d"),
	)

	levels := IdealSchedule(g)
	seen := make(map[NodeID]int)
	for _, level := range levels {
		for _, id := range level {
			seen[id]++
		}
	}
	for _, n := range g.SectionNodes() {
		if seen[n.ID] != 1 {
			t.Errorf("section %v appears %d times", n.ID, seen[n.ID])
		}
	}
	if len(seen) != len(g.SectionNodes()) {
		t.Errorf("schedule has %d sections, graph has %d", len(seen), len(g.SectionNodes()))
	}
	for _, id := range levels[0] {
		for _, pred := range g.Predecessors(id) {
			if pred.IsSection() {
				t.Errorf("level 0 section %v has incoming section edge from %v", id, pred)
			}
		}
	}
}

func TestIdealSchedule_Empty(t *testing.T) {
	g := build(code(0, "def x"), code(1, "use x"))
	if levels := IdealSchedule(g); len(levels) != 0 {
		t.Fatalf("expected no levels, got %v", levels)
	}
}

func TestIdealSchedule_RepeatedHeadingLoop(t *testing.T) {
	// A -> B through x, then B -> A once the "A" heading comes back.
	g := build(
		md(0, "## A"), code(1, "def x"),
		md(2, "## B"), code(3, "use x\ndef y"),
		md(4, "## A"), code(5, "use y\nuse x"),
		md(6, "## C"), code(7, "use y"),
	)

	levels := IdealSchedule(g)
	want := []Level{
		{SectionID(0)},
		{SectionID(2)},
		{SectionID(6)},
	}
	if !reflect.DeepEqual(levels, want) {
		t.Fatalf("got %v, want %v", levels, want)
	}
}
