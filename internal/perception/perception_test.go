package perception

import (
	"reflect"
	"testing"

	"github.com/MurkesM/ARPG/internal/combat"
	"github.com/MurkesM/ARPG/internal/geom"
)

type candidate struct {
	id      string
	faction combat.Faction
}

func (c candidate) EntityID() string        { return c.id }
func (c candidate) Faction() combat.Faction { return c.faction }

func player(id string) candidate { return candidate{id: id, faction: combat.FactionPlayer} }

func TestTargetSetKeepsEarliestAsPrimary(t *testing.T) {
	var set TargetSet
	set.Add(player("p1"))
	set.Add(player("p2"))
	if set.Add(player("p1")) {
		t.Fatalf("expected duplicate add to be a no-op")
	}

	primary, ok := set.Primary()
	if !ok || primary.EntityID() != "p1" {
		t.Fatalf("expected p1 to stay primary, got %v", primary)
	}

	set.Add(player("p3"))
	primary, _ = set.Primary()
	if primary.EntityID() != "p1" {
		t.Fatalf("later arrival must not pre-empt primary, got %s", primary.EntityID())
	}
}

func TestTargetSetReaddGoesToBack(t *testing.T) {
	var set TargetSet
	set.Add(player("p1"))
	set.Add(player("p2"))
	set.Add(player("p3"))

	set.Remove("p1")
	set.Add(player("p1"))

	if got, want := set.Members(), []string{"p2", "p3", "p1"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected order: got %v want %v", got, want)
	}
	primary, _ := set.Primary()
	if primary.EntityID() != "p2" {
		t.Fatalf("expected p2 primary after re-add, got %s", primary.EntityID())
	}

	set.Remove("p3")
	if !set.Contains("p1") || set.Contains("p3") {
		t.Fatalf("unexpected membership after removal: %v", set.Members())
	}
	set.Remove("p2")
	primary, _ = set.Primary()
	if primary.EntityID() != "p1" {
		t.Fatalf("expected p1 primary, got %s", primary.EntityID())
	}
}

func TestAcquisitionFiltersFactionAndSignalsEmpty(t *testing.T) {
	acq := NewAcquisition("npc-1", combat.FactionEnemy)
	emptied := 0
	acq.OnEmptied(func(Emptied) { emptied++ })

	if acq.OnEnter(candidate{id: "npc-2", faction: combat.FactionEnemy}) {
		t.Fatalf("expected allied entity to be ignored")
	}
	if !acq.OnEnter(player("p1")) {
		t.Fatalf("expected opposing entity to be admitted")
	}
	acq.OnExit("unknown")
	if emptied != 0 {
		t.Fatalf("unexpected emptied signal for unknown exit")
	}
	acq.OnExit("p1")
	if emptied != 1 {
		t.Fatalf("expected one emptied signal, got %d", emptied)
	}
	if _, ok := acq.Primary(); ok {
		t.Fatalf("expected no primary target after the set empties")
	}
}

func TestAcquisitionDisableStopsUpdates(t *testing.T) {
	acq := NewAcquisition("npc-1", combat.FactionEnemy)
	acq.OnEnter(player("p1"))
	acq.Disable()

	if acq.Targets().Len() != 0 {
		t.Fatalf("expected disable to clear targets")
	}
	if acq.OnEnter(player("p2")) {
		t.Fatalf("expected disabled acquisition to ignore enter reports")
	}
}

func clearView(id string) VisibilityQuery {
	return VisibilityFunc(func(string, geom.Vec2, geom.Vec2, float64) (string, bool) { return id, true })
}

func TestLineOfSightGates(t *testing.T) {
	cfg := SightConfig{ConeAngle: 90, MaxSightDistance: 10}
	origin := geom.Vec2{}
	const east = 0.0

	cases := []struct {
		name   string
		target geom.Vec2
		query  VisibilityQuery
		want   bool
	}{
		{"ahead and clear", geom.Vec2{X: 5}, clearView("p1"), true},
		{"beyond max distance", geom.Vec2{X: 11}, clearView("p1"), false},
		{"outside half cone", geom.Vec2{X: 1, Y: 2}, clearView("p1"), false},
		{"off axis inside cone", geom.Vec2{X: 4, Y: 3}, clearView("p1"), true},
		{"blocked by obstacle", geom.Vec2{X: 5}, clearView("wall"), false},
		{"nothing hit", geom.Vec2{X: 5}, VisibilityFunc(func(string, geom.Vec2, geom.Vec2, float64) (string, bool) { return "", false }), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := LineOfSight(cfg, tc.query, Viewer{ID: "npc-1", Position: origin, Yaw: east}, "p1", tc.target); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestEvaluateSkipsQueryOutsideCone(t *testing.T) {
	calls := 0
	query := VisibilityFunc(func(string, geom.Vec2, geom.Vec2, float64) (string, bool) {
		calls++
		return "p1", true
	})
	Evaluate(DefaultSightConfig(), query, Viewer{ID: "npc-1"}, "p1", geom.Vec2{X: -5})
	if calls != 0 {
		t.Fatalf("expected visibility query to be skipped behind the viewer")
	}
}
