package agro

import "testing"

func phaseDef(name string, from, to float64) PhaseDefinition {
	return PhaseDefinition{PhaseName: name, GDDFrom: from, GDDTo: to}
}

// TestEvaluatePhasesOverlap verifies independent evaluation of overlapping
// ranges: with 275 accumulated units, A is long done while B and C are both
// active at the same time.
func TestEvaluatePhasesOverlap(t *testing.T) {
	phases := []PhaseDefinition{
		phaseDef("A", 0, 100),
		phaseDef("B", 100, 300),
		phaseDef("C", 250, 400),
	}

	statuses := EvaluatePhases(phases, 275)
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}

	a, b, c := statuses[0], statuses[1], statuses[2]

	if !a.Completed || a.IsActive || a.GDDLeft != 0 {
		t.Errorf("phase A: expected completed with 0 left, got %+v", a)
	}
	if !b.IsActive || b.Completed || b.GDDLeft != 25 {
		t.Errorf("phase B: expected active with 25 left, got %+v", b)
	}
	if !c.IsActive || c.Completed || c.GDDLeft != 125 {
		t.Errorf("phase C: expected active with 125 left, got %+v", c)
	}
}

// TestEvaluatePhasesSkippedOver checks that a phase counts as completed even
// when the cumulative value jumped straight past its range.
func TestEvaluatePhasesSkippedOver(t *testing.T) {
	statuses := EvaluatePhases([]PhaseDefinition{phaseDef("early", 50, 80)}, 200)

	if !statuses[0].Completed {
		t.Errorf("expected skipped-over phase to be completed, got %+v", statuses[0])
	}
	if statuses[0].IsActive {
		t.Errorf("skipped-over phase must not be active")
	}
}

// TestEvaluatePhasesTristate verifies that exactly one of not-started, active
// and completed holds for every phase and every cumulative value.
func TestEvaluatePhasesTristate(t *testing.T) {
	phases := []PhaseDefinition{
		phaseDef("A", 0, 100),
		phaseDef("B", 100, 300),
		phaseDef("C", 250, 400),
		phaseDef("late", 500, 600),
	}

	for _, gdd := range []float64{0, 50, 100, 100.5, 250, 300, 399.9, 400, 450, 600, 1000} {
		for _, s := range EvaluatePhases(phases, gdd) {
			notStarted := gdd < s.GDDFrom

			states := 0
			for _, held := range []bool{notStarted, s.IsActive, s.Completed} {
				if held {
					states++
				}
			}
			if states != 1 {
				t.Errorf("gdd=%v phase=%s: expected exactly one state, got notStarted=%v active=%v completed=%v",
					gdd, s.PhaseName, notStarted, s.IsActive, s.Completed)
			}

			if s.GDDLeft < 0 {
				t.Errorf("gdd=%v phase=%s: negative GDDLeft %v", gdd, s.PhaseName, s.GDDLeft)
			}
			if !s.IsActive && s.GDDLeft != 0 {
				t.Errorf("gdd=%v phase=%s: inactive phase must report 0 GDDLeft, got %v", gdd, s.PhaseName, s.GDDLeft)
			}
		}
	}
}

// TestEvaluatePhasesBoundaries pins the closed-interval semantics at both
// ends of a range.
func TestEvaluatePhasesBoundaries(t *testing.T) {
	phases := []PhaseDefinition{phaseDef("P", 100, 200)}

	if s := EvaluatePhases(phases, 100)[0]; !s.IsActive {
		t.Errorf("lower bound must be active, got %+v", s)
	}
	if s := EvaluatePhases(phases, 200)[0]; !s.IsActive || s.GDDLeft != 0 {
		t.Errorf("upper bound must be active with 0 left, got %+v", s)
	}
	if s := EvaluatePhases(phases, 200.01)[0]; !s.Completed {
		t.Errorf("just past upper bound must be completed, got %+v", s)
	}
	if s := EvaluatePhases(phases, 99.99)[0]; s.IsActive || s.Completed {
		t.Errorf("just below lower bound must be not started, got %+v", s)
	}
}

func TestEvaluatePhasesEmptyInput(t *testing.T) {
	if statuses := EvaluatePhases(nil, 0); len(statuses) != 0 {
		t.Fatalf("expected empty result for empty input, got %d entries", len(statuses))
	}
	if statuses := EvaluatePhases([]PhaseDefinition{}, 123.4); len(statuses) != 0 {
		t.Fatalf("expected empty result for empty input, got %d entries", len(statuses))
	}
}

// TestEvaluatePhasesPreservesOrder confirms the evaluator never re-sorts the
// caller-supplied ordering.
func TestEvaluatePhasesPreservesOrder(t *testing.T) {
	phases := []PhaseDefinition{
		phaseDef("first", 10, 20),
		phaseDef("second", 30, 40),
		phaseDef("third", 50, 60),
	}

	statuses := EvaluatePhases(phases, 35)
	for i, want := range []string{"first", "second", "third"} {
		if statuses[i].PhaseName != want {
			t.Errorf("position %d: expected %s, got %s", i, want, statuses[i].PhaseName)
		}
	}
}
