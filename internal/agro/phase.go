package agro

// EvaluatePhases classifies each phase against the given cumulative GDD value.
//
// Phases must already be ordered by GDDFrom ascending; the evaluator preserves
// input order and does not re-sort (PhasesForHybrid guarantees ordering on
// read). Ranges may overlap or leave gaps; each phase is evaluated
// independently:
//
//   - active when gddFrom <= currentGDD <= gddTo (closed interval)
//   - completed when currentGDD > gddTo, even if the value jumped straight
//     past the range (accumulation is sampled, not continuous)
//   - GDDLeft is the remaining heat units while active, otherwise 0 — so a
//     consumer telling "not started" from "finished" apart must look at
//     IsActive/Completed, not GDDLeft.
func EvaluatePhases(phases []PhaseDefinition, currentGDD float64) []PhaseStatus {
	statuses := make([]PhaseStatus, 0, len(phases))

	for _, p := range phases {
		isActive := p.GDDFrom <= currentGDD && currentGDD <= p.GDDTo

		gddLeft := 0.0
		if isActive {
			gddLeft = p.GDDTo - currentGDD
			if gddLeft < 0 {
				gddLeft = 0
			}
		}

		statuses = append(statuses, PhaseStatus{
			PhaseName:  p.PhaseName,
			GDDFrom:    p.GDDFrom,
			GDDTo:      p.GDDTo,
			CurrentGDD: currentGDD,
			IsActive:   isActive,
			GDDLeft:    gddLeft,
			Completed:  currentGDD > p.GDDTo,
		})
	}

	return statuses
}
