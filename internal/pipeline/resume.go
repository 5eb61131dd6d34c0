package pipeline

import "github.com/paulheiniger/storm-event-leads/internal/domain"

// stepInputs lists, for each step with a reusable output, every step whose
// output it is derived from.
var stepInputs = map[domain.StepName][]domain.StepName{
	domain.StepCombine:          {domain.StepAcquire},
	domain.StepPrimaryCluster:   {domain.StepAcquire, domain.StepCombine},
	domain.StepAlias:            {domain.StepPrimaryCluster},
	domain.StepSecondaryCluster: {domain.StepAcquire, domain.StepCombine, domain.StepPrimaryCluster},
	domain.StepExport:           {domain.StepAcquire, domain.StepCombine, domain.StepPrimaryCluster, domain.StepSecondaryCluster},
}

// staleSteps reads a partition's run log, newest entry first, and returns the
// steps whose existing output must not be reused. A step is stale when its
// latest entry is neither OK nor SKIPPED, or when one of its inputs was
// written after the step last succeeded.
func staleSteps(history []domain.RunLogEntry) map[domain.StepName]bool {
	latest := make(map[domain.StepName]domain.StepStatus)
	lastOK := make(map[domain.StepName]int)
	for i, e := range history {
		if _, seen := latest[e.Step]; !seen {
			latest[e.Step] = e.Status
		}
		if _, seen := lastOK[e.Step]; !seen && e.Status == domain.StatusOK {
			lastOK[e.Step] = i
		}
	}

	stale := make(map[domain.StepName]bool)
	for step, inputs := range stepInputs {
		if status, ok := latest[step]; ok && status != domain.StatusOK && status != domain.StatusSkipped {
			stale[step] = true
			continue
		}
		own, ok := lastOK[step]
		if !ok {
			own = len(history)
		}
		for _, in := range inputs {
			if i, ok := lastOK[in]; ok && i < own {
				stale[step] = true
				break
			}
		}
	}
	return stale
}
