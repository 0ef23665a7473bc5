package model

// UtilizationByTag reports, for each resource tag, the fraction of available
// capacity-slots the schedule consumes over the makespan. A tag nobody
// supplies reports 0.
func UtilizationByTag(in *Instance, s Schedule) map[string]float64 {
	fleet := in.FleetCapacity()
	makespan := s.Makespan()

	used := make(map[string]int)
	for id, a := range s.Assignments {
		t := in.TaskByID(id)
		if t == nil {
			continue
		}
		for tag, need := range t.Resources {
			used[tag] += need * (a.End - a.Start)
		}
	}

	util := make(map[string]float64, len(fleet))
	for tag, cap := range fleet {
		if cap == 0 || makespan == 0 {
			util[tag] = 0
			continue
		}
		util[tag] = float64(used[tag]) / float64(cap*makespan)
	}
	return util
}
