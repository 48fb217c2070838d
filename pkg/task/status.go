package task

// RecomputeStatus derives a task's status from its subtasks after one of
// them was toggled:
//
//	all completed (and at least one)  -> done
//	some but not all completed        -> in_progress
//	none completed, was done          -> todo
//	no subtasks or otherwise          -> unchanged
func RecomputeStatus(current Status, subtasks []Subtask) Status {
	total := len(subtasks)
	if total == 0 {
		return current
	}
	completed := total - Incomplete(subtasks)

	switch {
	case completed == total:
		return StatusDone
	case completed > 0 && completed < total:
		return StatusInProgress
	case completed == 0 && current == StatusDone:
		return StatusTodo
	}
	return current
}

// Incomplete counts subtasks not yet completed.
func Incomplete(subtasks []Subtask) int {
	n := 0
	for _, s := range subtasks {
		if !s.Completed {
			n++
		}
	}
	return n
}
