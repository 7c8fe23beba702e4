package board

import "sort"

func statusForLane(lane Lane) Status {
	switch lane {
	case LaneProgress:
		return StatusProgress
	case LaneDone:
		return StatusDone
	default:
		return StatusTodo
	}
}

func nextLane(lane Lane) Lane {
	switch lane {
	case LaneTodo:
		return LaneProgress
	case LaneProgress:
		return LaneDone
	default:
		return LaneDone
	}
}

// AdvanceTask moves a task one lane forward; done is terminal and further
// advances are no-ops. Lanes never regress through this path. A blocked
// task stays blocked until it lands in done, which always implies done.
func AdvanceTask(doc Document, taskID string) (Document, error) {
	for i := range doc.Tasks {
		if doc.Tasks[i].ID != taskID {
			continue
		}
		lane := nextLane(doc.Tasks[i].Lane)
		doc.Tasks[i].Lane = lane
		if lane == LaneDone || doc.Tasks[i].Status != StatusBlocked {
			doc.Tasks[i].Status = statusForLane(lane)
		}
		return doc, nil
	}
	return doc, ErrNotFound
}

// ToggleBlocked flips a task between blocked and the status its lane
// implies, so unblocking a progress task restores progress, not todo.
func ToggleBlocked(doc Document, taskID string) (Document, error) {
	for i := range doc.Tasks {
		if doc.Tasks[i].ID != taskID {
			continue
		}
		if doc.Tasks[i].Status == StatusBlocked {
			doc.Tasks[i].Status = statusForLane(doc.Tasks[i].Lane)
		} else {
			doc.Tasks[i].Status = StatusBlocked
		}
		return doc, nil
	}
	return doc, ErrNotFound
}

type MilestoneStat struct {
	Milestone string `json:"milestone"`
	Total     int    `json:"total"`
	Done      int    `json:"done"`
	Percent   int    `json:"percent"`
}

// MilestoneProgress aggregates completion per milestone label. Tasks with
// no milestone are grouped under an empty label.
func MilestoneProgress(doc Document) []MilestoneStat {
	byLabel := map[string]*MilestoneStat{}
	for _, task := range doc.Tasks {
		stat := byLabel[task.Milestone]
		if stat == nil {
			stat = &MilestoneStat{Milestone: task.Milestone}
			byLabel[task.Milestone] = stat
		}
		stat.Total++
		if task.Lane == LaneDone {
			stat.Done++
		}
	}
	stats := make([]MilestoneStat, 0, len(byLabel))
	for _, stat := range byLabel {
		if stat.Total > 0 {
			stat.Percent = stat.Done * 100 / stat.Total
		}
		stats = append(stats, *stat)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Milestone < stats[j].Milestone })
	return stats
}
