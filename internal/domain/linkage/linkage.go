// Package linkage maps exercises to the tasks created from them.
//
// A mapping comes from three sources, in priority order: explicit
// server-side link records, a previously established local mapping, and
// content-signature inference against the currently known tasks.
package linkage

import (
	"github.com/okian/drillbook/internal/domain/model"
	"github.com/okian/drillbook/internal/domain/signature"
)

// Map maps exercise ids to task ids. At most one task id per exercise id.
type Map map[string]string

// Clone returns a shallow copy of the map.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Resolve produces the exercise-id to task-id mapping.
//
// The result is seeded with existing entries, explicit link records then
// overwrite unconditionally, and signature inference fills the remaining
// gaps. Inference never overwrites an explicit or previously established
// entry and never guesses between look-alikes: a signature shared by two
// exercises, or by two tasks, is excluded from inference entirely.
func Resolve(exercises []model.Exercise, tasks []model.Task, explicit []model.ExplicitLink, existing Map) Map {
	result := existing.Clone()
	if result == nil {
		result = make(Map)
	}

	// Explicit links always win.
	for _, link := range explicit {
		if link.ExerciseID == "" || link.TaskID == "" {
			continue
		}
		result[link.ExerciseID] = link.TaskID
	}

	// Signature tables with ambiguity detection. An empty signature is
	// unmatchable and never enters a table.
	exerciseBySig := make(map[string]string, len(exercises))
	ambiguousExercise := make(map[string]bool)
	for _, ex := range exercises {
		sig := signature.OfExercise(ex)
		if sig == "" {
			continue
		}
		if _, dup := exerciseBySig[sig]; dup {
			ambiguousExercise[sig] = true
			continue
		}
		exerciseBySig[sig] = ex.ID
	}

	taskBySig := make(map[string]string, len(tasks))
	ambiguousTask := make(map[string]bool)
	for _, task := range tasks {
		sig := signature.OfTask(task)
		if sig == "" {
			continue
		}
		if _, dup := taskBySig[sig]; dup {
			ambiguousTask[sig] = true
			continue
		}
		taskBySig[sig] = task.ID
	}

	// Fill gaps only where the signature is unambiguous on both sides.
	for _, ex := range exercises {
		if _, mapped := result[ex.ID]; mapped {
			continue
		}
		sig := signature.OfExercise(ex)
		if sig == "" || ambiguousExercise[sig] || ambiguousTask[sig] {
			continue
		}
		if taskID, ok := taskBySig[sig]; ok {
			result[ex.ID] = taskID
		}
	}

	return result
}
