package shared

import (
	"sidetask/backend"
)

// Merge reconciles the caller's in-memory category list ("local") with a
// fresh read of the on-disk list ("disk"). It is invoked on every shared-mode
// save so that a concurrent writer's additions and edits are not overwritten
// by a stale in-memory snapshot.
//
// Rules:
//   - Categories present in both: the local scalar fields (name, color,
//     collapsed flag, last sort order) win; the task sequences are unioned
//     with local task versions winning per identity.
//   - Categories only in local: new, kept.
//   - Categories only on disk: a concurrent addition the local writer never
//     saw, kept.
//   - Ordering: the local writer's order for everything it knows about,
//     disk-only items after, in disk order.
//
// Known limitation: the task union can resurrect a task another process
// deleted while this process still held it in memory, because a deletion is
// expressed only by omission. The dedicated delete paths (DeleteCategory,
// DeleteTask) bypass the union for exactly that reason; a delete racing
// against any other mutation on another process remains unguarded.
func Merge(disk, local []backend.Category) []backend.Category {
	diskByID := make(map[string]*backend.Category, len(disk))
	for i := range disk {
		diskByID[disk[i].ID] = &disk[i]
	}

	merged := make([]backend.Category, 0, len(local)+len(disk))
	inLocal := make(map[string]bool, len(local))

	for i := range local {
		lc := local[i]
		inLocal[lc.ID] = true
		if dc, ok := diskByID[lc.ID]; ok {
			merged = append(merged, mergeCategory(*dc, lc))
		} else {
			merged = append(merged, lc)
		}
	}

	for i := range disk {
		if !inLocal[disk[i].ID] {
			merged = append(merged, disk[i])
		}
	}

	return merged
}

// mergeCategory overlays the local category's scalar fields onto the disk
// version and unions the task sequences. Local task order comes first; tasks
// known only to disk keep their relative disk order after it.
func mergeCategory(disk, local backend.Category) backend.Category {
	out := local
	out.Tasks = make([]backend.Task, 0, len(local.Tasks)+len(disk.Tasks))

	inLocal := make(map[string]bool, len(local.Tasks))
	for _, lt := range local.Tasks {
		inLocal[lt.ID] = true
		out.Tasks = append(out.Tasks, lt)
	}
	for _, dt := range disk.Tasks {
		if !inLocal[dt.ID] {
			out.Tasks = append(out.Tasks, dt)
		}
	}

	return out
}
