package checklist

import "fmt"

// CatalogSize is the number of procedure types in the fixed catalog.
const CatalogSize = 17

type catalogEntry struct {
	name   string
	counts [4]int
}

// catalog is the build-time procedure template. Checkbox counts are per
// stage in unlock order.
var catalog = [CatalogSize]catalogEntry{
	{"New OPD", [4]int{13, 3, 3, 0}},
	{"Old OPD", [4]int{10, 4, 3, 1}},
	{"Scaling", [4]int{6, 3, 0, 0}},
	{"Composites", [4]int{6, 4, 0, 0}},
	{"RCT", [4]int{6, 4, 1, 0}},
	{"Crown", [4]int{6, 3, 1, 0}},
	{"Surgical 8", [4]int{3, 2, 0, 0}},
	{"Non-Surgical 8", [4]int{3, 1, 0, 0}},
	{"Routine Extraction", [4]int{6, 2, 0, 0}},
	{"Single Implant", [4]int{2, 2, 1, 1}},
	{"Denture", [4]int{1, 1, 1, 1}},
	{"RPD", [4]int{1, 2, 0, 0}},
	{"Smile Designing", [4]int{1, 2, 2, 1}},
	{"Orthodontics", [4]int{1, 1, 2, 1}},
	{"Invisalign", [4]int{0, 1, 2, 1}},
	{"FMR", [4]int{0, 0, 1, 1}},
	{"All-on-4 Implants", [4]int{0, 0, 1, 1}},
}

// InitialTasks returns a fresh, all-incomplete copy of the catalog. It is
// the seed on first run and the target of a reset.
func InitialTasks() []Task {
	tasks := make([]Task, 0, CatalogSize)
	for i, entry := range catalog {
		n := i + 1
		task := Task{
			ID:   fmt.Sprintf("task%d", n),
			Name: entry.name,
		}
		for s, key := range StageKeys {
			boxes := make([]Checkbox, entry.counts[s])
			for c := range boxes {
				boxes[c] = Checkbox{ID: fmt.Sprintf("t%ds%dc%d", n, s+1, c+1)}
			}
			task.Stages.set(key, boxes)
		}
		tasks = append(tasks, task)
	}
	return tasks
}
