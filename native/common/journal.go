package common

// Journaled components can capture their state and restore it later. The
// restore function returned by Checkpoint must put the component back exactly
// as it was when Checkpoint was called.
type Journaled interface {
	Checkpoint() (restore func())
}

// Journal groups every stateful component touched by a multi-step operation so
// the operation can be applied all-or-nothing.
type Journal struct {
	members []Journaled
}

// NewJournal returns a journal tracking the supplied components.
func NewJournal(members ...Journaled) *Journal {
	j := &Journal{}
	for _, m := range members {
		j.Register(m)
	}
	return j
}

// Register adds a component to the journal. Nil components are ignored.
func (j *Journal) Register(m Journaled) {
	if j == nil || m == nil {
		return
	}
	j.members = append(j.members, m)
}

// Atomic runs fn and rolls every registered component back when fn fails.
// Nested sections roll back independently; the outermost failure restores the
// state captured at its own entry.
func (j *Journal) Atomic(fn func() error) error {
	if j == nil {
		return fn()
	}
	restores := make([]func(), 0, len(j.members))
	for _, m := range j.members {
		restores = append(restores, m.Checkpoint())
	}
	err := fn()
	if err != nil {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
	}
	return err
}
