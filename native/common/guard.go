package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// Module names consulted by the pause guard.
const (
	ModuleIsolation = "isolation"
	ModuleTraders   = "traders"
	ModuleLedger    = "ledger"
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Pauses is an in-memory PauseView toggled by governance.
type Pauses map[string]bool

// IsPaused implements PauseView.
func (p Pauses) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	return p[module]
}

// Set toggles the pause flag for module.
func (p Pauses) Set(module string, paused bool) {
	if p == nil {
		return
	}
	if !paused {
		delete(p, module)
		return
	}
	p[module] = true
}
