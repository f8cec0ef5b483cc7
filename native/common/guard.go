package common

import "errors"

// ErrModulePaused is returned by Guard for a module switched off by operators.
var ErrModulePaused = errors.New("module paused")

// PauseView reports operator pause toggles per module.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails when the module is paused. A nil view never blocks.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
