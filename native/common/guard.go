package common

// PauseView reports whether a module is administratively halted.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrPaused when the module is halted.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return Wrap(ErrPaused, "module %s paused", module)
	}
	return nil
}
