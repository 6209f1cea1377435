package common

import (
	"errors"
	"fmt"
	"strings"
)

// ErrModulePaused is returned by calls into a module governance has paused.
var ErrModulePaused = errors.New("module paused")

// PauseView answers pause queries by module name.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrModulePaused when module is paused. A nil view never
// pauses anything.
func Guard(p PauseView, module string) error {
	module = strings.TrimSpace(module)
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}

// ShutdownView reports whether emergency shutdown has been triggered.
type ShutdownView interface {
	IsShutdown() bool
}

// ShutdownGuard fails with errShutdown once the system is shut down.
func ShutdownGuard(v ShutdownView, errShutdown error) error {
	if v == nil {
		return nil
	}
	if v.IsShutdown() {
		return errShutdown
	}
	return nil
}
