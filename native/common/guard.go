package common

import (
	"errors"
	"fmt"
	"strings"
)

// ErrModulePaused is wrapped by Guard with the name of the paused module.
var ErrModulePaused = errors.New("common: module paused")

// PauseView exposes the pause switch of one or more modules.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects state-mutating calls into a paused module. A nil view or a
// blank module name never blocks.
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
