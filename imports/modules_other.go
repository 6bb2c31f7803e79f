//go:build !linux && !windows

package imports

import "github.com/wippyai/native-runtime/errors"

func modules() ([]Module, error) {
	return nil, errors.Unsupported(errors.PhaseLocate, "module enumeration on this platform")
}

func moduleImports(Module) ([]Symbol, error) {
	return nil, errors.Unsupported(errors.PhaseLocate, "import tables on this platform")
}
