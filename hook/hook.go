package hook

// Hook is one redirectable site.
type Hook interface {
	// Site returns the patched address: a function entry or a pointer cell.
	Site() uintptr

	// Hook redirects the site to replacement.
	Hook(replacement uintptr) error

	// Unhook restores the site. It is a no-op when not hooked.
	Unhook() error

	// Original returns an address that reaches the unmodified behavior
	// while the site is hooked.
	Original() (uintptr, bool)

	// Hooked reports whether the site is currently redirected.
	Hooked() bool

	// Close unhooks and releases any generated code.
	Close() error
}

var (
	_ Hook = (*JumpPatch)(nil)
	_ Hook = (*PointerHook)(nil)
)
