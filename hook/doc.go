// Package hook redirects native control flow to replacement code.
//
// Three redirection kinds share one state machine. A site starts unhooked,
// Hook moves it to hooked, Unhook moves it back. Hooking twice is an
// AlreadyHooked error; unhooking twice does nothing.
//
//   - JumpPatch overwrites the first instructions of a function with a jump
//     and keeps the displaced instructions in a trampoline.
//   - PointerHook overwrites one pointer cell: an import table entry or a
//     virtual table slot.
//   - VTable tracks the altered slots of one table so they can be reset
//     together.
//
// A failed protection change aborts the step before anything is written.
package hook
