package hook

import (
	"bytes"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/native-runtime/asm"
	"github.com/wippyai/native-runtime/errors"
	"github.com/wippyai/native-runtime/jit"
	"github.com/wippyai/native-runtime/memory"
)

// maxInstLen is the longest x86-64 instruction.
const maxInstLen = 15

const nop = 0x90

// JumpPatch redirects a function by overwriting its first instructions
// with a jump. The displaced instructions run from a trampoline that
// continues in the original body.
//
// The displaced span must not contain position-relative instructions and
// no thread may be executing inside it while it is patched.
type JumpPatch struct {
	mu     sync.Mutex
	target uintptr
	saved  []byte
	tramp  *jit.Stub
	relay  *jit.Stub
	hooked bool
	closed bool

	absolute bool
}

// NewJumpPatch prepares a patch at target. Nothing is written until Hook.
func NewJumpPatch(target uintptr) (*JumpPatch, error) {
	if target == 0 {
		return nil, errors.InvalidInput(errors.PhaseHook, "jump patch target is null")
	}
	return &JumpPatch{target: target}, nil
}

// SetAbsolute disables near relays. Out-of-reach replacements then get the
// 14-byte absolute jump, which displaces more of the prologue.
func (p *JumpPatch) SetAbsolute(on bool) {
	p.mu.Lock()
	p.absolute = on
	p.mu.Unlock()
}

// Site returns the patched function address.
func (p *JumpPatch) Site() uintptr { return p.target }

// Hook writes a jump to replacement at the target. When replacement is out
// of rel32 reach a relay is placed near the target so the patch stays five
// bytes; if no relay fits the absolute 14-byte form is used.
func (p *JumpPatch) Hook(replacement uintptr) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.Closed(errors.PhaseHook, "jump patch")
	}
	if p.hooked {
		return errors.AlreadyHooked(p.target)
	}
	if replacement == 0 {
		return errors.InvalidInput(errors.PhaseHook, "replacement is null")
	}

	var relay *jit.Stub
	dest := replacement
	if !p.absolute && !asm.FitsRel32(p.target, replacement) {
		r, err := jit.NewRelay(p.target, replacement)
		if err == nil {
			relay = r
			dest = r.Entry()
		} else {
			Logger().Debug("no near relay, using absolute jump",
				zap.Uintptr("target", p.target), zap.Error(err))
		}
	}
	release := func() {
		if relay != nil {
			_ = relay.Close()
		}
	}

	patch := asm.MakeJump(p.target, dest)
	avail := memory.Readable(p.target, len(patch)+maxInstLen)
	if avail < len(patch) {
		release()
		return errors.Protection(p.target, len(patch), fmt.Errorf("only %d bytes readable at target", avail))
	}
	code := memory.Read(p.target, avail)
	n, err := asm.CodeLen(code, len(patch))
	if err != nil {
		release()
		return err
	}
	span := code[:n]

	tramp := p.tramp
	if tramp == nil || !bytes.Equal(p.saved, span) {
		tramp, err = jit.NewTrampoline(span, p.target+uintptr(n))
		if err != nil {
			release()
			return err
		}
	}

	buf := bytes.Repeat([]byte{nop}, n)
	copy(buf, patch)
	if err := memory.Patch(p.target, buf); err != nil {
		release()
		if tramp != p.tramp {
			_ = tramp.Close()
		}
		return err
	}

	if tramp != p.tramp && p.tramp != nil {
		_ = p.tramp.Close()
	}
	p.tramp = tramp
	p.saved = bytes.Clone(span)
	p.relay = relay
	p.hooked = true

	Logger().Debug("jump patch installed",
		zap.Uintptr("target", p.target),
		zap.Uintptr("replacement", replacement),
		zap.Int("span", n),
		zap.Int("jump", len(patch)),
		zap.Bool("relay", relay != nil))
	return nil
}

// Unhook writes the saved bytes back. The trampoline stays valid until Close.
func (p *JumpPatch) Unhook() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unhook()
}

func (p *JumpPatch) unhook() error {
	if !p.hooked {
		return nil
	}
	if err := memory.Patch(p.target, p.saved); err != nil {
		return err
	}
	p.hooked = false
	if p.relay != nil {
		_ = p.relay.Close()
		p.relay = nil
	}
	Logger().Debug("jump patch removed", zap.Uintptr("target", p.target))
	return nil
}

// Original returns the trampoline entry while hooked.
func (p *JumpPatch) Original() (uintptr, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hooked || p.tramp == nil {
		return 0, false
	}
	return p.tramp.Entry(), true
}

// Hooked reports whether the jump is in place.
func (p *JumpPatch) Hooked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hooked
}

// Close restores the target, then frees the trampoline.
func (p *JumpPatch) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	if err := p.unhook(); err != nil {
		return err
	}
	p.closed = true
	if p.tramp != nil {
		err := p.tramp.Close()
		p.tramp = nil
		return err
	}
	return nil
}
