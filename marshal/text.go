package marshal

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"

	"github.com/wippyai/native-runtime/abi"
	"github.com/wippyai/native-runtime/errors"
	"github.com/wippyai/native-runtime/script"
)

// ParseText converts user input into a script value suited to t.
// Integers accept 0x prefixes, structs take hex bytes, C strings get a
// terminating NUL appended.
func ParseText(t abi.ValueType, s string) (script.Value, error) {
	s = strings.TrimSpace(s)

	bad := func(err error) (script.Value, error) {
		return script.Value{}, errors.New(errors.PhaseCall, errors.KindInvalidInput).
			NativeType(t.String()).
			Value(s).
			Cause(err).
			Detail("cannot parse %q", s).
			Build()
	}

	switch t.Kind() {
	case abi.KindF32, abi.KindF64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return bad(err)
		}
		return script.Float(f), nil

	case abi.KindI8, abi.KindI16, abi.KindI32, abi.KindI64:
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return bad(err)
		}
		return script.Int(n), nil

	case abi.KindU8, abi.KindU16, abi.KindU32, abi.KindU64, abi.KindPointer:
		n, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return bad(err)
		}
		return script.Uint(n), nil

	case abi.KindU128, abi.KindI128:
		b, ok := new(big.Int).SetString(s, 0)
		if !ok {
			return bad(nil)
		}
		return script.BigInt(b), nil

	case abi.KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return bad(err)
		}
		return script.Bool(b), nil

	case abi.KindCStr:
		return script.String(s + "\x00"), nil

	case abi.KindWStr, abi.KindChar, abi.KindWChar:
		return script.String(s), nil

	case abi.KindStruct:
		raw, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
		if err != nil {
			return bad(err)
		}
		return script.Bytes(raw), nil
	}
	return bad(nil)
}
