package wasm

import (
	"context"
	"sort"
	"strconv"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/native-runtime/errors"
	"github.com/wippyai/native-runtime/script"
)

// lower converts v to a guest parameter of type t. Text is copied into
// guest memory; the returned pointer must be released after the call.
func (r *Runtime) lower(ctx context.Context, v script.Value, t api.ValueType) (uint64, uint32, error) {
	switch v.Kind() {
	case script.KindString, script.KindBytes:
		if t != api.ValueTypeI32 {
			return 0, 0, errors.TypeMismatch(errors.PhaseScript, nil, v.Kind().String(), api.ValueTypeName(t))
		}
		raw, _ := v.Raw()
		ptr, err := r.alloc.copyIn(ctx, raw)
		if err != nil {
			return 0, 0, err
		}
		return api.EncodeU32(ptr), ptr, nil
	case script.KindNil:
		return 0, 0, nil
	}

	switch t {
	case api.ValueTypeI32:
		n, err := v.Int64()
		if err != nil {
			return 0, 0, err
		}
		return api.EncodeI32(int32(n)), 0, nil
	case api.ValueTypeI64:
		n, err := v.Int64()
		if err != nil {
			return 0, 0, err
		}
		return api.EncodeI64(n), 0, nil
	case api.ValueTypeF32:
		f, err := v.Float64()
		if err != nil {
			return 0, 0, err
		}
		return api.EncodeF32(float32(f)), 0, nil
	case api.ValueTypeF64:
		f, err := v.Float64()
		if err != nil {
			return 0, 0, err
		}
		return api.EncodeF64(f), 0, nil
	}
	return 0, 0, errors.Unsupported(errors.PhaseScript, "parameter type "+api.ValueTypeName(t))
}

// lift converts a guest result to a script value. Integers are signed.
func lift(raw uint64, t api.ValueType) script.Value {
	switch t {
	case api.ValueTypeI32:
		return script.Int(int64(api.DecodeI32(raw)))
	case api.ValueTypeI64:
		return script.Int(int64(raw))
	case api.ValueTypeF32:
		return script.Float(float64(api.DecodeF32(raw)))
	case api.ValueTypeF64:
		return script.Float(api.DecodeF64(raw))
	}
	return script.Uint(raw)
}

func atParam(err error, fn string, i int) error {
	if e, ok := err.(*errors.Error); ok && len(e.Path) == 0 {
		e.Path = []string{fn, strconv.Itoa(i)}
	}
	return err
}

func sortFunctions(fns []*Function) {
	sort.Slice(fns, func(i, j int) bool { return fns[i].name < fns[j].name })
}
