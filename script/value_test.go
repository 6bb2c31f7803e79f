package script

import (
	"context"
	stderrors "errors"
	"math"
	"math/big"
	"testing"

	"github.com/wippyai/native-runtime/errors"
)

func TestValue_Int64(t *testing.T) {
	tests := []struct {
		name    string
		v       Value
		want    int64
		wantErr bool
	}{
		{"int", Int(-5), -5, false},
		{"uint wraps", Uint(math.MaxUint64), -1, false},
		{"float truncates", Float(3.9), 3, false},
		{"negative float truncates", Float(-3.9), -3, false},
		{"bool", Bool(true), 1, false},
		{"bigint low bits", BigInt(new(big.Int).Lsh(big.NewInt(1), 64)), 0, false},
		{"string", String("1"), 0, true},
		{"nil", Nil(), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.v.Int64()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestValue_Mismatch(t *testing.T) {
	_, err := String("x").Float64()
	if err == nil {
		t.Fatal("expected error")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("got %T, want *errors.Error", err)
	}
	if e.Kind != errors.KindTypeMismatch || e.ScriptType != "string" {
		t.Errorf("got kind %s script type %q", e.Kind, e.ScriptType)
	}
}

func TestValue_Conversions(t *testing.T) {
	if f, _ := Int(-2).Float64(); f != -2 {
		t.Errorf("Float64: got %v", f)
	}
	if b, _ := Int(7).Truth(); !b {
		t.Error("Truth(7) = false")
	}
	if b, _ := Nil().Truth(); b {
		t.Error("Truth(nil) = true")
	}
	if s, _ := Bytes([]byte("ab")).Text(); s != "ab" {
		t.Errorf("Text: got %q", s)
	}
	if b, _ := String("ab").Raw(); string(b) != "ab" {
		t.Errorf("Raw: got %q", b)
	}
	if u, _ := Float(-1).Uint64(); u != math.MaxUint64 {
		t.Errorf("Uint64(-1.0): got %d", u)
	}
	bi, err := Float(1e20).Big()
	if err != nil || bi.String() != "100000000000000000000" {
		t.Errorf("Big: got %v, %v", bi, err)
	}
	if _, err := Float(math.NaN()).Big(); err == nil {
		t.Error("Big(NaN) should fail")
	}
}

func TestValue_Equal(t *testing.T) {
	tests := []struct {
		a, b Value
		want bool
	}{
		{Int(1), Int(1), true},
		{Int(1), Uint(1), false},
		{String("a"), String("a"), true},
		{Bytes([]byte{1}), Bytes([]byte{1}), true},
		{BigInt(big.NewInt(9)), BigInt(big.NewInt(9)), true},
		{Nil(), Value{}, true},
		{Float(1.5), Float(2.5), false},
	}
	for _, tt := range tests {
		if got := tt.a.Equal(tt.b); got != tt.want {
			t.Errorf("%v == %v: got %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestFuncs_Invoke(t *testing.T) {
	ctx := context.Background()
	add := NewFunc("add", func(_ context.Context, args []Value) (Value, error) {
		a, err := args[0].Uint64()
		if err != nil {
			return Value{}, err
		}
		b, err := args[1].Uint64()
		if err != nil {
			return Value{}, err
		}
		return Uint(a + b), nil
	})

	sctx, err := NewFuncs().NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}

	got, err := sctx.Invoke(ctx, add, []Value{Uint(2), Uint(3)})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !got.Equal(Uint(5)) {
		t.Errorf("got %v, want 5", got)
	}

	_, err = sctx.Invoke(ctx, add, []Value{String("x"), Uint(3)})
	if !stderrors.Is(err, errors.ErrScriptFault) {
		t.Errorf("got %v, want script fault", err)
	}

	if err := sctx.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := sctx.Invoke(ctx, add, []Value{Uint(1), Uint(1)}); !stderrors.Is(err, errors.ErrClosed) {
		t.Errorf("after close: got %v, want closed", err)
	}
}

func TestFuncs_RecoversPanic(t *testing.T) {
	boom := NewFunc("boom", func(context.Context, []Value) (Value, error) {
		panic("bad")
	})
	sctx, _ := NewFuncs().NewContext()
	_, err := sctx.Invoke(context.Background(), boom, nil)
	if !stderrors.Is(err, errors.ErrScriptFault) {
		t.Errorf("got %v, want script fault", err)
	}
}
