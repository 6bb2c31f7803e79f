package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/native-runtime/abi"
	"github.com/wippyai/native-runtime/config"
	"github.com/wippyai/native-runtime/engine"
	"github.com/wippyai/native-runtime/host"
	"github.com/wippyai/native-runtime/jit"
	"github.com/wippyai/native-runtime/logging"
	"github.com/wippyai/native-runtime/marshal"
	"github.com/wippyai/native-runtime/script"
	"github.com/wippyai/native-runtime/script/wasm"
)

// session is one loaded guest wired to a native engine.
type session struct {
	path string
	log  *zap.Logger
	eng  *engine.Engine
	rt   *wasm.Runtime
	host *host.Host
}

func openSession(ctx context.Context, cfgPath, scriptPath string) (*session, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(cfg.Log, cfg.Dev)
	if err != nil {
		return nil, err
	}
	logging.Install(log)

	policy, err := jit.ParseFaultPolicy(cfg.Engine.FaultPolicy)
	if err != nil {
		return nil, err
	}
	conv := cfg.Convention()

	//nolint:gosec // G304: the script path is an operator argument.
	data, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}

	rt, err := wasm.New(ctx, wasm.Config{MemoryLimitPages: cfg.Script.MemoryLimitPages, WASI: true})
	if err != nil {
		return nil, err
	}
	eng := engine.New(engine.Options{Policy: policy, Conv: conv, AbsoluteJumps: !cfg.Engine.NearAlloc})
	s := &session{path: scriptPath, log: log, eng: eng, rt: rt, host: host.New(eng, rt)}

	if err := s.host.Instantiate(ctx, rt.Wazero()); err != nil {
		s.close(ctx)
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(scriptPath), filepath.Ext(scriptPath))
	if err := rt.Load(ctx, name, data); err != nil {
		s.close(ctx)
		return nil, err
	}
	log.Info("script loaded",
		zap.String("path", scriptPath),
		zap.Int("exports", len(rt.Functions())),
		zap.Stringer("conv", conv))
	return s, nil
}

// close releases native state before the guest so no hook outlives the
// callbacks it targets.
func (s *session) close(ctx context.Context) {
	s.host.Close()
	if err := s.eng.Close(); err != nil {
		s.log.Warn("engine close", zap.Error(err))
	}
	if err := s.rt.Close(ctx); err != nil {
		s.log.Warn("script runtime close", zap.Error(err))
	}
	_ = s.log.Sync()
}

// call parses inputs against the export's parameter types and invokes it.
func (s *session) call(ctx context.Context, name string, inputs []string) (script.Value, error) {
	fn, err := s.rt.Function(name)
	if err != nil {
		return script.Value{}, err
	}
	args, err := parseArgs(fn.Params(), inputs)
	if err != nil {
		return script.Value{}, err
	}
	return s.rt.Call(ctx, name, args...)
}

func parseArgs(params []api.ValueType, inputs []string) ([]script.Value, error) {
	if len(inputs) != len(params) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(params), len(inputs))
	}
	args := make([]script.Value, len(params))
	for i, p := range params {
		v, err := marshal.ParseText(paramType(p), inputs[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

func paramType(t api.ValueType) abi.ValueType {
	switch t {
	case api.ValueTypeI64:
		return abi.I64
	case api.ValueTypeF32:
		return abi.F32
	case api.ValueTypeF64:
		return abi.F64
	}
	return abi.I32
}

func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}
