package render

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// scriptTimeout bounds a script view when the request carries no deadline.
const scriptTimeout = 5 * time.Second

// runScript evaluates a CommonJS-style view: the file assigns a function to
// module.exports, which is called with the render context and must return the
// response body.
func runScript(ctx context.Context, path string, rc *Context, logger *zap.Logger) (string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read script view: %w", err)
	}

	vm := goja.New()

	ctx, cancel := context.WithTimeout(ctx, scriptTimeout)
	defer cancel()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	module := vm.NewObject()
	exports := vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return "", fmt.Errorf("set module.exports: %w", err)
	}
	if err := vm.Set("module", module); err != nil {
		return "", fmt.Errorf("set module: %w", err)
	}
	if err := vm.Set("exports", exports); err != nil {
		return "", fmt.Errorf("set exports: %w", err)
	}

	console := vm.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.Export()
		}
		logger.Debug("script view", zap.String("file", path), zap.String("message", fmt.Sprint(args...)))
		return goja.Undefined()
	}
	_ = console.Set("log", logFn)
	_ = console.Set("debug", logFn)
	if err := vm.Set("console", console); err != nil {
		return "", fmt.Errorf("set console: %w", err)
	}

	if _, err := vm.RunScript(path, string(src)); err != nil {
		return "", fmt.Errorf("script error: %w", err)
	}

	exported := module.Get("exports")
	fn, ok := goja.AssertFunction(exported)
	if !ok {
		return "", fmt.Errorf("script view %s does not export a function", path)
	}

	result, err := fn(goja.Undefined(), vm.ToValue(rc.Map()))
	if err != nil {
		return "", fmt.Errorf("script error: %w", err)
	}
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return "", nil
	}
	return result.String(), nil
}
