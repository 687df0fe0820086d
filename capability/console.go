package capability

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/value"
)

func console(opts Options) imports.Namespace {
	return imports.Namespace{
		"print": imports.Void(func(_ context.Context, env imports.Env, args []value.Value) (value.Value, error) {
			msg := value.ToString(args[0])
			if opts.Output != nil {
				_, err := fmt.Fprintln(opts.Output, msg)
				return nil, err
			}
			env.Logger().Named("console").Info(msg, zap.String("source", "module"))
			return nil, nil
		}, imports.Ref),
	}
}
