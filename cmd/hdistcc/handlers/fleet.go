package handlers

import (
	"context"
	"encoding/json"

	"github.com/imamik/hdistcc/internal/fleet"
)

// Start handles the start command.
//
// It creates qty nodes and, unless skipFullStartup is set, waits for each
// one to write its readiness sentinel. Per-node failures are reported in
// the summary; only fleet-scoped failures are returned.
func Start(ctx context.Context, opts *GlobalOptions, qty int, skipFullStartup bool) error {
	return run(ctx, opts, fleet.OpStart, nil, func(ctx context.Context, o *fleet.Orchestrator) (*fleet.Result, error) {
		return o.Start(ctx, qty, skipFullStartup)
	}, false)
}

// Status handles the status command. With asJSON the result is printed as
// a JSON document instead of the summary.
func Status(ctx context.Context, opts *GlobalOptions, asJSON bool) error {
	return run(ctx, opts, fleet.OpStatus, nil, func(ctx context.Context, o *fleet.Orchestrator) (*fleet.Result, error) {
		return o.Status(ctx)
	}, asJSON)
}

// Make handles the make command. args are passed to the build command
// after the -j flag.
func Make(ctx context.Context, opts *GlobalOptions, args []string) error {
	return run(ctx, opts, fleet.OpMake, args, func(ctx context.Context, o *fleet.Orchestrator) (*fleet.Result, error) {
		return o.Make(ctx)
	}, false)
}

// Stop handles the stop command.
func Stop(ctx context.Context, opts *GlobalOptions) error {
	return run(ctx, opts, fleet.OpStop, nil, func(ctx context.Context, o *fleet.Orchestrator) (*fleet.Result, error) {
		return o.Stop(ctx)
	}, false)
}

type operation func(context.Context, *fleet.Orchestrator) (*fleet.Result, error)

func run(ctx context.Context, opts *GlobalOptions, op string, makeArgs []string, fn operation, asJSON bool) error {
	rt, err := newRuntime(ctx, opts, op, makeArgs)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.close(context.WithoutCancel(ctx)); cerr != nil {
			rt.log.Info("cleanup failed", "error", cerr.Error())
		}
	}()

	result, opErr := fn(ctx, rt.fleet)
	if result != nil {
		if asJSON {
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(toJSON(result)); err != nil {
				return err
			}
		} else {
			renderResult(stdout, result, useColor())
		}
	}
	return opErr
}
