// Package handlers wires the dotted method catalog of SPEC_FULL.md §6.2
// onto internal/registry: one registry.Handler per method, each decoding
// and validating its request DTO (pkg/swarmtypes's RPC request types,
// checked with github.com/go-playground/validator/v10) before calling into
// the owning component. Grounded on the teacher's internal/rpc server_*.go
// split — one file per subsystem, all registering against a single
// dispatch table at startup — generalized from the teacher's hand-written
// switch statement onto the declarative registry.MethodConfig table.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/coordinator/swarmd/internal/eventbus"
	"github.com/coordinator/swarmd/internal/hooks"
	"github.com/coordinator/swarmd/internal/instances"
	"github.com/coordinator/swarmd/internal/queue"
	"github.com/coordinator/swarmd/internal/registry"
	"github.com/coordinator/swarmd/internal/sink"
	"github.com/coordinator/swarmd/internal/store"
	"github.com/coordinator/swarmd/internal/swarm"
	"github.com/coordinator/swarmd/pkg/rpcerr"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Deps collects every component a handler may call into. A nil Sink or
// Bus is valid — those are optional integrations (spec.md §1's relational
// archival store and external fan-out are both opt-in) and handlers that
// touch them degrade gracefully.
type Deps struct {
	Store     *store.Store
	Instances *instances.Manager
	Queue     *queue.Queue
	Swarm     *swarm.Coordinator
	Hooks     *hooks.Validator
	Sink      *sink.Sink
	Bus       *eventbus.Bus
	Log       zerolog.Logger

	FlushToken string
}

// Register installs every method in the catalog against reg.
func Register(reg *registry.Registry, d Deps) error {
	for _, group := range [][]registry.MethodConfig{
		systemMethods(d),
		taskMethods(d),
		swarmMethods(d),
		hookMethods(d),
		docsMethods(d),
	} {
		for _, cfg := range group {
			if err := reg.Register(cfg); err != nil {
				return fmt.Errorf("register %s: %w", cfg.Method, err)
			}
		}
	}
	return nil
}

// decode unmarshals params into dst and runs struct validation, returning
// INVALID_PARAMS when params are missing or do not decode and
// VALIDATION_ERROR when struct validation fails, so every handler reports
// malformed input the same way.
func decode(params json.RawMessage, dst any) error {
	if len(params) == 0 {
		return rpcerr.New(rpcerr.InvalidParams, "missing params")
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return rpcerr.Newf(rpcerr.InvalidParams, "decode params: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		return rpcerr.Newf(rpcerr.ValidationError, "validate params: %v", err)
	}
	return nil
}

// handlerFunc adapts a typed (ctx, *Req) -> (any, error) function into a
// registry.Handler, centralizing decode/validate so individual handlers
// only express domain logic.
func handlerFunc[Req any](fn func(ctx context.Context, req *Req) (any, error)) registry.Handler {
	return func(ctx context.Context, params json.RawMessage) (any, error) {
		req := new(Req)
		if err := decode(params, req); err != nil {
			return nil, err
		}
		return fn(ctx, req)
	}
}
