package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coordinator/swarmd/internal/docs"
	"github.com/coordinator/swarmd/internal/registry"
	"github.com/coordinator/swarmd/pkg/rpcerr"
	"github.com/coordinator/swarmd/pkg/swarmtypes"
)

func docsMethods(d Deps) []registry.MethodConfig {
	return []registry.MethodConfig{
		{
			Method: "docs.list",
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				list, err := docs.List()
				if err != nil {
					return nil, rpcerr.Handler("docs.list", err)
				}
				return map[string]any{"docs": list}, nil
			},
			Cache:   &registry.CacheRule{TTL: time.Minute},
			Timeout: 2 * time.Second,
		},
		{
			Method:  "docs.get",
			Handler: handlerFunc(docGetHandler(d)),
			Cache:   &registry.CacheRule{TTL: time.Minute},
			Timeout: 2 * time.Second,
		},
	}
}

func docGetHandler(_ Deps) func(ctx context.Context, req *swarmtypes.DocGetRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.DocGetRequest) (any, error) {
		doc, err := docs.Get(req.Name)
		if err != nil {
			return nil, rpcerr.Newf(rpcerr.InvalidParams, "unknown doc %q", req.Name)
		}
		return doc, nil
	}
}
