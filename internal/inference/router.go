package inference

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Router dispatches each call to the gateway of the model's provider.
type Router struct {
	registry *Registry
	backends map[Provider]Gateway
	log      zerolog.Logger
}

func NewRouter(reg *Registry, backends map[Provider]Gateway, log zerolog.Logger) *Router {
	return &Router{registry: reg, backends: backends, log: log.With().Str("component", "inference").Logger()}
}

func (r *Router) Generate(ctx context.Context, model string, history []Turn) (Reply, error) {
	m, ok := r.registry.Lookup(model)
	if !ok {
		return Reply{}, &Error{Kind: KindUnsupportedModel, Model: model, Err: fmt.Errorf("model not in registry")}
	}
	gw, ok := r.backends[m.Provider]
	if !ok {
		return Reply{}, &Error{Kind: KindUnsupportedModel, Model: model, Err: fmt.Errorf("provider %s not configured", m.Provider)}
	}
	reply, err := gw.Generate(ctx, model, history)
	if err != nil {
		r.log.Warn().Err(err).Str("model", model).Str("provider", string(m.Provider)).Msg("generation failed")
		return Reply{}, err
	}
	r.log.Debug().Str("model", model).Dur("elapsed", reply.Elapsed).Int("turns", len(history)).Msg("generation done")
	return reply, nil
}
