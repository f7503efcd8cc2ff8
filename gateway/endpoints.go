package gateway

import (
	"context"

	"github.com/hazyhaar/restyle/idgen"
	"github.com/hazyhaar/restyle/journal"
	"github.com/hazyhaar/restyle/kit"
)

// endpoint wraps Handle for both transports.
func (g *Gateway) endpoint(name string) kit.Endpoint {
	base := func(ctx context.Context, req any) (any, error) {
		return g.Handle(ctx, *req.(*Message))
	}
	mws := []kit.Middleware{
		kit.WithRequestIDs(idgen.Prefixed("req_", idgen.Default)),
		kit.Logging(g.logger, name),
	}
	if g.journal != nil {
		mws = append(mws, journal.Middleware(g.journal, name))
	}
	return kit.Chain(mws...)(base)
}
