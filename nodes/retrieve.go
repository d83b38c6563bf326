package nodes

import (
	"context"

	"go.uber.org/zap"

	"github.com/becomeliminal/nim-graph/engine"
)

// Retrieve looks up memories related to the latest user turn and writes
// them to retrieved_info as "Document: <text>" lines. It never fails: a
// memory error leaves retrieved_info empty.
func Retrieve(mem Memory, opts ...Option) engine.NodeFunc {
	o := newOptions(opts)
	logger := o.logger.Named("retrieve")
	return func(ctx context.Context, s engine.State) (engine.Update, error) {
		user, ok := latestUser(s)
		if !ok {
			return engine.Update{KeyRetrievedInfo: ""}, nil
		}
		info, err := mem.Retrieve(ctx, user.Content)
		if err != nil {
			logger.Warn("retrieval failed", zap.Error(err))
			return engine.Update{KeyRetrievedInfo: ""}, nil
		}
		return engine.Update{KeyRetrievedInfo: info}, nil
	}
}
