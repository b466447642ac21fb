package ping_worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/NordCoder/upwatch/internal/domain/events"
	kafkax "github.com/NordCoder/upwatch/internal/repository/kafka"
)

type Consumer interface {
	Consume(ctx context.Context, h kafkax.Handler) error
}

// Controller feeds check requests from Kafka into the Handler. Each consumer
// in Subs handles its messages in order, so checks run concurrently across
// consumers (and therefore across partitions). A handler panic is turned into
// an error so the consumer loop keeps running.
type Controller struct {
	Log  *zap.Logger
	Subs []Consumer
	UC   *Handler
}

// Run consumes from every subscriber until all of them return.
func (c *Controller) Run(ctx context.Context) error {
	h := kafkax.JSONHandler(c.handle)
	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range c.Subs {
		g.Go(func() error { return sub.Consume(gctx, h) })
	}
	return g.Wait()
}

func (c *Controller) handle(ctx context.Context, _ []byte, msg *events.CheckRequested) (err error) {
	defer func() {
		if p := recover(); p != nil {
			c.Log.Error("check handler panic", zap.Int64("monitor_id", msg.MonitorID), zap.Any("panic", p))
			err = fmt.Errorf("check handler panic: %v", p)
		}
	}()
	c.Log.Debug("check-request", zap.Int64("monitor_id", msg.MonitorID))
	return c.UC.HandleCheck(ctx, msg.MonitorID)
}
