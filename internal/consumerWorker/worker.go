package consumerWorker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/wb-go/wbf/zlog"

	"hikenity/internal/dto"
	"hikenity/internal/rabbit"
)

// TriggerHandler reacts to one kind of record change. Business-level aborts
// are logged by the handler; only undecodable input is returned as an error.
type TriggerHandler interface {
	HandleChange(ctx context.Context, msg dto.ChangeMessage) error
}

type Reader struct {
	RMQ    rabbit.Consumer
	routes map[string]TriggerHandler
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(rmq rabbit.Consumer, routes map[string]TriggerHandler) *Reader {
	return &Reader{
		RMQ:    rmq,
		routes: routes,
		done:   make(chan struct{}),
	}
}

// RoutingKeys lists the keys the queue must be bound to.
func RoutingKeys(routes map[string]TriggerHandler) []string {
	keys := make([]string, 0, len(routes))
	for k := range routes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Int("routes", len(r.routes)).Msg("🐇 RabbitMQ Reader started")

	go func() {
		defer close(r.done)

		handler := func(routingKey string, body []byte) error {
			return r.dispatch(cctx, routingKey, body)
		}

		if err := r.RMQ.Consume(handler); err != nil {
			zlog.Logger.Error().Err(err).Msg("Failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("🛑 RabbitMQ Reader stopped by context")
	}()
}

func (r *Reader) dispatch(ctx context.Context, routingKey string, body []byte) error {
	h, ok := r.routes[routingKey]
	if !ok {
		zlog.Logger.Warn().Str("routing_key", routingKey).Msg("no trigger registered, dropping message")
		return nil
	}

	var msg dto.ChangeMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		zlog.Logger.Error().
			Err(err).
			Str("routing_key", routingKey).
			Msgf("Failed to unmarshal message: %s", string(body))
		return fmt.Errorf("unmarshal change message: %w", err)
	}
	if msg.Kind == "" {
		msg.Kind = routingKey
	}

	zlog.Logger.Info().
		Str("kind", msg.Kind).
		Str("resource_id", msg.ResourceID).
		Msg("📩 Received change from RabbitMQ")

	if err := h.HandleChange(ctx, msg); err != nil {
		zlog.Logger.Error().
			Err(err).
			Str("kind", msg.Kind).
			Str("resource_id", msg.ResourceID).
			Msg("trigger rejected message")
		return err
	}
	return nil
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
