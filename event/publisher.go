package event

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// MessengerQueue receives every event this service publishes.
const MessengerQueue = "messenger"

type outKey struct{}

// WithOut marks ctx with what handlers should do with the events they cause.
// Replayed input uses it to suppress or silence re-publishing.
func WithOut(ctx context.Context, out EventChannelOutData) context.Context {
	return context.WithValue(ctx, outKey{}, out)
}

// OutFrom defaults to publish-and-log for live requests.
func OutFrom(ctx context.Context) EventChannelOutData {
	if out, ok := ctx.Value(outKey{}).(EventChannelOutData); ok {
		return out
	}
	return EventChannelOutData{Send: true, Log: true}
}

// Emitter is the part of Bus a Publisher needs.
type Emitter interface {
	Emit(ctx context.Context, queue, action string, data []byte, logIt bool) error
}

type Notification struct {
	UserID  uint `json:"user_id"`
	Payload any  `json:"payload"`
}

// Publisher forwards user notifications to the messenger queue so other
// services (mail digests, analytics) can react to them.
type Publisher struct {
	emitter Emitter
	log     *zap.Logger
}

func NewPublisher(emitter Emitter, log *zap.Logger) *Publisher {
	return &Publisher{emitter: emitter, log: log.Named("publisher")}
}

func (p *Publisher) Notify(ctx context.Context, userID uint, action string, payload any) {
	out := OutFrom(ctx)
	if !out.Send {
		return
	}

	data, err := json.Marshal(Notification{UserID: userID, Payload: payload})
	if err != nil {
		p.log.Error("encoding notification", zap.String("action", action), zap.Error(err))
		return
	}

	if err := p.emitter.Emit(ctx, MessengerQueue, action, data, out.Log); err != nil {
		p.log.Warn("publishing notification",
			zap.String("action", action),
			zap.Uint("user_id", userID),
			zap.Error(err),
		)
	}
}
