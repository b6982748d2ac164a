package listener

import (
	"context"
	"encoding/json"
	"fmt"

	"realty-messenger/event"
	"realty-messenger/model"

	"go.uber.org/zap"
)

// ListingQueue is where the listings service announces listing changes.
const ListingQueue = "listing"

const (
	ActionPropertySold    = "property_sold"
	ActionPropertyDeleted = "property_deleted"
)

type PropertyEvent struct {
	PropertyID uint `json:"property_id"`
}

// ListingHandler is the slice of the messenger the listing listener drives.
type ListingHandler interface {
	PostSystemMessage(ctx context.Context, propertyID uint, kind string) (int, error)
	DeleteConversationsForProperty(ctx context.Context, propertyID uint) (int, error)
}

type Listing struct {
	Channel chan event.EventChannelData

	handler ListingHandler
	log     *zap.Logger
}

func NewListing(handler ListingHandler, log *zap.Logger) *Listing {
	return &Listing{
		Channel: make(chan event.EventChannelData),
		handler: handler,
		log:     log.Named("listener.listing"),
	}
}

// Run handles events until ctx is cancelled.
func (l *Listing) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-l.Channel:
			if err := l.Handle(ctx, ev); err != nil {
				l.log.Error("handling listing event", zap.String("action", ev.Action), zap.Error(err))
			}
		}
	}
}

func (l *Listing) Handle(ctx context.Context, ev event.EventChannelData) error {
	var payload PropertyEvent
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		return fmt.Errorf("decoding %s: %w", ev.Action, err)
	}
	if payload.PropertyID == 0 {
		return fmt.Errorf("%s without property_id", ev.Action)
	}

	ctx = event.WithOut(ctx, ev.Out)

	switch ev.Action {
	case ActionPropertySold:
		n, err := l.handler.PostSystemMessage(ctx, payload.PropertyID, model.SystemKindPropertySold)
		if err != nil {
			return err
		}
		l.log.Info("listing sold", zap.Uint("property_id", payload.PropertyID), zap.Int("conversations", n))
	case ActionPropertyDeleted:
		n, err := l.handler.DeleteConversationsForProperty(ctx, payload.PropertyID)
		if err != nil {
			return err
		}
		l.log.Info("listing deleted", zap.Uint("property_id", payload.PropertyID), zap.Int("conversations", n))
	default:
		l.log.Debug("ignoring listing event", zap.String("action", ev.Action))
	}
	return nil
}
