package router

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"realty-messenger/service"
	"realty-messenger/socketio"
	"realty-messenger/utils"

	"github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

// Authorizer checks conversation membership before a socket joins its room.
type Authorizer interface {
	Authorize(ctx context.Context, requesterID, conversationID uint) error
}

// MessengerAuthorizer adapts a Messenger to Authorizer.
type MessengerAuthorizer struct {
	Messenger *service.Messenger
}

func (a MessengerAuthorizer) Authorize(ctx context.Context, requesterID, conversationID uint) error {
	_, err := a.Messenger.Authorize(ctx, requesterID, conversationID)
	return err
}

func Socket(server *socket.Server, auth Authorizer, log *zap.Logger) {
	log = log.Named("socket")

	server.On("connection", func(clients ...interface{}) {
		client := clients[0].(*socket.Socket)

		claims, ok := client.Data().(*utils.TokenMetadata)
		if !ok {
			client.Disconnect(true)
			return
		}

		client.On(service.EventJoinConversation, func(args ...interface{}) {
			id, ok := ConversationIDArg(args)
			if !ok {
				return
			}
			if err := auth.Authorize(context.Background(), claims.ID, id); err != nil {
				log.Debug("join refused",
					zap.Uint("user_id", claims.ID),
					zap.Uint("conversation_id", id),
					zap.Error(err),
				)
				return
			}
			client.Join(socketio.ConversationRoom(id))
		})

		client.On(service.EventLeaveConversation, func(args ...interface{}) {
			if id, ok := ConversationIDArg(args); ok {
				client.Leave(socketio.ConversationRoom(id))
			}
		})

		relay := func(event string) func(...interface{}) {
			return func(args ...interface{}) {
				id, ok := ConversationIDArg(args)
				if !ok {
					return
				}
				room := socketio.ConversationRoom(id)
				// only sockets that passed the join check may signal
				if !client.Rooms().Has(room) {
					return
				}
				client.To(room).Emit(event, service.TypingPayload{ConversationID: id, UserID: claims.ID})
			}
		}
		client.On(service.EventTyping, relay(service.EventTyping))
		client.On(service.EventStopTyping, relay(service.EventStopTyping))

		// rooms are still populated while disconnecting
		client.On("disconnecting", func(...interface{}) {
			for _, room := range client.Rooms().Keys() {
				id, ok := conversationFromRoom(room)
				if !ok {
					continue
				}
				client.To(room).Emit(service.EventStopTyping, service.TypingPayload{ConversationID: id, UserID: claims.ID})
			}
		})
	})
}

// ConversationIDArg reads {conversationId} from the first event argument.
// Clients send it as a JSON number or a numeric string.
func ConversationIDArg(args []interface{}) (uint, bool) {
	if len(args) == 0 {
		return 0, false
	}
	body, ok := args[0].(map[string]interface{})
	if !ok {
		return 0, false
	}

	switch v := body["conversationId"].(type) {
	case float64:
		if v <= 0 || v != float64(uint(v)) {
			return 0, false
		}
		return uint(v), true
	case json.Number:
		n, err := strconv.ParseUint(v.String(), 10, 64)
		return uint(n), err == nil && n > 0
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		return uint(n), err == nil && n > 0
	}
	return 0, false
}

func conversationFromRoom(room socket.Room) (uint, bool) {
	raw, ok := strings.CutPrefix(string(room), "conversation_")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	return uint(n), err == nil
}
