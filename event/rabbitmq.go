package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type EventChannelData struct {
	Action string
	Data   []byte
	Out    EventChannelOutData
}

// EventChannelOutData tells a listener what to do with the events its
// handling produces: publish them, and log them for later replay.
type EventChannelOutData struct {
	Send bool
	Log  bool
}

type RabbitMQSubscribeListener struct {
	Queue   string
	Channel chan EventChannelData
}

const RabbitMQActionHeader string = "x-action"

// Event modes. DISABLE neither logs nor replays; the IN modes replay the
// inbound log into listeners at boot; OUT re-publishes the outbound log.
const (
	ModeDisable   = "DISABLE"
	ModeIn        = "IN"
	ModeInSend    = "IN_SEND"
	ModeInSendLog = "IN_SEND_LOG"
	ModeOut       = "OUT"
)

var ErrNotConnected = errors.New("rabbitmq: not connected")

// Bus owns the RabbitMQ connection, queue listeners and the in/out event logs.
type Bus struct {
	mode string
	log  *zap.Logger

	mu         sync.Mutex
	connection *amqp.Connection
	channel    *amqp.Channel
	queues     map[string]amqp.Queue
	listeners  map[string]chan EventChannelData

	inLog  *EventLog
	outLog *EventLog
}

// NewBus opens the event logs. Connect attaches a broker; without one, Emit
// fails with ErrNotConnected and Replay can still feed listeners.
func NewBus(mode, logDir string, log *zap.Logger) (*Bus, error) {
	b := &Bus{
		mode:      mode,
		log:       log.Named("event"),
		queues:    make(map[string]amqp.Queue),
		listeners: make(map[string]chan EventChannelData),
	}

	if mode == ModeDisable {
		return b, nil
	}

	var err error
	if b.inLog, err = OpenEventLog(logDir, InLogFile); err != nil {
		return nil, err
	}
	if b.outLog, err = OpenEventLog(logDir, OutLogFile); err != nil {
		b.inLog.Close()
		return nil, err
	}
	return b, nil
}

// Connect dials RabbitMQ and declares queues.
func (b *Bus) Connect(url string, queues []string) error {
	connection, err := amqp.Dial(url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	b.log.Info("connection opened to RabbitMQ server")

	channel, err := connection.Channel()
	if err != nil {
		connection.Close()
		return fmt.Errorf("failed to open a RabbitMQ channel: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, name := range queues {
		queue, err := channel.QueueDeclare(
			name,  // name
			false, // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			channel.Close()
			connection.Close()
			return fmt.Errorf("failed to declare RabbitMQ queue %s: %w", name, err)
		}

		b.queues[name] = queue
		b.log.Info("declared RabbitMQ queue", zap.String("queue", name))
	}

	b.connection = connection
	b.channel = channel
	return nil
}

// Subscribe routes each queue's deliveries to its listener channel. Listeners
// are registered even without a connection so Replay can reach them.
func (b *Bus) Subscribe(subscriptions []RabbitMQSubscribeListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range subscriptions {
		b.listeners[sub.Queue] = sub.Channel

		if b.channel == nil {
			continue
		}

		msgs, err := b.channel.Consume(
			sub.Queue, // queue
			"",        // consumer
			false,     // auto-ack
			false,     // exclusive
			false,     // no-local
			false,     // no-wait
			nil,       // args
		)
		if err != nil {
			return fmt.Errorf("failed to register a consumer on %s: %w", sub.Queue, err)
		}
		b.log.Info("subscribed to RabbitMQ queue", zap.String("queue", sub.Queue))

		go b.consume(sub, msgs)
	}
	return nil
}

func (b *Bus) consume(sub RabbitMQSubscribeListener, msgs <-chan amqp.Delivery) {
	for msg := range msgs {
		action, _ := msg.Headers[RabbitMQActionHeader].(string)
		if action == "" {
			b.log.Warn("dropping message without action header", zap.String("queue", sub.Queue))
			msg.Nack(false, false)
			continue
		}

		if b.inLog != nil {
			if err := b.inLog.Append(EventLogData{
				Time:    time.Now().UnixMicro(),
				Service: sub.Queue,
				Action:  action,
				Data:    string(msg.Body),
			}); err != nil {
				b.log.Error("writing in log", zap.Error(err))
			}
		}

		msg.Ack(false)

		sub.Channel <- EventChannelData{
			Action: action,
			Data:   msg.Body,
			Out: EventChannelOutData{
				Send: true,
				Log:  true,
			},
		}
	}
}

// Emit publishes data to a queue with its action header. When logIt is set
// and logging is enabled, the event is appended to the out log.
func (b *Bus) Emit(ctx context.Context, queue, action string, data []byte, logIt bool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b.mu.Lock()
	channel := b.channel
	if channel == nil {
		b.mu.Unlock()
		return ErrNotConnected
	}
	err := channel.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Headers: amqp.Table{
				RabbitMQActionHeader: action,
			},
			Body: data,
		},
	)
	b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", action, queue, err)
	}

	if logIt && b.outLog != nil {
		if err := b.outLog.Append(EventLogData{
			Time:    time.Now().UnixMicro(),
			Service: queue,
			Action:  action,
			Data:    string(data),
		}); err != nil {
			b.log.Error("writing out log", zap.Error(err))
		}
	}
	return nil
}

// Replay feeds the event logs back according to the configured mode.
func (b *Bus) Replay(ctx context.Context) error {
	switch b.mode {
	case ModeInSendLog:
		return b.replayIn(EventChannelOutData{Send: true, Log: true})
	case ModeInSend:
		return b.replayIn(EventChannelOutData{Send: true, Log: false})
	case ModeIn:
		return b.replayIn(EventChannelOutData{Send: false, Log: false})
	case ModeOut:
		return b.replayOut(ctx)
	}
	return nil
}

func (b *Bus) replayIn(out EventChannelOutData) error {
	replayed := 0
	err := b.inLog.Each(func(data EventLogData) error {
		b.mu.Lock()
		listener, ok := b.listeners[data.Service]
		b.mu.Unlock()
		if !ok {
			b.log.Warn("no listener for replayed event", zap.String("queue", data.Service))
			return nil
		}

		listener <- EventChannelData{
			Action: data.Action,
			Data:   []byte(data.Data),
			Out:    out,
		}
		replayed++
		return nil
	})
	b.log.Info("replayed in log", zap.Int("events", replayed))
	return err
}

func (b *Bus) replayOut(ctx context.Context) error {
	return b.outLog.Each(func(data EventLogData) error {
		return b.Emit(ctx, data.Service, data.Action, []byte(data.Data), false)
	})
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.channel != nil {
		b.channel.Close()
	}
	if b.connection != nil {
		b.connection.Close()
	}
	if b.inLog != nil {
		b.inLog.Close()
	}
	if b.outLog != nil {
		b.outLog.Close()
	}
}
