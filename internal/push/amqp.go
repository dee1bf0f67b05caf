package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// AMQPGateway hands push requests to a RabbitMQ topic exchange consumed by the
// clinic's push worker. Success means the broker confirmed the publish.
type AMQPGateway struct {
	conn       *amqp091.Connection
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type AMQPOptions struct {
	URL           string
	Exchange      string
	RoutingKey    string
	RetryAttempts int
	RetryDelay    time.Duration
}

// amqpRequest is the wire format read by the push worker.
type amqpRequest struct {
	ID        string  `json:"id"`
	CreatedAt int64   `json:"created_at"`
	Message   Message `json:"message"`
}

func NewAMQPGateway(ctx context.Context, opts AMQPOptions, logger *slog.Logger) (*AMQPGateway, error) {
	logger = logger.With("component", "amqp_gateway")

	conn, err := dialWithRetry(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(opts.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", opts.Exchange, err)
	}

	return &AMQPGateway{
		conn:       conn,
		exchange:   opts.Exchange,
		routingKey: opts.RoutingKey,
		logger:     logger,
	}, nil
}

func (g *AMQPGateway) Send(ctx context.Context, msg Message) error {
	ch, err := g.conn.Channel()
	if err != nil {
		return &Error{Code: CodeUnavailable, Err: err}
	}
	defer ch.Close()

	if err := ch.Confirm(false); err != nil {
		return &Error{Code: CodeUnavailable, Err: err}
	}

	req := amqpRequest{ID: uuid.NewString(), CreatedAt: time.Now().Unix(), Message: msg}
	body, err := json.Marshal(req)
	if err != nil {
		return &Error{Code: CodeInvalidArgument, Err: err}
	}

	pub := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    req.ID,
		Type:         string(msg.Kind),
		Timestamp:    time.Now(),
		Body:         body,
	}
	if msg.TTL > 0 {
		// звонок через минуту уже никому не нужен
		pub.Expiration = fmt.Sprint(msg.TTL.Milliseconds())
	}

	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, g.exchange, routingKeyFor(g.routingKey, msg.Kind), false, false, pub)
	if err != nil {
		return &Error{Code: CodeUnavailable, Err: err}
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return &Error{Code: CodeUnavailable, Err: err}
	}
	if !acked {
		return &Error{Code: CodeBrokerNack, Err: errors.New("broker nacked publish")}
	}

	g.logger.Debug("published push request", "id", req.ID, "type", msg.Kind, "exchange", g.exchange)
	return nil
}

func (g *AMQPGateway) Close() error {
	return g.conn.Close()
}

// routingKeyFor appends the kind so workers can bind chat and call queues separately.
func routingKeyFor(base string, kind Kind) string {
	if base == "" {
		base = "push"
	}
	return base + "." + string(kind)
}

const maxRetryDelay = 60 * time.Second

// dialWithRetry connects with exponential backoff and respects ctx cancellation.
func dialWithRetry(ctx context.Context, opts AMQPOptions, logger *slog.Logger) (*amqp091.Connection, error) {
	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := amqp091.Dial(opts.URL)
		if err == nil {
			if i > 1 {
				logger.Info("rabbit connected", slog.Int("attempt", i))
			}
			return conn, nil
		}
		lastErr = err
		if i == attempts {
			break
		}

		sleep := delay * time.Duration(math.Pow(2, float64(i-1)))
		if sleep > maxRetryDelay {
			sleep = maxRetryDelay
		}
		logger.Warn("rabbit dial failed",
			slog.Int("attempt", i),
			slog.Duration("sleep", sleep),
			slog.Any("err", err),
		)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("connect to rabbitmq after %d attempts: %w", attempts, lastErr)
}
