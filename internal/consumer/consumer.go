package consumer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cookinbiz/affiliate-ledger/internal/config"
	"github.com/cookinbiz/affiliate-ledger/internal/logger"
	"github.com/cookinbiz/affiliate-ledger/internal/service"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultQueue    = "billing.events"
	defaultPrefetch = 16
	defaultWorkers  = 4
	reconnectDelay  = 5 * time.Second
	maxReconnectGap = time.Minute
	handleTimeout   = 30 * time.Second
)

// BillingEventHandler 账单事件入账
type BillingEventHandler interface {
	HandleBillingEvent(ctx context.Context, event service.BillingEvent) (*service.RecordResult, error)
}

type decision int

const (
	decisionAck decision = iota
	decisionDrop
	decisionRequeue
)

// Consumer RabbitMQ 账单事件消费者
type Consumer struct {
	cfg     config.ConsumerConfig
	handler BillingEventHandler

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	cancel  context.CancelFunc
	done    chan struct{}
}

// New 创建消费者，连接在 Start 时建立
func New(cfg config.ConsumerConfig, handler BillingEventHandler) (*Consumer, error) {
	if !cfg.Enabled {
		return nil, errors.New("consumer disabled")
	}
	if handler == nil {
		return nil, errors.New("billing handler is nil")
	}
	if strings.TrimSpace(cfg.Queue) == "" {
		cfg.Queue = defaultQueue
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = defaultPrefetch
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	return &Consumer{cfg: cfg, handler: handler}, nil
}

// Name 服务名称
func (c *Consumer) Name() string {
	return "billing-consumer"
}

// Start 持续消费直到停止，断线后按退避重连
func (c *Consumer) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()
	defer close(done)
	defer cancel()

	delay := reconnectDelay
	for {
		err := c.consume(runCtx)
		c.closeConnection()
		if runCtx.Err() != nil {
			return nil
		}
		logger.Warnw("consumer_connection_lost", "queue", c.cfg.Queue, "retry_in", delay.String(), "error", err)
		select {
		case <-runCtx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectGap {
			delay = maxReconnectGap
		}
	}
}

// Stop 停止消费并等待在途消息处理完成
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	conn, err := amqp.Dial(c.dsn())
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("consume: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()
	logger.Infow("consumer_connected", "host", c.cfg.Host, "queue", c.cfg.Queue, "workers", c.cfg.Workers)

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.work(ctx, msgs, workerID)
		}(i)
	}

	var result error
	select {
	case <-ctx.Done():
	case amqpErr := <-closed:
		if amqpErr != nil {
			result = amqpErr
		} else {
			result = errors.New("connection closed")
		}
	}
	// 关闭通道让 msgs 结束，worker 随之退出
	c.closeConnection()
	wg.Wait()
	return result
}

func (c *Consumer) work(ctx context.Context, msgs <-chan amqp.Delivery, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			switch c.process(ctx, msg.Body) {
			case decisionAck:
				_ = msg.Ack(false)
			case decisionDrop:
				_ = msg.Nack(false, false)
			case decisionRequeue:
				_ = msg.Nack(false, true)
			}
			logger.Debugw("consumer_message_done", "worker_id", workerID, "delivery_tag", msg.DeliveryTag)
		}
	}
}

// process 处理单条消息，返回应答方式
func (c *Consumer) process(ctx context.Context, body []byte) (result decision) {
	event, err := decodeBillingMessage(body)
	if err != nil {
		logger.Errorw("consumer_message_invalid", "error", err, "body", string(body))
		return decisionDrop
	}
	defer func() {
		// 费率配置损坏会触发 panic，消息转入死信等待人工处理
		if r := recover(); r != nil {
			logger.Errorw("consumer_message_panic", "invoice_id", event.InvoiceID, "panic", fmt.Sprint(r))
			result = decisionDrop
		}
	}()

	handleCtx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()
	record, err := c.handler.HandleBillingEvent(handleCtx, *event)
	if err != nil {
		if errors.Is(err, service.ErrBillingEventInvalid) {
			logger.Errorw("consumer_billing_event_rejected", "invoice_id", event.InvoiceID, "error", err)
			return decisionDrop
		}
		logger.Warnw("consumer_billing_event_failed",
			"subscription_id", event.SubscriptionID,
			"invoice_id", event.InvoiceID,
			"error", err,
		)
		return decisionRequeue
	}
	logger.Infow("consumer_billing_event_handled",
		"event_id", event.EventID,
		"invoice_id", event.InvoiceID,
		"commissions", len(record.Commissions),
		"skip_reason", record.SkipReason,
	)
	return decisionAck
}

func (c *Consumer) closeConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		_ = c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Consumer) dsn() string {
	host := strings.TrimSpace(c.cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.cfg.Port
	if port <= 0 {
		port = 5672
	}
	vhost := strings.TrimSpace(c.cfg.VHost)
	if vhost == "" {
		vhost = "/"
	}
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.cfg.User, c.cfg.Password),
		Host:   fmt.Sprintf("%s:%d", host, port),
		Path:   "/" + strings.TrimPrefix(vhost, "/"),
	}
	if vhost == "/" {
		u.Path = ""
	}
	return u.String()
}
