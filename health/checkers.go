package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/glimte/amqppool/internal/rabbitmq"
	"github.com/glimte/amqppool/pool"
)

// ConnectionPool is the part of a connection pool the checker needs.
type ConnectionPool interface {
	Get(ctx context.Context) (*pool.Object[*rabbitmq.Connection], error)
	Status() pool.Status
}

// PoolChecker checks that a pooled broker connection can open a channel
type PoolChecker struct {
	name   string
	pool   ConnectionPool
	logger *slog.Logger
}

// NewPoolChecker creates a new connection pool health checker
func NewPoolChecker(name string, p ConnectionPool, logger *slog.Logger) *PoolChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &PoolChecker{
		name:   name,
		pool:   p,
		logger: logger,
	}
}

func (c *PoolChecker) Name() string {
	return c.name
}

func (c *PoolChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]interface{}),
	}

	status := c.pool.Status()
	result.Details["pool_size"] = status.Size
	result.Details["pool_available"] = status.Available
	result.Details["pool_max_size"] = status.MaxSize
	result.Details["pool_waiting"] = status.Waiting

	obj, err := c.pool.Get(ctx)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = "Failed to get connection from pool"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}
	defer obj.Release()

	conn := obj.Value()
	result.Details["connection_id"] = conn.ID()
	result.Details["connection_state"] = conn.State().String()

	ch, err := conn.Channel()
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = "Failed to create channel"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}
	defer ch.Close()

	err = ch.ExchangeDeclarePassive(
		"amq.direct", // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		result.Status = StatusDegraded
		result.Message = "Exchange check failed"
		result.Error = err.Error()
	} else {
		result.Status = StatusHealthy
		result.Message = "Connection pool is healthy"
	}

	result.Duration = time.Since(start)
	result.Details["response_time_ms"] = result.Duration.Milliseconds()
	c.logger.Debug("pool health check", "name", c.name, "status", result.Status)

	return result
}

// ComponentChecker allows checking custom components
type ComponentChecker struct {
	name    string
	checker func(ctx context.Context) (Status, string, map[string]interface{}, error)
}

// NewComponentChecker creates a checker for custom components
func NewComponentChecker(name string, checker func(ctx context.Context) (Status, string, map[string]interface{}, error)) *ComponentChecker {
	return &ComponentChecker{
		name:    name,
		checker: checker,
	}
}

func (c *ComponentChecker) Name() string {
	return c.name
}

func (c *ComponentChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]interface{}),
	}

	status, message, details, err := c.checker(ctx)

	result.Status = status
	result.Message = message
	if details != nil {
		result.Details = details
	}
	if err != nil {
		result.Error = err.Error()
	}
	result.Duration = time.Since(start)

	return result
}
