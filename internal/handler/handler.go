// Package handler is the broker-facing edge of the worker: it validates
// incoming payloads, applies the per-user rate limit, shields the use case
// behind a circuit breaker, and turns the outcome into an ack/nack
// decision for the transport.
package handler

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/linguamatch/match-worker/internal/metrics"
	"github.com/linguamatch/match-worker/internal/request"
	"github.com/linguamatch/match-worker/internal/resilience"
	"github.com/linguamatch/match-worker/internal/usecase"
)

// Decision tells the transport what to do with the delivery.
type Decision int

const (
	// Ack removes the message from the queue.
	Ack Decision = iota
	// Nack requests redelivery after the broker's backoff.
	Nack
)

// Processor runs one request through the state machine.
type Processor interface {
	Execute(ctx context.Context, req request.Request) (usecase.Result, error)
}

// Handler processes match-request deliveries.
type Handler struct {
	process Processor
	limiter *resilience.RateLimiter
	breaker *resilience.CircuitBreaker
}

// New creates a handler around the process-request use case.
func New(process Processor, limiter *resilience.RateLimiter, breaker *resilience.CircuitBreaker) *Handler {
	return &Handler{process: process, limiter: limiter, breaker: breaker}
}

// Handle decides the fate of one delivery. Invalid payloads are poison:
// they are acked and dropped so they cannot wedge the queue.
func (h *Handler) Handle(ctx context.Context, data []byte) Decision {
	start := time.Now()
	defer func() {
		metrics.ProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	req, err := request.Decode(data)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("poison").Inc()
		metrics.RequestsTotal.WithLabelValues("poison").Inc()
		log.Printf("[handler] dropping poison message: %v", err)
		return Ack
	}

	if !h.limiter.Allow(strconv.FormatInt(req.UserID, 10)) {
		metrics.ErrorsTotal.WithLabelValues("rate_limited").Inc()
		log.Printf("[handler] rate limited user %d", req.UserID)
		return Nack
	}

	var result usecase.Result
	err = h.breaker.Call(func() error {
		var execErr error
		result, execErr = h.process.Execute(ctx, req)
		return execErr
	})

	if errors.Is(err, resilience.ErrCircuitOpen) {
		metrics.ErrorsTotal.WithLabelValues("circuit_open").Inc()
		log.Printf("[handler] circuit open, rejecting request for user %d", req.UserID)
		return Nack
	}
	if err != nil || result == usecase.ResultFailed {
		metrics.RequestsTotal.WithLabelValues("failed").Inc()
		log.Printf("[handler] request for user %d failed: %v", req.UserID, err)
		return Nack
	}

	metrics.RequestsTotal.WithLabelValues("handled").Inc()
	return Ack
}
