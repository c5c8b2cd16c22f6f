package async

import (
	"context"
	"fmt"
	"time"

	"github.com/gridhaven/haven/internal/logging"
	"github.com/gridhaven/haven/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Error codes for expected failure classes. Combinators never return a bare
// error for these; they surface as a failed Result instead.
const (
	CodeTimeout        = "TIMEOUT"
	CodeRetryExhausted = "RETRY_EXHAUSTED"
	CodeCancelled      = "CANCELLED"
	CodeOpFailed       = "OP_FAILED"
)

// ErrorInfo describes a failed operation
type ErrorInfo struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts,omitempty"`
	Err      error  `json:"-"`
}

// Error implements the error interface
func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying error for errors.Is/As
func (e *ErrorInfo) Unwrap() error {
	return e.Err
}

// Result is the tagged success-or-error return of every combinator.
// Exactly one of Data or Error is meaningful, selected by Success.
type Result[T any] struct {
	Success bool       `json:"success"`
	Data    T          `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// Ok builds a successful result
func Ok[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

// Fail builds a failed result
func Fail[T any](code, message string, err error) Result[T] {
	return Result[T]{Success: false, Error: &ErrorInfo{Code: code, Message: message, Err: err}}
}

// Operation is a cancellable unit of async work
type Operation[T any] func(ctx context.Context) (T, error)

// RetryConfig controls WithRetry backoff behavior
type RetryConfig struct {
	Retries           int
	RetryDelay        time.Duration
	BackoffMultiplier float64
}

// MonitorConfig configures ExecuteWithMonitoring
type MonitorConfig struct {
	Timeout           time.Duration
	Retries           int
	RetryDelay        time.Duration
	BackoffMultiplier float64
	OperationID       string
}

// WithTimeout races op against the deadline. The operation's context is
// cancelled when the deadline passes so well-behaved work actually stops;
// a result arriving after the deadline is discarded.
func WithTimeout[T any](ctx context.Context, op Operation[T], timeout time.Duration) Result[T] {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		data T
		err  error
	}

	done := make(chan outcome, 1)
	go func() {
		data, err := op(ctx)
		done <- outcome{data: data, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return Fail[T](CodeTimeout, fmt.Sprintf("operation timed out after %s", timeout), out.err)
			}
			return Fail[T](CodeOpFailed, out.err.Error(), out.err)
		}
		return Ok(out.data)
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return Fail[T](CodeTimeout, fmt.Sprintf("operation timed out after %s", timeout), ctx.Err())
		}
		return Fail[T](CodeCancelled, "operation cancelled", ctx.Err())
	}
}

// WithRetry invokes op until it succeeds or retries are exhausted, sleeping
// RetryDelay * BackoffMultiplier^attempt between attempts. The last error is
// returned wrapped with the attempt count.
func WithRetry[T any](ctx context.Context, op Operation[T], cfg RetryConfig) Result[T] {
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2
	}

	var lastErr error
	var attempts int
	maxAttempts := cfg.Retries + 1

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(cfg.RetryDelay, cfg.BackoffMultiplier, attempt-1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				res := Fail[T](CodeCancelled, "retry cancelled", ctx.Err())
				res.Error.Attempts = attempts
				return res
			}
		}

		data, err := op(ctx)
		attempts++
		if err == nil {
			return Ok(data)
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	res := Fail[T](CodeRetryExhausted,
		fmt.Sprintf("operation failed after %d attempts: %v", attempts, lastErr), lastErr)
	res.Error.Attempts = attempts
	return res
}

// backoffDelay computes the delay before retry number attempt (0-based),
// capped at one minute
func backoffDelay(base time.Duration, multiplier float64, attempt int) time.Duration {
	delay := float64(base)
	for i := 0; i < attempt; i++ {
		delay *= multiplier
	}
	if delay > float64(time.Minute) {
		return time.Minute
	}
	return time.Duration(delay)
}

// Parallel runs all ops honoring the concurrency limit. It succeeds only if
// every op succeeds; one failure marks the aggregate failed but already
// started siblings run to completion. Results keep op order.
func Parallel[T any](ctx context.Context, ops []Operation[T], concurrencyLimit int) Result[[]T] {
	if concurrencyLimit <= 0 {
		concurrencyLimit = len(ops)
	}
	if len(ops) == 0 {
		return Ok([]T{})
	}

	sem := semaphore.NewWeighted(int64(concurrencyLimit))
	results := make([]T, len(ops))
	errs := make([]error, len(ops))
	done := make(chan int, len(ops))

	for i, op := range ops {
		if err := sem.Acquire(ctx, 1); err != nil {
			errs[i] = err
			done <- i
			continue
		}
		go func(i int, op Operation[T]) {
			defer sem.Release(1)
			results[i], errs[i] = op(ctx)
			done <- i
		}(i, op)
	}

	for range ops {
		<-done
	}

	var failed int
	var firstErr error
	for _, err := range errs {
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if failed > 0 {
		res := Fail[[]T](CodeOpFailed,
			fmt.Sprintf("%d of %d parallel operations failed: %v", failed, len(ops), firstErr), firstErr)
		res.Data = results
		return res
	}
	return Ok(results)
}

// Sequential runs ops in order, stopping at the first failure. The returned
// data holds the results up to and including the failing op.
func Sequential[T any](ctx context.Context, ops []Operation[T]) Result[[]T] {
	results := make([]T, 0, len(ops))

	for i, op := range ops {
		if ctx.Err() != nil {
			res := Fail[[]T](CodeCancelled, "sequential run cancelled", ctx.Err())
			res.Data = results
			return res
		}

		data, err := op(ctx)
		results = append(results, data)
		if err != nil {
			res := Fail[[]T](CodeOpFailed,
				fmt.Sprintf("operation %d of %d failed: %v", i+1, len(ops), err), err)
			res.Data = results
			return res
		}
	}
	return Ok(results)
}

// ExecuteWithMonitoring composes timeout and retry around op with structured
// log lines keyed by name and operation id
func ExecuteWithMonitoring[T any](ctx context.Context, name string, op Operation[T], cfg MonitorConfig, logger *logging.SafeLogger) Result[T] {
	if logger == nil {
		logger = logging.Logger
	}
	log := logger.With(
		zap.String("operation", name),
		zap.String("operation_id", cfg.OperationID),
	)

	start := time.Now()
	log.Info("operation started")

	wrapped := op
	if cfg.Timeout > 0 {
		wrapped = func(ctx context.Context) (T, error) {
			res := WithTimeout(ctx, op, cfg.Timeout)
			if !res.Success {
				return res.Data, res.Error
			}
			return res.Data, nil
		}
	}

	result := WithRetry(ctx, wrapped, RetryConfig{
		Retries:           cfg.Retries,
		RetryDelay:        cfg.RetryDelay,
		BackoffMultiplier: cfg.BackoffMultiplier,
	})

	duration := time.Since(start)
	observability.OperationDuration.WithLabelValues(name).Observe(duration.Seconds())
	if result.Success {
		log.Info("operation completed", zap.Duration("duration", duration))
	} else {
		log.Error("operation failed",
			zap.Duration("duration", duration),
			zap.String("error_code", result.Error.Code),
			zap.Int("attempts", result.Error.Attempts),
			zap.Error(result.Error.Err))
	}

	return result
}
