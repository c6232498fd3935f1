// internal/services/executor.go
package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/imi-licensing/internal/database"
	"github.com/javajoker/imi-licensing/internal/metrics"
)

type operationKey struct{}

type operationState struct {
	name     string
	onCommit []func()
}

// Executor runs state-mutating operations one at a time, each in its own database
// transaction. A nested entry from inside a running operation fails with
// ErrReentrantCall; every entry fails with ErrProtocolPaused while paused.
type Executor struct {
	db     *gorm.DB
	mu     sync.Mutex
	paused atomic.Bool
}

func NewExecutor(db *gorm.DB) *Executor {
	return &Executor{db: db}
}

func (e *Executor) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if running, ok := ctx.Value(operationKey{}).(*operationState); ok {
		return fmt.Errorf("%s inside %s: %w", operation, running.name, ErrReentrantCall)
	}
	if e.paused.Load() {
		return fmt.Errorf("%s: %w", operation, ErrProtocolPaused)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	state := &operationState{name: operation}
	start := time.Now()
	err := database.RunInTransaction(context.WithValue(ctx, operationKey{}, state), e.db, fn)
	duration := time.Since(start)
	metrics.ObserveOperation(operation, duration, err)

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"operation": operation,
			"kind":      KindOf(err),
			"duration":  duration.Milliseconds(),
		}).WithError(err).Warn("Operation reverted")
		return err
	}

	for _, hook := range state.onCommit {
		hook()
	}
	logrus.WithFields(logrus.Fields{
		"operation": operation,
		"duration":  duration.Milliseconds(),
	}).Info("Operation committed")
	return nil
}

func (e *Executor) Pause() {
	e.paused.Store(true)
}

func (e *Executor) Unpause() {
	e.paused.Store(false)
}

func (e *Executor) Paused() bool {
	return e.paused.Load()
}

// onCommit defers fn until the running operation commits; outside an operation it
// runs immediately.
func onCommit(ctx context.Context, fn func()) {
	if state, ok := ctx.Value(operationKey{}).(*operationState); ok {
		state.onCommit = append(state.onCommit, fn)
		return
	}
	fn()
}
