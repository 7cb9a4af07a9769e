package healthcheck

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Engine runs registered checkers concurrently.
type Engine struct {
	checkers map[string]Checker
	timeout  time.Duration
	logger   *zap.Logger
	mu       sync.RWMutex
}

// NewEngine creates an engine. Each check is bounded by timeout
// (default 2s).
func NewEngine(logger *zap.Logger, timeout time.Duration) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Engine{
		checkers: make(map[string]Checker),
		timeout:  timeout,
		logger:   logger.With(zap.String("component", "healthcheck")),
	}
}

// Register adds or replaces a checker by name.
func (e *Engine) Register(checker Checker) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.checkers[checker.Name()] = checker
	e.logger.Debug("Registered health checker", zap.String("checker", checker.Name()))
}

// Unregister removes a checker.
func (e *Engine) Unregister(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.checkers, name)
}

// CheckAll runs every checker and aggregates the results. A checker that
// panics or returns nil is reported unhealthy.
func (e *Engine) CheckAll(ctx context.Context) *AggregatedResult {
	e.mu.RLock()
	checkers := make([]Checker, 0, len(e.checkers))
	for _, c := range e.checkers {
		checkers = append(checkers, c)
	}
	e.mu.RUnlock()

	results := make(map[string]*Result, len(checkers))
	var wg sync.WaitGroup
	var resultsMu sync.Mutex

	for _, checker := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()

			result := e.run(ctx, c)
			resultsMu.Lock()
			results[c.Name()] = result
			resultsMu.Unlock()
		}(checker)
	}
	wg.Wait()

	return &AggregatedResult{
		OverallStatus: DetermineOverallStatus(results),
		Components:    results,
		Timestamp:     time.Now().UTC(),
	}
}

func (e *Engine) run(ctx context.Context, c Checker) (result *Result) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("Health checker panicked", zap.String("checker", c.Name()), zap.Any("panic", p))
			result = NewResult(c.Name(), StatusUnhealthy, fmt.Sprintf("checker panicked: %v", p))
		}
		result.Duration = time.Since(start)
	}()

	result = c.Check(ctx)
	if result == nil {
		result = NewResult(c.Name(), StatusUnhealthy, "checker returned no result")
	}
	return result
}
