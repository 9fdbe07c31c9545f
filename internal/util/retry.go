package util

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts int           // Maximum number of attempts (including the first)
	InitialWait time.Duration // Initial wait duration (doubled each retry up to MaxWait)
	MaxWait     time.Duration // Maximum wait duration between retries

	// ShouldRetry decides whether a failed attempt is worth repeating.
	// Nil means IsRetryableError.
	ShouldRetry func(error) bool

	// Sleep is used between attempts; nil means time.Sleep
	Sleep func(time.Duration)
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     5 * time.Second,
	}
}

// LockRetryConfig returns the retry policy used for moves that hit a locked
// file: a fixed delay (InitialWait == MaxWait) and only contention errors retried.
func LockRetryConfig(attempts int, delay time.Duration) *RetryConfig {
	if attempts <= 0 {
		attempts = 3
	}
	if delay < 0 {
		delay = 0
	}
	return &RetryConfig{
		MaxAttempts: attempts,
		InitialWait: delay,
		MaxWait:     delay,
		ShouldRetry: IsLockContention,
	}
}

// IsRetryableError checks if an error is worth retrying
// Returns true for transient network/filesystem errors and lock contention
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if IsLockContention(err) {
		return true
	}

	var pathError *os.PathError
	var linkError *os.LinkError
	var syscallError syscall.Errno

	if errors.As(err, &pathError) {
		err = pathError.Err
	}
	if errors.As(err, &linkError) {
		err = linkError.Err
	}

	if errors.As(err, &syscallError) {
		switch syscallError {
		case syscall.EAGAIN,
			syscall.ETIMEDOUT,
			syscall.ECONNRESET,
			syscall.ECONNABORTED,
			syscall.ENETDOWN,
			syscall.ENETUNREACH,
			syscall.EHOSTUNREACH,
			syscall.EIO:
			return true
		}
	}

	errMsg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"timed out",
		"connection reset",
		"broken pipe",
		"network is unreachable",
		"resource temporarily unavailable",
		"i/o error",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

// RetryWithBackoff executes a function with exponential backoff retry logic
// Returns the result of the function or the final error after all retries exhausted
func RetryWithBackoff[T any](cfg *RetryConfig, operation func() (T, error), operationName string) (T, error) {
	var result T
	var err error

	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsRetryableError
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	waitDuration := cfg.InitialWait

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err = operation()
		if err == nil {
			if attempt > 1 {
				DebugLog("Retry: %s succeeded on attempt %d/%d", operationName, attempt, maxAttempts)
			}
			return result, nil
		}

		if !shouldRetry(err) {
			DebugLog("Retry: %s failed with non-retryable error: %v", operationName, err)
			return result, err
		}

		if attempt == maxAttempts {
			WarnLog("Retry: %s failed after %d attempts: %v", operationName, maxAttempts, err)
			return result, fmt.Errorf("max retries exceeded (%d attempts): %w", maxAttempts, err)
		}

		DebugLog("Retry: %s failed (attempt %d/%d), retrying in %v: %v",
			operationName, attempt, maxAttempts, waitDuration, err)

		sleep(waitDuration)

		waitDuration *= 2
		if waitDuration > cfg.MaxWait {
			waitDuration = cfg.MaxWait
		}
	}

	return result, fmt.Errorf("unexpected retry loop exit: %w", err)
}

// Retry executes a function with retry logic (no return value)
func Retry(cfg *RetryConfig, operation func() error, operationName string) error {
	_, err := RetryWithBackoff(cfg, func() (struct{}, error) {
		return struct{}{}, operation()
	}, operationName)
	return err
}
