package redub

import "time"

// WithClassifier replaces content sniffing with fn.
func WithClassifier(fn func(string) (Kind, error)) Option { return withClassifier(fn) }

// WithNow sets the pipeline clock.
func WithNow(fn func() time.Time) Option { return withNow(fn) }

// WithBatchClock sets the batch clock.
func WithBatchClock(fn func() time.Time) BatchOption { return withBatchClock(fn) }
