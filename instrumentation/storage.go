package instrumentation

import (
	"context"
	"time"
)

// StartStorageOperation opens a "storage.<operation>" span and returns a
// completion func that ends it and records the operation metrics. A nil
// Instrumentation yields a no-op completion func.
//
//	ctx, done := s.inst.StartStorageOperation(ctx, "memory", "get_client")
//	defer func() { done(err) }()
func (i *Instrumentation) StartStorageOperation(ctx context.Context, storageType, operation string) (context.Context, func(error)) {
	if i == nil {
		return ctx, func(error) {}
	}
	start := time.Now()
	ctx, span := i.Tracer("storage").Start(ctx, "storage."+operation)
	AddStorageAttributes(span, operation, storageType)
	return ctx, func(err error) {
		defer span.End()
		result := "success"
		if err != nil {
			result = "error"
			RecordError(span, err)
		} else {
			SetSpanSuccess(span)
		}
		i.metrics.RecordStorageOperation(ctx, operation, result, float64(time.Since(start).Microseconds())/1000)
	}
}
