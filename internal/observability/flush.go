package observability

import "go.uber.org/zap"

// FlushTelemetry drains buffered log output during shutdown. Sync errors on
// stderr are expected on some platforms and are ignored.
func FlushTelemetry(logger *zap.Logger) {
	if logger == nil {
		return
	}
	_ = logger.Sync()
}
