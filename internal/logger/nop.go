package logger

// NoOpLogger discards everything. Used by tests.
type NoOpLogger struct{}

// NewNop returns a logger that does nothing.
func NewNop() Logger { return &NoOpLogger{} }

func (l *NoOpLogger) Debug(string, ...Field) {}
func (l *NoOpLogger) Info(string, ...Field)  {}
func (l *NoOpLogger) Warn(string, ...Field)  {}
func (l *NoOpLogger) Error(string, ...Field) {}
func (l *NoOpLogger) With(...Field) Logger   { return l }
func (l *NoOpLogger) Sync() error            { return nil }
