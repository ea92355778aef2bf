package logger

// NopLogger discards everything. Used in tests and as a default when
// no logger is wired.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (NopLogger) Debug(module, message string, details map[string]interface{}) {}
func (NopLogger) Info(module, message string, details map[string]interface{})  {}
func (NopLogger) Warn(module, message string, details map[string]interface{})  {}
func (NopLogger) Error(module, message string, details map[string]interface{}) {}
func (NopLogger) Sync() error                                                  { return nil }
func (NopLogger) GetLogs(level string, limit, offset int) ([]LogEntry, error) {
	return []LogEntry{}, nil
}
