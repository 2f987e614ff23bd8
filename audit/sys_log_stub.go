//go:build windows || plan9

package audit

import "fmt"

// SyslogLogger is unavailable on platforms without syslog.
type SyslogLogger struct{}

func NewSyslogLogger(config *Config) (*SyslogLogger, error) {
	return nil, fmt.Errorf("syslog audit logging is not supported on this platform")
}

func (sl *SyslogLogger) Log(action string, success bool, metadata map[string]interface{}) error {
	return fmt.Errorf("syslog audit logging is not supported on this platform")
}

func (sl *SyslogLogger) Query(options QueryOptions) (QueryResult, error) {
	return QueryResult{}, fmt.Errorf("syslog audit logging is not supported on this platform")
}

func (sl *SyslogLogger) Close() error {
	return nil
}
