//go:build !windows && !plan9

package audit

import (
	"encoding/json"
	"fmt"
	"log/syslog"
	"time"
)

var _ Logger = (*SyslogLogger)(nil)

type SyslogOptions struct {
	Network  string `json:"network"`  // "tcp", "udp", "" for local
	Address  string `json:"address"`  // "localhost:514"
	Priority int    `json:"priority"` // syslog.LOG_INFO, etc.
	Tag      string `json:"tag"`
}

// SyslogLogger forwards audit events to syslog. Query is not supported:
// syslog is write-only from this side.
type SyslogLogger struct {
	syslogOpts SyslogOptions
	writer     *syslog.Writer
}

// NewSyslogLogger creates a syslog audit logger.
func NewSyslogLogger(config *Config) (*SyslogLogger, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	var syslogOpts SyslogOptions
	if err := parseOptions(config.Options, &syslogOpts); err != nil {
		return nil, fmt.Errorf("invalid syslog logger options: %w", err)
	}
	if syslogOpts.Priority == 0 {
		syslogOpts.Priority = int(syslog.LOG_INFO | syslog.LOG_USER)
	}
	if syslogOpts.Tag == "" {
		syslogOpts.Tag = "keyringstore-audit"
	}

	var writer *syslog.Writer
	var err error
	if syslogOpts.Network != "" && syslogOpts.Address != "" {
		writer, err = syslog.Dial(syslogOpts.Network, syslogOpts.Address,
			syslog.Priority(syslogOpts.Priority), syslogOpts.Tag)
	} else {
		writer, err = syslog.New(syslog.Priority(syslogOpts.Priority), syslogOpts.Tag)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create syslog writer: %w", err)
	}

	return &SyslogLogger{syslogOpts: syslogOpts, writer: writer}, nil
}

func (sl *SyslogLogger) Log(action string, success bool, metadata map[string]interface{}) error {
	event := Event{
		ID:        generateEventID(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		Success:   success,
		Metadata:  metadata,
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize audit event: %w", err)
	}

	if success {
		return sl.writer.Info(string(eventJSON))
	}
	return sl.writer.Warning(string(eventJSON))
}

func (sl *SyslogLogger) Query(options QueryOptions) (QueryResult, error) {
	return QueryResult{}, fmt.Errorf("syslog audit logs cannot be queried")
}

func (sl *SyslogLogger) Close() error {
	return sl.writer.Close()
}
