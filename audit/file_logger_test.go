package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileLogger(t *testing.T) *FileLogger {
	t.Helper()
	logger, err := NewFileLogger(&Config{
		Enabled: true,
		Type:    FileAuditType,
		Options: map[string]interface{}{
			"file_path": filepath.Join(t.TempDir(), "audit.jsonl"),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })
	return logger
}

func TestFileLoggerLogAndQuery(t *testing.T) {
	logger := newTestFileLogger(t)

	require.NoError(t, logger.Log("SET_SECRET_INITIATED", true, map[string]interface{}{
		"request_id": "req-1",
		"service":    "svc",
		"user":       "alice",
	}))
	require.NoError(t, logger.Log("SET_SECRET_COMPLETED", true, map[string]interface{}{
		"request_id":  "req-1",
		"service":     "svc",
		"user":        "alice",
		"duration_ms": int64(3),
	}))
	require.NoError(t, logger.Log("GET_SECRET_FAILED", false, map[string]interface{}{
		"request_id":     "req-2",
		"service":        "other",
		"user":           "bob",
		"failure_reason": "platform failure: boom",
	}))

	result, err := logger.Query(QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalCount)
	assert.Len(t, result.Events, 3)

	// Well-known metadata is lifted into event fields.
	byService, err := logger.Query(QueryOptions{Service: "svc"})
	require.NoError(t, err)
	require.Len(t, byService.Events, 2)
	assert.Equal(t, "alice", byService.Events[0].User)
	assert.Equal(t, "req-1", byService.Events[0].RequestID)

	failures := false
	result, err = logger.Query(QueryOptions{Success: &failures})
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "GET_SECRET_FAILED", result.Events[0].Action)
}

func TestFileLoggerQueryPagination(t *testing.T) {
	logger := newTestFileLogger(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, logger.Log("DELETE_CREDENTIAL_COMPLETED", true, nil))
	}

	result, err := logger.Query(QueryOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, result.Events, 2)
	assert.True(t, result.HasMore)
	assert.Equal(t, 5, result.Filtered)

	result, err = logger.Query(QueryOptions{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, result.Events, 1)
	assert.False(t, result.HasMore)
}

func TestFileLoggerQueryTimeWindow(t *testing.T) {
	logger := newTestFileLogger(t)
	require.NoError(t, logger.Log("SET_SECRET_COMPLETED", true, nil))

	future := time.Now().Add(time.Hour)
	result, err := logger.Query(QueryOptions{Since: &future})
	require.NoError(t, err)
	assert.Empty(t, result.Events)

	past := time.Now().Add(-time.Hour)
	result, err = logger.Query(QueryOptions{Since: &past})
	require.NoError(t, err)
	assert.Len(t, result.Events, 1)
}

func TestNewLoggerFactory(t *testing.T) {
	logger, err := NewLogger(nil)
	require.NoError(t, err)
	assert.IsType(t, &NoOpLogger{}, logger)

	logger, err = NewLogger(&Config{Enabled: false, Type: FileAuditType})
	require.NoError(t, err)
	assert.IsType(t, &NoOpLogger{}, logger)

	_, err = NewLogger(&Config{Enabled: true, Type: "bogus"})
	assert.Error(t, err)

	_, err = NewLogger(&Config{Enabled: true, Type: FileAuditType})
	assert.Error(t, err, "file logger requires file_path")
}
