package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-social/story_layer/internal/logging"
)

func TestAuditLogBounded(t *testing.T) {
	log := NewAuditLog(3, nil)
	for i := 0; i < 5; i++ {
		log.add(AuditEntry{Path: "/stories", Method: "POST", Status: 200 + i})
	}

	entries := log.list()
	require.Len(t, entries, 3)
	assert.Equal(t, 202, entries[0].Status)
	assert.Equal(t, 204, entries[2].Status)
}

func TestAuditLogListLimit(t *testing.T) {
	log := NewAuditLog(10, nil)
	for i := 0; i < 6; i++ {
		log.add(AuditEntry{Path: "/stories/" + strconv.Itoa(i), Method: "DELETE", Status: 204})
	}

	assert.Len(t, log.listLimit(2), 2)
	assert.Equal(t, "/stories/5", log.listLimit(2)[1].Path)

	// Zero and oversized limits fall back to the configured maximum.
	assert.Len(t, log.listLimit(0), 6)
	assert.Len(t, log.listLimit(100), 6)
}

func TestWrapWithAuditRecordsMutations(t *testing.T) {
	log := NewAuditLog(10, nil)
	handler := WrapWithAudit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}), log)

	get := httptest.NewRequest(http.MethodGet, "/stories/me", nil)
	handler.ServeHTTP(httptest.NewRecorder(), get)
	assert.Empty(t, log.list(), "read requests are not audited")

	post := httptest.NewRequest(http.MethodPost, "/stories", nil)
	ctx := context.WithValue(post.Context(), logging.UserIDKey, "user-1")
	ctx = context.WithValue(ctx, logging.RoleKey, "member")
	handler.ServeHTTP(httptest.NewRecorder(), post.WithContext(ctx))

	entries := log.list()
	require.Len(t, entries, 1)
	assert.Equal(t, "user-1", entries[0].User)
	assert.Equal(t, "member", entries[0].Role)
	assert.Equal(t, http.MethodPost, entries[0].Method)
	assert.Equal(t, http.StatusCreated, entries[0].Status)
	assert.False(t, entries[0].Time.IsZero())
}

func TestFileAuditSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewFileAuditSink(path)
	require.NoError(t, err)
	require.NotNil(t, sink)

	log := NewAuditLog(10, sink)
	log.add(AuditEntry{User: "user-1", Path: "/credits/topup", Method: "POST", Status: 201})
	log.add(AuditEntry{User: "user-2", Path: "/stories", Method: "POST", Status: 409})

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []AuditEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry AuditEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		lines = append(lines, entry)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)
	assert.Equal(t, "/credits/topup", lines[0].Path)
	assert.Equal(t, 409, lines[1].Status)
}

func TestFileAuditSinkEmptyPath(t *testing.T) {
	sink, err := NewFileAuditSink("")
	require.NoError(t, err)
	assert.Nil(t, sink)

	// A nil sink is safe to write to.
	assert.NoError(t, sink.Write(AuditEntry{Path: "/stories"}))
}
