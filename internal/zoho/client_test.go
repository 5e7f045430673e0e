package zoho

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// staticTokens satisfies httpclient.TokenSource with a fixed token.
type staticTokens struct {
	token string
}

func (s *staticTokens) Token(ctx context.Context) (string, error)   { return s.token, nil }
func (s *staticTokens) Refresh(ctx context.Context) (string, error) { return s.token, nil }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(zap.NewNop(), nil, &staticTokens{token: "test-token"}, server.URL, server.URL, 5*time.Second)
}

func TestClient_CreateBulkRead(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/crm/bulk/v8/read", r.URL.Path)
		assert.Equal(t, "Zoho-oauthtoken test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req BulkReadRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)
		assert.Equal(t, "Tasks", req.Query.Module.APIName)
		assert.Equal(t, []string{"id"}, req.Query.Fields)
		require.NotNil(t, req.Query.Criteria)
		assert.Equal(t, "Due_Date", req.Query.Criteria.Field.APIName)
		assert.Equal(t, "less_than", req.Query.Criteria.Comparator)
		assert.Equal(t, 1, req.Query.Page)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":[{
			"status":"success",
			"code":"ADDED_SUCCESSFULLY",
			"message":"Added successfully.",
			"details":{"id":"482000000167043","operation":"read","state":"ADDED"}
		}]}`))
	})

	details, err := client.CreateBulkRead(context.Background(), BulkReadQuery{
		Module: ModuleRef{APIName: "Tasks"},
		Fields: []string{"id"},
		Criteria: &Criteria{
			Field:      FieldRef{APIName: "Due_Date"},
			Comparator: "less_than",
			Value:      "2025-05-01",
		},
		Page: 1,
	})

	require.NoError(t, err)
	assert.Equal(t, "482000000167043", details.ID)
	assert.Equal(t, "ADDED", details.State)
}

func TestClient_CreateBulkRead_OmitsEmptyCriteria(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]map[string]any
		err := json.NewDecoder(r.Body).Decode(&raw)
		require.NoError(t, err)
		assert.NotContains(t, raw["query"], "criteria")
		assert.NotContains(t, raw["query"], "page")

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":[{"details":{"id":"482000000167044","operation":"read","state":"ADDED"}}]}`))
	})

	_, err := client.CreateBulkRead(context.Background(), BulkReadQuery{
		Module: ModuleRef{APIName: "Leads"},
		Fields: []string{"id"},
	})
	require.NoError(t, err)
}

func TestClient_CreateBulkRead_EmptyDataArray(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	_, err := client.CreateBulkRead(context.Background(), BulkReadQuery{Module: ModuleRef{APIName: "Tasks"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty data array")
}

func TestClient_CreateBulkRead_MissingJobID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":[{"status":"error","code":"INVALID_DATA","message":"invalid module","details":{}}]}`))
	})

	_, err := client.CreateBulkRead(context.Background(), BulkReadQuery{Module: ModuleRef{APIName: "Nope"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no job id")
	assert.Contains(t, err.Error(), "INVALID_DATA")
}

func TestClient_GetBulkRead(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/crm/bulk/v8/read/482000000167043", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{
			"id":"482000000167043",
			"operation":"read",
			"state":"COMPLETED",
			"query":{"module":{"api_name":"Tasks"},"page":1},
			"result":{
				"page":1,
				"count":185000,
				"per_page":200000,
				"download_url":"/crm/bulk/v8/read/482000000167043/result",
				"more_records":false
			}
		}]}`))
	})

	job, err := client.GetBulkRead(context.Background(), "482000000167043")

	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", job.State)
	require.NotNil(t, job.Result)
	assert.Equal(t, 185000, job.Result.Count)
	assert.Equal(t, "/crm/bulk/v8/read/482000000167043/result", job.Result.DownloadURL)
	assert.False(t, job.Result.MoreRecords)
	require.NotNil(t, job.Query)
	assert.Equal(t, "Tasks", job.Query.Module.APIName)
}

func TestClient_GetBulkRead_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"INVALID_REQUEST","message":"the given id seems to be invalid","status":"error"}`))
	})

	_, err := client.GetBulkRead(context.Background(), "bogus")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "zoho returned 404")
	assert.Contains(t, err.Error(), "the given id seems to be invalid")
}

func TestClient_ListFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/crm/v8/settings/fields", r.URL.Path)
		assert.Equal(t, "Tasks", r.URL.Query().Get("module"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"fields":[
			{"api_name":"Subject","data_type":"text","custom_field":false,"system_mandatory":true},
			{"api_name":"Due_Date","data_type":"date","custom_field":false,"system_mandatory":false},
			{"api_name":"Priority","data_type":"picklist","custom_field":false,"system_mandatory":false}
		]}`))
	})

	fields, err := client.ListFields(context.Background(), "Tasks")

	require.NoError(t, err)
	require.Len(t, fields, 3)
	assert.Equal(t, "Subject", fields[0].APIName)
	assert.Equal(t, "text", fields[0].DataType)
	assert.True(t, fields[0].SystemMandatory)
	assert.Equal(t, "picklist", fields[2].DataType)
}

func TestClient_DeleteRecords(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/crm/v8/Tasks", r.URL.Path)
		assert.Equal(t, "111,222,333", r.URL.Query().Get("ids"))
		assert.Equal(t, "true", r.URL.Query().Get("wf_trigger"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"code":"SUCCESS","status":"success","message":"record deleted","details":{"id":"111"}},
			{"code":"SUCCESS","status":"success","message":"record deleted","details":{"id":"222"}},
			{"code":"SUCCESS","status":"success","message":"record deleted","details":{"id":"333"}}
		]}`))
	})

	results, err := client.DeleteRecords(context.Background(), "Tasks", []string{"111", "222", "333"}, true)

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "SUCCESS", results[0].Code)
	assert.Equal(t, "111", results[0].Details.ID)
}

func TestClient_DeleteRecords_NoIDs(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := client.DeleteRecords(context.Background(), "Tasks", nil, true)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ids")
	assert.False(t, called)
}

func TestClient_DeleteRecords_WorkflowsDisabled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "false", r.URL.Query().Get("wf_trigger"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"code":"SUCCESS","status":"success","details":{"id":"111"}}]}`))
	})

	_, err := client.DeleteRecords(context.Background(), "Tasks", []string{"111"}, false)
	require.NoError(t, err)
}

func TestClient_DownloadResult(t *testing.T) {
	archive := []byte("PK\x03\x04 not really a zip but close enough")
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/crm/bulk/v8/read/482000000167043":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":[{
				"id":"482000000167043",
				"state":"COMPLETED",
				"result":{"page":3,"count":42,"download_url":"/crm/bulk/v8/read/482000000167043/result","more_records":true,"next_page_token":"tok-4"}
			}]}`))
		case "/crm/bulk/v8/read/482000000167043/result":
			assert.Equal(t, "Zoho-oauthtoken test-token", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/zip")
			_, _ = w.Write(archive)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	prefix := filepath.Join(t.TempDir(), "tasks_export")
	result, path, err := client.DownloadResult(context.Background(), "482000000167043", prefix)

	require.NoError(t, err)
	assert.Equal(t, prefix+"_page_3.zip", path)
	assert.Equal(t, 42, result.Count)
	assert.True(t, result.MoreRecords)
	assert.Equal(t, "tok-4", result.NextPageToken)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, archive, written)
}

func TestClient_DownloadResult_NotCompleted(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"482000000167043","state":"IN PROGRESS"}]}`))
	})

	_, _, err := client.DownloadResult(context.Background(), "482000000167043", filepath.Join(t.TempDir(), "out"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not downloadable")
	assert.Contains(t, err.Error(), "IN PROGRESS")
}

func TestClient_DownloadResult_MissingURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"482000000167043","state":"COMPLETED"}]}`))
	})

	_, _, err := client.DownloadResult(context.Background(), "482000000167043", filepath.Join(t.TempDir(), "out"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "download_url")
}

func TestStateHelpers(t *testing.T) {
	assert.True(t, IsTerminalState("COMPLETED"))
	assert.True(t, IsTerminalState("completed"))
	assert.True(t, IsTerminalState(" FAILURE "))
	assert.True(t, IsTerminalState("FAILED"))
	assert.False(t, IsTerminalState("IN PROGRESS"))
	assert.False(t, IsTerminalState("QUEUED"))

	assert.True(t, IsFailureState("FAILURE"))
	assert.True(t, IsFailureState("failed"))
	assert.False(t, IsFailureState("COMPLETED"))
}
