package dofalinesdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRoutesAndHeaders(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.RequestURI())
		assert.Equal(t, "marta", r.Header.Get("X-Actor-Id"))
		switch r.URL.Path {
		case "/v0/records":
			var rec Record
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
			rec.ID = "r1"
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(rec)
		case "/v0/tasks":
			_, _ = w.Write([]byte(`{"items":[{"id":"a1","text":"x","status":"delayed","parentRecordId":"r1"}],"stats":{"total":1,"delayed":1}}`))
		case "/v0/records/r1":
			w.WriteHeader(http.StatusNoContent)
		case "/v0/export/records.csv":
			w.Header().Set("Content-Disposition", `attachment; filename="DOFA_SAAMTOWAGE_2024-06-01.csv"`)
			_, _ = w.Write([]byte("\ufeffPaís;Eje\n"))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"not_found","message":"not found"}}`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	c.ActorID = "marta"
	ctx := context.Background()

	rec, err := c.CreateRecord(ctx, Record{Country: "Panamá", Type: "F", Factor: "x", Impact: 2})
	require.NoError(t, err)
	assert.Equal(t, "r1", rec.ID)

	list, err := c.Tasks(ctx, "delayed", "")
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "r1", list.Items[0].ParentRecordID)
	assert.Equal(t, 1, list.Stats.Delayed)

	require.NoError(t, c.DeleteRecord(ctx, "r1"))

	data, name, err := c.ExportRecordsCSV(ctx)
	require.NoError(t, err)
	assert.Equal(t, "DOFA_SAAMTOWAGE_2024-06-01.csv", name)
	assert.Contains(t, string(data), "País")

	_, err = c.GetRecord(ctx, "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	assert.Equal(t, []string{
		"POST /v0/records",
		"GET /v0/tasks?status=delayed",
		"DELETE /v0/records/r1",
		"GET /v0/export/records.csv",
		"GET /v0/records/missing",
	}, seen)
}
