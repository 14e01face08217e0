package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudoservertools/sstbridge/internal/model"
	"github.com/sudoservertools/sstbridge/internal/storage"
)

func TestDecodeQueue(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantLen   int
		malformed bool
	}{
		{"empty bytes", "", 0, false},
		{"whitespace", "  \n", 0, false},
		{"no requests key", `{}`, 0, false},
		{"null requests", `{"requests":null}`, 0, false},
		{"one record", `{"requests":[{"requestId":"r1","processed":false,"itemClassName":"Apple"}]}`, 1, false},
		{"truncated", `{"requests":[{"requestId":"r1"`, 0, true},
		{"top-level array", `[]`, 0, true},
		{"wrong protocol type", `{"requests":[{"requestId":"r1","processed":"no"}]}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := DecodeQueue([]byte(tt.in))
			if tt.malformed {
				assert.True(t, errors.Is(err, ErrMalformed), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, q.Requests, tt.wantLen)
		})
	}
}

func TestDecodeResults_NormalizesLegacyStatus(t *testing.T) {
	f, err := DecodeResults([]byte(`{"requests":[{"requestId":"a","status":"completed","result":"ok","processedAt":"x"}]}`))
	require.NoError(t, err)
	require.Len(t, f.Requests, 1)
	assert.Equal(t, model.StatusSuccess, f.Requests[0].Status)
}

func TestEncodeQueue_Format(t *testing.T) {
	data, err := EncodeQueue(model.QueueFile{})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"requests\": []\n}\n", string(data))

	req, err := model.NewRequest("r1", map[string]any{"itemClassName": "Apple"}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	data, err = EncodeQueue(model.QueueFile{Requests: []model.Request{req}})
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "\n    {\n      \"requestId\": \"r1\","), string(data))

	var raw map[string][]map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "Apple", raw["requests"][0]["itemClassName"])
}

func TestReadQueue_ThroughStore(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemory()

	q, raw, err := ReadQueue(ctx, s, "item_grants.json")
	require.NoError(t, err, "missing file is an empty document")
	assert.Empty(t, q.Requests)
	assert.Nil(t, raw)

	require.NoError(t, s.Write(ctx, "item_grants.json", []byte("{broken")))
	_, raw, err = ReadQueue(ctx, s, "item_grants.json")
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, "{broken", string(raw))

	want := model.QueueFile{Requests: []model.Request{{RequestID: "r1", RequestedAt: "t"}}}
	require.NoError(t, WriteQueue(ctx, s, "item_grants.json", want))
	got, _, err := ReadQueue(ctx, s, "item_grants.json")
	require.NoError(t, err)
	require.Len(t, got.Requests, 1)
	assert.Equal(t, "r1", got.Requests[0].RequestID)
}

func TestReadResults_ThroughStore(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemory()

	f, _, err := ReadResults(ctx, s, "r.json")
	require.NoError(t, err)
	assert.Empty(t, f.Requests)

	res := model.NewResult("r1", model.StatusSuccess, "Spawned 1x Apple", time.Now())
	require.NoError(t, WriteResults(ctx, s, "r.json", model.ResultFile{Requests: []model.Result{res}}))
	f, _, err = ReadResults(ctx, s, "r.json")
	require.NoError(t, err)
	got, ok := f.Find("r1")
	require.True(t, ok)
	assert.Equal(t, "Spawned 1x Apple", got.Result)
}

func TestReadQueue_StorageErrorPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := ReadQueue(ctx, storage.NewMemory(), "q.json")
	assert.ErrorIs(t, err, context.Canceled)
}
