package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestGetMultipleAccountsBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqs []rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(reqs) != 2 {
			t.Errorf("len(reqs) = %d, want 2", len(reqs))
		}
		for _, req := range reqs {
			if req.Method != "getMultipleAccounts" {
				t.Errorf("method = %q, want getMultipleAccounts", req.Method)
			}
		}

		// Respond out of order; the client must correlate by id.
		resp := []map[string]any{
			{
				"jsonrpc": "2.0",
				"id":      2,
				"result": map[string]any{
					"context": map[string]any{"slot": 200},
					"value": []any{
						map[string]any{"data": []string{b64("xyz"), "base64"}, "owner": "prog-2", "lamports": 7},
					},
				},
			},
			{
				"jsonrpc": "2.0",
				"id":      1,
				"result": map[string]any{
					"context": map[string]any{"slot": 100},
					"value": []any{
						map[string]any{"data": []string{b64("abc"), "base64"}, "owner": "prog-1", "lamports": 5},
						nil,
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := NewClient(server.URL)

	results, err := c.GetMultipleAccountsBatch(context.Background(),
		[][]string{{"addr-1", "addr-2"}, {"addr-3"}}, "confirmed")
	if err != nil {
		t.Fatalf("GetMultipleAccountsBatch failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}

	first := results[0]
	if first.Err != nil {
		t.Fatalf("first.Err = %v", first.Err)
	}
	if first.Slot != 100 {
		t.Errorf("first.Slot = %d, want 100", first.Slot)
	}
	if len(first.Entries) != 2 {
		t.Fatalf("len(first.Entries) = %d, want 2", len(first.Entries))
	}
	if got := first.Entries[0].Account; got == nil || !bytes.Equal(got.Data, []byte("abc")) {
		t.Errorf("first account data = %v, want %q", got, "abc")
	}
	if first.Entries[0].Account.Owner != "prog-1" {
		t.Errorf("owner = %q, want prog-1", first.Entries[0].Account.Owner)
	}
	if first.Entries[1].Account != nil || first.Entries[1].Err != nil {
		t.Errorf("second entry = %+v, want absent", first.Entries[1])
	}

	second := results[1]
	if second.Slot != 200 {
		t.Errorf("second.Slot = %d, want 200", second.Slot)
	}
	if got := second.Entries[0].Account; got == nil || !bytes.Equal(got.Data, []byte("xyz")) {
		t.Errorf("second account data = %v, want %q", got, "xyz")
	}
}

func TestGetMultipleAccountsBatch_PerBatchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := []map[string]any{
			{
				"jsonrpc": "2.0",
				"id":      1,
				"error":   map[string]any{"code": -32602, "message": "invalid params"},
			},
			{
				"jsonrpc": "2.0",
				"id":      2,
				"result": map[string]any{
					"context": map[string]any{"slot": 50},
					"value":   []any{nil},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := NewClient(server.URL)

	results, err := c.GetMultipleAccountsBatch(context.Background(),
		[][]string{{"addr-1"}, {"addr-2"}}, "confirmed")
	if err != nil {
		t.Fatalf("GetMultipleAccountsBatch failed: %v", err)
	}

	if results[0].Err == nil {
		t.Error("results[0].Err = nil, want error")
	}
	rpcErr, ok := results[0].Err.(*RPCError)
	if !ok {
		t.Fatalf("results[0].Err is %T, want *RPCError", results[0].Err)
	}
	if rpcErr.Code != -32602 {
		t.Errorf("Code = %d, want -32602", rpcErr.Code)
	}

	// The sibling sub-batch must be unaffected.
	if results[1].Err != nil {
		t.Errorf("results[1].Err = %v, want nil", results[1].Err)
	}
	if results[1].Slot != 50 {
		t.Errorf("results[1].Slot = %d, want 50", results[1].Slot)
	}
}

func TestGetMultipleAccountsBatch_DecodeErrorIsolated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := []map[string]any{
			{
				"jsonrpc": "2.0",
				"id":      1,
				"result": map[string]any{
					"context": map[string]any{"slot": 10},
					"value": []any{
						map[string]any{"data": []string{"!!!not-base64!!!", "base64"}},
						map[string]any{"data": []string{b64("ok"), "base64"}},
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := NewClient(server.URL)

	results, err := c.GetMultipleAccountsBatch(context.Background(),
		[][]string{{"addr-bad", "addr-good"}}, "confirmed")
	if err != nil {
		t.Fatalf("GetMultipleAccountsBatch failed: %v", err)
	}

	if results[0].Entries[0].Err == nil {
		t.Error("bad entry Err = nil, want decode error")
	}
	if results[0].Entries[0].Account != nil {
		t.Error("bad entry Account != nil, want nil")
	}
	if got := results[0].Entries[1].Account; got == nil || !bytes.Equal(got.Data, []byte("ok")) {
		t.Errorf("good entry data = %v, want %q", got, "ok")
	}
}

func TestGetMultipleAccountsBatch_Empty(t *testing.T) {
	c := NewClient("http://localhost:1") // must never be dialed

	results, err := c.GetMultipleAccountsBatch(context.Background(), nil, "confirmed")
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if results != nil {
		t.Errorf("results = %v, want nil", results)
	}
}

func TestClient_RetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		resp := []map[string]any{
			{
				"jsonrpc": "2.0",
				"id":      1,
				"result": map[string]any{
					"context": map[string]any{"slot": 1},
					"value":   []any{nil},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := NewClient(server.URL, WithRetries(3, time.Millisecond))

	_, err := c.GetMultipleAccountsBatch(context.Background(), [][]string{{"addr-1"}}, "confirmed")
	if err != nil {
		t.Fatalf("GetMultipleAccountsBatch failed: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewClient(server.URL, WithRetries(3, time.Millisecond))

	_, err := c.GetMultipleAccountsBatch(context.Background(), [][]string{{"addr-1"}}, "confirmed")
	if err == nil {
		t.Fatal("err = nil, want error")
	}
	httpErr, ok := err.(*HTTPError)
	if !ok {
		t.Fatalf("err is %T, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", httpErr.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestGetMultipleAccountsBatch_MissingResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer server.Close()

	c := NewClient(server.URL)

	results, err := c.GetMultipleAccountsBatch(context.Background(), [][]string{{"addr-1"}}, "confirmed")
	if err != nil {
		t.Fatalf("GetMultipleAccountsBatch failed: %v", err)
	}
	if results[0].Err != ErrMissingResponse {
		t.Errorf("Err = %v, want ErrMissingResponse", results[0].Err)
	}
}
