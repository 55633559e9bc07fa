package httputil

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStandardClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"status": "ok"}`))
		case http.MethodPut:
			w.WriteHeader(http.StatusAccepted)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer server.Close()

	t.Run("wraps custom client", func(t *testing.T) {
		custom := &http.Client{}
		if c := NewStandardClient(custom); c.Client != custom {
			t.Error("custom client was not wrapped")
		}
	})

	t.Run("nil falls back to default", func(t *testing.T) {
		if c := NewStandardClient(nil); c.Client != http.DefaultClient {
			t.Error("nil should wrap http.DefaultClient")
		}
	})

	t.Run("get", func(t *testing.T) {
		resp, err := NewStandardClient(nil).Get(server.URL)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if string(body) != `{"status": "ok"}` {
			t.Errorf("body = %q", string(body))
		}
	})

	t.Run("do", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPut, server.URL, strings.NewReader("data"))
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		resp, err := NewStandardClient(nil).Do(req)
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusAccepted {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
		}
	})
}

func TestMockScriptedReplies(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, "first").
		AddResponse(http.StatusNoContent, "").
		AddErrorResponse(errors.New("connection refused"))

	resp, err := mock.Get("http://osrm.local/1")
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "first" {
		t.Errorf("first reply = %d %q, want 200 %q", resp.StatusCode, body, "first")
	}

	resp, err = mock.Get("http://osrm.local/2")
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("second reply status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	if _, err := mock.Get("http://osrm.local/3"); err == nil {
		t.Error("third reply should surface the scripted error")
	}

	// Past the end of the script the mock answers an empty 200.
	resp, err = mock.Get("http://osrm.local/4")
	if err != nil {
		t.Fatalf("fourth Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("default reply status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	if got := mock.RequestCount(); got != 4 {
		t.Errorf("RequestCount() = %d, want 4", got)
	}
}

func TestMockRecordsRequests(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.Get("http://osrm.local/first")
	mock.Get("http://osrm.local/second")

	if req := mock.GetRequest(0); req == nil || !strings.HasSuffix(req.URL.Path, "first") {
		t.Error("GetRequest(0) should return the first recorded request")
	}
	if req := mock.GetRequest(1); req == nil || !strings.HasSuffix(req.URL.Path, "second") {
		t.Error("GetRequest(1) should return the second recorded request")
	}
	if mock.GetRequest(2) != nil || mock.GetRequest(-1) != nil {
		t.Error("out-of-range GetRequest should return nil")
	}
}
