package proxyapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/theirongolddev/cpusage/internal/model"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func fastClient(url, key string) *Client {
	return NewClient(url, key, WithRetryInterval(time.Millisecond), WithTimeout(2*time.Second))
}

func TestFetchUsage_FlatArrayAndAuthHeader(t *testing.T) {
	var gotAuth, gotPath string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`[
			{"date":"2024-01-01","model":"gpt-x","prompt_tokens":1000,"completion_tokens":500,"total_tokens":1500,"request_count":3,"success_count":3,"failure_count":0},
			{"date":"2023-12-31","model":"gpt-x","prompt_tokens":1,"completion_tokens":1,"total_tokens":2,"request_count":1,"success_count":0,"failure_count":1}
		]`))
	})

	res, err := fastClient(srv.URL+"/", "secret").FetchUsage(context.Background())
	if err != nil {
		t.Fatalf("FetchUsage: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/v0/management/usage" {
		t.Errorf("path = %q", gotPath)
	}
	if len(res.Records) != 2 || res.Skipped != 0 {
		t.Fatalf("records=%d skipped=%d", len(res.Records), res.Skipped)
	}
	if res.Records[0].Date != "2023-12-31" {
		t.Errorf("records not sorted: %+v", res.Records)
	}
	r := res.Records[1]
	if r.Source != model.SourceAPI || r.PromptTokens != 1000 || r.Requests != 3 {
		t.Errorf("record = %+v", r)
	}
}

func TestFetchUsage_NoKeyNoHeader(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["Authorization"]; ok {
			t.Error("Authorization header sent without a key")
		}
		_, _ = w.Write([]byte(`{"entries":[]}`))
	})

	c := fastClient(srv.URL, "")
	if c.HasKey() {
		t.Fatal("HasKey() = true")
	}
	res, err := c.FetchUsage(context.Background())
	if err != nil {
		t.Fatalf("FetchUsage: %v", err)
	}
	if len(res.Records) != 0 {
		t.Errorf("records = %+v", res.Records)
	}
}

func TestFetchUsage_NativePayload(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"failed_requests":0,"usage":{"total_requests":4,"apis":{
			"key-a":{"models":{"glm-4.6":{"details":[
				{"timestamp":"2024-01-02T10:00:00+08:00","tokens":{"input_tokens":10,"output_tokens":5,"total_tokens":15},"failed":false},
				{"timestamp":"2024-01-02T23:00:00+08:00","tokens":{"input_tokens":1,"output_tokens":1},"failed":true}
			]}}},
			"key-b":{"models":{"glm-4.6":{"details":[
				{"timestamp":"2024-01-02T11:00:00Z","tokens":{"input_tokens":100,"output_tokens":50,"total_tokens":150}}
			]},"":{"details":[
				{"timestamp":"2024-01-02T11:00:00Z","tokens":{"input_tokens":1}}
			]}}},
			"key-c":{"models":{"other":{"details":[
				{"timestamp":"garbage","tokens":{"input_tokens":1}}
			]}}}
		}}}`))
	})

	res, err := fastClient(srv.URL, "k").FetchUsage(context.Background())
	if err != nil {
		t.Fatalf("FetchUsage: %v", err)
	}
	if res.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", res.Skipped)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %+v, want one", res.Records)
	}
	r := res.Records[0]
	if r.Date != "2024-01-02" || r.Model != "glm-4.6" {
		t.Errorf("key = %s/%s", r.Date, r.Model)
	}
	if r.PromptTokens != 111 || r.CompletionTokens != 56 || r.TotalTokens != 167 {
		t.Errorf("tokens = %d/%d/%d, want 111/56/167", r.PromptTokens, r.CompletionTokens, r.TotalTokens)
	}
	if r.Requests != 3 || r.Successes != 2 || r.Failures != 1 {
		t.Errorf("requests = %d/%d/%d, want 3/2/1", r.Requests, r.Successes, r.Failures)
	}
}

func TestFetchUsage_StatusErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusTooManyRequests, ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var calls atomic.Int32
			srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			})
			_, err := fastClient(srv.URL, "k").FetchUsage(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if n := calls.Load(); n != 1 {
				t.Errorf("calls = %d, want 1 (no retry)", n)
			}
		})
	}
}

func TestFetchUsage_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	if _, err := fastClient(srv.URL, "k").FetchUsage(context.Background()); err != nil {
		t.Fatalf("FetchUsage: %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestFetchUsage_GivesUpAfterMaxTries(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := NewClient(srv.URL, "k", WithRetryInterval(time.Millisecond), WithMaxTries(2)).FetchUsage(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestFetchUsage_UnexpectedStatusNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	if _, err := fastClient(srv.URL, "k").FetchUsage(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestFetchUsage_BadBody(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>proxy login</html>`))
	})
	_, err := fastClient(srv.URL, "k").FetchUsage(context.Background())
	if !errors.Is(err, ErrBadPayload) {
		t.Fatalf("err = %v, want ErrBadPayload", err)
	}
}

func TestFetchUsage_CanceledContext(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fastClient(srv.URL, "k").FetchUsage(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestDecode_SkipsInvalidEntries(t *testing.T) {
	res, err := Decode([]byte(`{"entries":[
		{"date":"2024-01-01","model":"a","prompt_tokens":1,"request_count":1,"success_count":1},
		{"date":"2024-01-01","model":"a","prompt_tokens":2,"request_count":1,"success_count":1},
		{"date":"01/01/2024","model":"a","prompt_tokens":1},
		{"date":"2024-01-01","model":"","prompt_tokens":1},
		{"date":"2024-01-01","model":"b","prompt_tokens":-5}
	]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if res.Skipped != 3 {
		t.Errorf("Skipped = %d, want 3", res.Skipped)
	}
	if len(res.Records) != 1 || res.Records[0].PromptTokens != 3 || res.Records[0].Requests != 2 {
		t.Errorf("records = %+v", res.Records)
	}
}

func TestDecode_NativeTotalOnlyDetailsKept(t *testing.T) {
	res, err := Decode([]byte(`{"usage":{"apis":{"k":{"models":{"m":{"details":[
		{"timestamp":"2024-01-02T10:00:00Z","tokens":{"input_tokens":100,"output_tokens":50,"total_tokens":150}},
		{"timestamp":"2024-01-02T11:00:00Z","tokens":{"total_tokens":1000}}
	]}}}}}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %+v", res.Records)
	}
	r := res.Records[0]
	if r.TotalTokens != 1150 || r.UnsplitTokens != 1000 || r.PromptTokens != 100 {
		t.Errorf("record = %+v", r)
	}
}

func TestDecode_Rejects(t *testing.T) {
	for _, body := range []string{``, `   `, `{}`, `{"usage":null}`, `{"entries":"nope"}`, `[1,2]`, `42`} {
		if _, err := Decode([]byte(body)); !errors.Is(err, ErrBadPayload) {
			t.Errorf("Decode(%q) err = %v, want ErrBadPayload", body, err)
		}
	}
}
