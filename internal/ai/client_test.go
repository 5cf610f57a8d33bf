package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestCompleteSendsRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":{"role":"assistant","content":"<think>hmm</think> \"Hello there\" "}}`))
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, 10)
	reply, err := c.Complete(context.Background(), Request{
		URL:         srv.URL,
		Model:       "llama3.1",
		Stream:      true,
		Messages:    []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "bob: hi"}},
		NumCtx:      4096,
		Temperature: 0.5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if reply != "Hello there" {
		t.Errorf("reply = %q", reply)
	}

	if got["model"] != "llama3.1" || got["stream"] != false || got["num_ctx"] != float64(4096) || got["temperature"] != 0.5 {
		t.Errorf("payload = %v", got)
	}
	if _, ok := got["URL"]; ok {
		t.Error("URL leaked into the payload")
	}
	if msgs, _ := got["messages"].([]any); len(msgs) != 2 {
		t.Errorf("messages = %v", got["messages"])
	}
}

func TestCompleteOpenAIShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hey"}}]}`))
	}))
	defer srv.Close()

	reply, err := NewClient(time.Second, 10).Complete(context.Background(), Request{URL: srv.URL})
	if err != nil || reply != "hey" {
		t.Errorf("Complete() = %q, %v", reply, err)
	}
}

func TestCompleteFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
		kind    Kind
	}{
		{
			name:    "bad status",
			handler: func(w http.ResponseWriter, r *http.Request) { http.Error(w, "nope", http.StatusInternalServerError) },
			kind:    KindStatus,
		},
		{
			name:    "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"message":`)) },
			kind:    KindMalformed,
		},
		{
			name: "html page",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.Write([]byte(`<html><body>blocked</body></html>`))
			},
			kind: KindMalformed,
		},
		{
			name:    "empty content",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"message":{"content":"<think>x</think>"}}`)) },
			kind:    KindEmpty,
		},
		{
			name:    "no message",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{}`)) },
			kind:    KindMalformed,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(time.Second):
				case <-r.Context().Done():
				}
			},
			timeout: 50 * time.Millisecond,
			kind:    KindTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			timeout := tt.timeout
			if timeout == 0 {
				timeout = 5 * time.Second
			}
			_, err := NewClient(timeout, 10).Complete(context.Background(), Request{URL: srv.URL})

			if !errors.Is(err, ErrCallFailed) {
				t.Fatalf("err = %v, want ErrCallFailed", err)
			}
			var aerr *Error
			if !errors.As(err, &aerr) || aerr.Kind != tt.kind {
				t.Errorf("err = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestCompleteTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(time.Second, 10).Complete(context.Background(), Request{URL: url})
	var aerr *Error
	if !errors.As(err, &aerr) || aerr.Kind != KindTransport {
		t.Errorf("err = %v, want transport failure", err)
	}
}

func TestOverloadSlowsLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(time.Second, 8)
	before := c.limiter.CurrentLimit()
	_, _ = c.Complete(context.Background(), Request{URL: srv.URL})
	if after := c.limiter.CurrentLimit(); after >= before {
		t.Errorf("limit %v -> %v, want a decrease", before, after)
	}
}

func TestCleanReply(t *testing.T) {
	tests := map[string]string{
		"plain":                        "plain",
		`"quoted"`:                     "quoted",
		"“curly”":                      "curly",
		"<think>a\nb</think>\n answer": "answer",
		`"`:                            `"`,
		`""`:                           `""`,
		`"left only`:                   `"left only`,
	}
	for in, want := range tests {
		if got := cleanReply(in); got != want {
			t.Errorf("cleanReply(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "ok", "ok"},
		{"exact", strings.Repeat("x", 200), strings.Repeat("x", 200)},
		{"ascii", strings.Repeat("x", 250), strings.Repeat("x", 200) + "..."},
		// 'a' shifts every é so byte 200 falls inside one
		{"mid rune", "a" + strings.Repeat("é", 150), "a" + strings.Repeat("é", 99) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate([]byte(tt.in))
			if got != tt.want {
				t.Errorf("truncate() = %q, want %q", got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Error("result is not valid UTF-8")
			}
		})
	}
}
