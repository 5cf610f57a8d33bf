// Package ai talks to an Ollama-style chat completion endpoint.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/keshon/digmbot/pkg/retrylimit"
	"golang.org/x/time/rate"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the chat payload. URL selects the endpoint and is not sent.
type Request struct {
	URL         string    `json:"-"`
	Model       string    `json:"model"`
	Stream      bool      `json:"stream"`
	Messages    []Message `json:"messages"`
	NumCtx      int       `json:"num_ctx"`
	Temperature float64   `json:"temperature"`
}

// Completer is what callers need from Client; tests substitute their own.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type Client struct {
	client  *http.Client
	limiter *retrylimit.AdaptiveLimiter
}

// NewClient returns a Client whose calls give up after timeout (0 means no
// limit) and start paced at requestsPerSecond.
func NewClient(timeout time.Duration, requestsPerSecond float64) *Client {
	rps := rate.Limit(requestsPerSecond)
	return &Client{
		client:  &http.Client{Timeout: timeout},
		limiter: retrylimit.NewAdaptiveLimiter(rps, rps/4, rps*4, 0.5, 0.5),
	}
}

// Complete sends req and returns the cleaned reply text. Every failure is an
// *Error matching ErrCallFailed. The call is made once; overload responses
// only slow down later calls.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", &Error{Kind: KindTimeout, Err: err}
	}

	req.Stream = false
	data, err := json.Marshal(req)
	if err != nil {
		return "", &Error{Kind: KindMalformed, Err: fmt.Errorf("encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(data))
	if err != nil {
		return "", &Error{Kind: KindTransport, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	started := time.Now()
	log.Printf("[LLM] POST %s model=%s messages=%d", req.URL, req.Model, len(req.Messages))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return "", &Error{Kind: KindTimeout, Err: err}
		}
		return "", &Error{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return "", &Error{Kind: KindTimeout, Err: err}
		}
		return "", &Error{Kind: KindTransport, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := &Error{Kind: KindStatus, Status: resp.StatusCode, Err: errors.New(truncate(body))}
		if retrylimit.IsOverload(e) {
			c.limiter.RateLimited()
		}
		return "", e
	}
	c.limiter.Success()

	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") || looksLikeHTML(string(body)) {
		return "", &Error{Kind: KindMalformed, Err: errors.New("endpoint returned html")}
	}

	reply, err := parseReply(body)
	if err != nil {
		return "", &Error{Kind: KindMalformed, Err: err}
	}
	reply = cleanReply(reply)
	if reply == "" {
		return "", &Error{Kind: KindEmpty}
	}

	log.Printf("[LLM] Reply of %d chars in %v", len(reply), time.Since(started).Round(time.Millisecond))
	return reply, nil
}

// parseReply accepts the Ollama shape and, as a fallback, the OpenAI one.
func parseReply(body []byte) (string, error) {
	var parsed struct {
		Message *Message `json:"message"`
		Choices []struct {
			Message Message `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w (%s)", err, truncate(body))
	}
	switch {
	case parsed.Message != nil:
		return parsed.Message.Content, nil
	case len(parsed.Choices) > 0:
		return parsed.Choices[0].Message.Content, nil
	default:
		return "", fmt.Errorf("response has no message: %s", truncate(body))
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
