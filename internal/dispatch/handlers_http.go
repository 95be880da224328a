package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/flowforge/workflow-core/internal/builder"
	"github.com/flowforge/workflow-core/internal/ctxstore"
	"github.com/flowforge/workflow-core/internal/domain"
)

// newHTTPHandler wires an http node to a plain net/http client. No library
// in the example pack specializes generic outbound REST calls beyond what
// net/http already does cleanly, and the teacher itself reaches for
// net/http directly for this — see DESIGN.md.
func newHTTPHandler(_ Dependencies) Handler {
	client := &http.Client{Timeout: 30 * time.Second}

	return HandlerFunc(func(ctx context.Context, node *builder.ExecutableNode, resolved map[string]any, _ *ctxstore.Snapshot) (Result, error) {
		url, _ := resolved["url"].(string)
		if url == "" {
			return Result{}, &domain.NodeError{Type: domain.NodeErrValidation, Message: "http node has no url"}
		}
		method, _ := resolved["method"].(string)
		if method == "" {
			method = http.MethodGet
		}

		var bodyReader io.Reader
		if body, ok := resolved["body"]; ok && body != nil {
			encoded, err := json.Marshal(body)
			if err != nil {
				return Result{}, &domain.NodeError{Type: domain.NodeErrValidation, Message: "http node body is not JSON-serializable"}
			}
			bodyReader = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, bodyReader)
		if err != nil {
			return Result{}, &domain.NodeError{Type: domain.NodeErrValidation, Message: "failed to build http request: " + err.Error()}
		}
		if bodyReader != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if headers, ok := resolved["headers"].(map[string]any); ok {
			for k, v := range headers {
				if s, ok := v.(string); ok {
					req.Header.Set(k, s)
				}
			}
		}

		resp, err := client.Do(req)
		if err != nil {
			return Result{}, classifyHTTPTransportError(err)
		}
		defer resp.Body.Close()

		data, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		var parsed any
		if json.Unmarshal(data, &parsed) != nil {
			parsed = string(data)
		}

		if resp.StatusCode >= 400 {
			return Result{}, classifyHTTPStatus(resp.StatusCode, resp.Header.Get("Retry-After"), string(data))
		}

		return Result{Output: map[string]any{
			"status": resp.StatusCode,
			"body":   parsed,
		}}, nil
	})
}

func classifyHTTPTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &domain.NodeError{Type: domain.NodeErrTimeout, Message: err.Error(), Retryable: true}
		}
		return &domain.NodeError{Type: domain.NodeErrNetwork, Message: err.Error(), Retryable: true}
	}
	return &domain.NodeError{Type: domain.NodeErrNetwork, Message: err.Error(), Retryable: true}
}

func classifyHTTPStatus(status int, retryAfterHeader, body string) error {
	switch {
	case status == http.StatusTooManyRequests:
		ne := &domain.NodeError{Type: domain.NodeErrRateLimit, Message: body, Retryable: true}
		if secs, ok := parseRetryAfterSeconds(retryAfterHeader); ok {
			ms := secs * 1000
			ne.RetryAfter = &ms
		}
		return ne
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &domain.NodeError{Type: domain.NodeErrPermission, Message: body}
	case status == http.StatusNotFound:
		return &domain.NodeError{Type: domain.NodeErrNotFound, Message: body}
	case status >= 500:
		return &domain.NodeError{Type: domain.NodeErrServer, Message: body, Retryable: true}
	default:
		return &domain.NodeError{Type: domain.NodeErrValidation, Message: body}
	}
}

func parseRetryAfterSeconds(header string) (int, bool) {
	if header == "" {
		return 0, false
	}
	var secs int
	if _, err := fmt.Sscanf(header, "%d", &secs); err != nil {
		return 0, false
	}
	return secs, true
}
