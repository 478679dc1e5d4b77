package health

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"time"
)

// maxStatusBody bounds how much of a JSON status document is read
const maxStatusBody = 64 << 10

// HTTPChecker requests a URL and accepts a range of status codes. When the
// response is a JSON status document, such as the /ready reply of a node,
// its status and message are added to the result.
type HTTPChecker struct {
	url    string
	method string
	header http.Header
	min    int
	max    int
	client *http.Client
}

type statusDocument struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewHTTPChecker checks url with GET, accepting 200-399
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		url:    url,
		method: http.MethodGet,
		header: make(http.Header),
		min:    200,
		max:    399,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Check performs the request
func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, h.method, h.url, nil)
	if err != nil {
		return failed(start, "invalid request: %v", err)
	}
	req.Header = h.header.Clone()

	resp, err := h.client.Do(req)
	if err != nil {
		return failed(start, "%s %s: %v", h.method, h.url, err)
	}
	defer resp.Body.Close()

	message := resp.Status
	if doc, ok := readStatus(resp); ok {
		message += ": " + doc.Status
		if doc.Message != "" {
			message += " (" + doc.Message + ")"
		}
	}
	if resp.StatusCode < h.min || resp.StatusCode > h.max {
		return failed(start, "%s, want %d-%d", message, h.min, h.max)
	}
	return Result{Healthy: true, Message: message, CheckedAt: start, Duration: time.Since(start)}
}

func readStatus(resp *http.Response) (statusDocument, bool) {
	var doc statusDocument
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return doc, false
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxStatusBody)).Decode(&doc); err != nil {
		return doc, false
	}
	return doc, doc.Status != ""
}

// Type returns CheckTypeHTTP
func (h *HTTPChecker) Type() CheckType {
	return CheckTypeHTTP
}

// WithMethod sets the HTTP method, HEAD keeps site probes cheap
func (h *HTTPChecker) WithMethod(method string) *HTTPChecker {
	h.method = method
	return h
}

// WithHeader adds a request header
func (h *HTTPChecker) WithHeader(key, value string) *HTTPChecker {
	h.header.Set(key, value)
	return h
}

// WithStatusRange sets the accepted status codes, bounds included
func (h *HTTPChecker) WithStatusRange(min, max int) *HTTPChecker {
	h.min, h.max = min, max
	return h
}

// WithTimeout bounds the whole request
func (h *HTTPChecker) WithTimeout(timeout time.Duration) *HTTPChecker {
	h.client.Timeout = timeout
	return h
}
