package llm

import (
	"context"
	"errors"
	"net"
	"strconv"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/antoniostano/baziview/internal/reliability"
)

// Error codes used as metric labels.
const (
	CodeTimeout = "timeout"
	CodeEmpty   = "empty"
	CodeNetwork = "network"
	CodeOther   = "other"
)

// ErrorCode classifies a failed completion into a low-cardinality label:
// timeout, empty, network, http_<status> or other.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	if errors.Is(err, ErrEmptyCompletion) {
		return CodeEmpty
	}
	if code := httpStatus(err); code > 0 {
		return "http_" + strconv.Itoa(code)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CodeTimeout
		}
		return CodeNetwork
	}
	return CodeOther
}

func httpStatus(err error) int {
	var statusErr *reliability.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) {
		return geminiErr.Code
	}
	return 0
}
