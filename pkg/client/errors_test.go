package client

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected ErrorClass
	}{
		{http.StatusTooManyRequests, ErrorClassRateLimit},
		{http.StatusBadRequest, ErrorClassClient},
		{http.StatusForbidden, ErrorClassClient},
		{http.StatusNotFound, ErrorClassClient},
		{http.StatusInternalServerError, ErrorClassServer},
		{http.StatusBadGateway, ErrorClassServer},
		{http.StatusOK, ErrorClass("")},
		{http.StatusNoContent, ErrorClass("")},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.expected {
			t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.expected)
		}
	}
}

func TestAPIError(t *testing.T) {
	inner := errors.New("connection reset")
	err := &APIError{
		StatusCode: 502,
		ErrorClass: ErrorClassServer,
		Message:    "bad gateway",
		Err:        inner,
	}

	if !strings.Contains(err.Error(), "status 502") {
		t.Errorf("Error() = %q, want status in message", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("errors.Is should unwrap to the inner error")
	}

	bare := &APIError{StatusCode: 404, ErrorClass: ErrorClassClient, Message: "not found"}
	if !strings.Contains(bare.Error(), "client") {
		t.Errorf("Error() = %q, want error class in message", bare.Error())
	}
}
