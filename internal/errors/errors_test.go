package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestGetServiceErrorUnwrapsChain(t *testing.T) {
	base := StorageUnavailable(errors.New("connection refused"))
	wrapped := fmt.Errorf("record view: %w", base)

	se := GetServiceError(wrapped)
	if se == nil {
		t.Fatal("expected service error in chain")
	}
	if se.Code != CodeStorageUnavailable {
		t.Fatalf("unexpected code: %s", se.Code)
	}
	if se.HTTPStatus != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", se.HTTPStatus)
	}
	if !se.Retryable() {
		t.Fatal("storage unavailable should be retryable")
	}
}

func TestGetServiceErrorNilForPlainErrors(t *testing.T) {
	if se := GetServiceError(errors.New("plain")); se != nil {
		t.Fatalf("expected nil, got %v", se)
	}
}

func TestQuotaOutcomesAreConflicts(t *testing.T) {
	for _, se := range []*ServiceError{QuotaExceeded(1, 1), InsufficientCredits(0, 1)} {
		if se.HTTPStatus != http.StatusConflict {
			t.Fatalf("%s: expected 409, got %d", se.Code, se.HTTPStatus)
		}
		if se.Retryable() {
			t.Fatalf("%s: business outcomes are not retryable", se.Code)
		}
	}
}

func TestWithDetails(t *testing.T) {
	se := InvalidInput("completion_rate out of range").WithDetails("completion_rate", 140)
	if se.Details["completion_rate"] != 140 {
		t.Fatalf("details not attached: %v", se.Details)
	}
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("authorize post: %w", QuotaExceeded(2, 1))
	if !IsCode(err, CodeQuotaExceeded) {
		t.Fatal("expected quota_exceeded code")
	}
	if IsCode(err, CodeNotFound) {
		t.Fatal("unexpected not_found match")
	}
}
