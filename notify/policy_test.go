package notify

import (
	"errors"
	"log/slog"
	"strings"
	"testing"

	"memberflow/member"
)

var testLogger = slog.New(slog.DiscardHandler)

func TestDispatchBestEffortSwallows(t *testing.T) {
	err := Dispatch(testLogger, BestEffort, "welcome", func() error {
		return errors.New("smtp down")
	})
	if err != nil {
		t.Fatalf("BestEffort must swallow failures, got %v", err)
	}
}

func TestDispatchRequiredPropagates(t *testing.T) {
	cause := errors.New("smtp down")
	err := Dispatch(testLogger, Required, "admin update review", func() error {
		return cause
	})
	if !errors.Is(err, cause) {
		t.Fatalf("Required must propagate the failure, got %v", err)
	}
}

func TestDispatchSuccess(t *testing.T) {
	calls := 0
	if err := Dispatch(testLogger, Required, "welcome", func() error {
		calls++
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}
}

func ptr[T any](v T) *T { return &v }

func TestDiffRows(t *testing.T) {
	before := member.Snapshot{Name: "Alice Doe", Email: "alice@example.com", PhoneNumber: "1112223333", Age: 20, Place: "Pune"}

	rows := DiffRows(before, member.UpdateRequest{
		Age:   ptr(30),
		Email: ptr("ALICE@example.com"), // normalizes to the current value
		Name:  ptr("Alice Doe"),
	})

	if !strings.Contains(rows, "<td>Age</td><td>20</td><td>30</td>") {
		t.Errorf("expected age row, got %q", rows)
	}
	if strings.Contains(rows, "Email") || strings.Contains(rows, "Name") {
		t.Errorf("unchanged fields must not produce rows: %q", rows)
	}
}

func TestDiffRowsEscapesHTML(t *testing.T) {
	before := member.Snapshot{Place: "Pune"}
	rows := DiffRows(before, member.UpdateRequest{Place: ptr(`<script>alert("x")</script>`)})
	if strings.Contains(rows, "<script>") {
		t.Errorf("values must be escaped: %q", rows)
	}
}
