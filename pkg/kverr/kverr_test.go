package kverr

import (
	"errors"
	"fmt"
	"testing"

	"slackdb/pkg/models"
)

func TestWrapKeepsFirstKind(t *testing.T) {
	base := Errorf(NotFound, "resolve", "no key %q", "k")
	wrapped := Wrap(Upstream, "read", base, "lookup failed")
	if !Is(wrapped, NotFound) {
		t.Fatalf("expected NotFound to survive, got %v", KindOf(wrapped))
	}
	outer := fmt.Errorf("context: %w", wrapped)
	if !Is(outer, NotFound) {
		t.Fatalf("errors.As through fmt wrapping failed")
	}
}

func TestWrapPlainError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(Upstream, "search", cause, "page %d", 2)
	if !Is(err, Upstream) {
		t.Fatalf("expected upstream, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause must be reachable via Unwrap")
	}
	if got := err.Error(); got != "search: upstream_error: page 2: dial tcp: refused" {
		t.Fatalf("unexpected message %q", got)
	}
	if Wrap(Upstream, "x", nil, "") != nil {
		t.Fatalf("wrapping nil must yield nil")
	}
}

func TestPartial(t *testing.T) {
	err := Partial("wipe", []models.DeleteResult{{TS: "1"}, {TS: "2", Err: errors.New("ratelimited")}})
	if err.Kind != PartialFailure || len(err.Results) != 2 {
		t.Fatalf("unexpected partial error %+v", err)
	}
	if err.Msg != "1 of 2 deletes failed" {
		t.Fatalf("unexpected msg %q", err.Msg)
	}
}
