package audit

import (
	"strings"
	"testing"
)

func TestBuildBaseQueryPlaceholders(t *testing.T) {
	query, args := buildBaseQuery(Filter{})
	if strings.Contains(query, "$1") || len(args) != 0 {
		t.Fatalf("expected no filters, got %q %v", query, args)
	}

	query, args = buildBaseQuery(Filter{Action: ActionPollTrigger, Actor: "ops-1"})
	if !strings.Contains(query, "action = $1") || !strings.Contains(query, "actor = $2") {
		t.Fatalf("unexpected query %q", query)
	}
	if len(args) != 2 || args[0] != ActionPollTrigger || args[1] != "ops-1" {
		t.Fatalf("unexpected args %v", args)
	}

	query, args = buildBaseQuery(Filter{Actor: "ops-2"})
	if !strings.Contains(query, "actor = $1") || len(args) != 1 {
		t.Fatalf("expected actor to take the first placeholder, got %q", query)
	}
}
