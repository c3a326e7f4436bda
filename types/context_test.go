package types

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	ctx = WithTraceID(ctx, "t1")
	if got, ok := TraceID(ctx); !ok || got != "t1" {
		t.Fatalf("TraceID mismatch: %v %v", got, ok)
	}

	ctx = WithTenantID(ctx, "BPNL000000000001")
	if got, ok := TenantID(ctx); !ok || got != "BPNL000000000001" {
		t.Fatalf("TenantID mismatch: %v %v", got, ok)
	}

	ctx = WithUserID(ctx, "user")
	if got, ok := UserID(ctx); !ok || got != "user" {
		t.Fatalf("UserID mismatch: %v %v", got, ok)
	}

	ctx = WithRoles(ctx, []string{"consumer"})
	if got, ok := Roles(ctx); !ok || len(got) != 1 || got[0] != "consumer" {
		t.Fatalf("Roles mismatch: %v %v", got, ok)
	}
}

func TestContextHelpers_Missing(t *testing.T) {
	t.Parallel()

	ctx := WithTraceID(context.Background(), "")
	if _, ok := TraceID(ctx); ok {
		t.Fatalf("empty trace id must report missing")
	}
	if _, ok := Roles(context.Background()); ok {
		t.Fatalf("roles must be missing")
	}
}
