package observability_test

import (
	"context"
	"testing"

	"github.com/xraph/courier/observability"
)

func TestTracerSpanLifecycle(t *testing.T) {
	tr := observability.NewTracer()

	ctx, span := tr.StartDeliverySpan(context.Background(), "whdel_x", "wh_x", "issue.created")
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
	if span == nil {
		t.Fatal("expected non-nil span")
	}

	// Ending twice must be harmless with the default no-op provider.
	tr.EndDeliverySpan(span, 500, 12, "unexpected status 500")
	tr.EndDeliverySpan(span, 0, 0, "")
}
