package otel

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = secret ,broken, =skip,tenant=ledger")
	if len(headers) != 2 {
		t.Fatalf("expected 2 headers, got %v", headers)
	}
	if headers["api-key"] != "secret" || headers["tenant"] != "ledger" {
		t.Fatalf("unexpected headers %v", headers)
	}
}

func TestResourceAttributesSorted(t *testing.T) {
	attrs := resourceAttributes(Config{
		ServiceName: "trancheld",
		Environment: "dev",
		Attributes:  map[string]string{"ledger.strategy": "vault", "ledger.address": "0xabc"},
	})
	if len(attrs) != 4 {
		t.Fatalf("expected 4 attributes, got %d", len(attrs))
	}
	if attrs[2].Key != attribute.Key("ledger.address") || attrs[3].Key != attribute.Key("ledger.strategy") {
		t.Fatalf("unexpected attribute order: %v", attrs)
	}
}
