package emulation

import (
	"testing"

	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/afterdarksys/mockfactory/internal/apperr"
)

func TestConditionEvaluate(t *testing.T) {
	item := map[string]any{"status": "ready", "count": float64(3)}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"exists true", Condition{Attr: "status", Op: condExists}, true},
		{"exists false", Condition{Attr: "missing", Op: condExists}, false},
		{"not_exists true", Condition{Attr: "missing", Op: condNotExists}, true},
		{"eq match", Condition{Attr: "status", Op: condEq, Value: "ready"}, true},
		{"eq mismatch", Condition{Attr: "status", Op: condEq, Value: "pending"}, false},
		{"ne match", Condition{Attr: "status", Op: condNe, Value: "pending"}, true},
		{"gt true", Condition{Attr: "count", Op: condGt, Value: 2}, true},
		{"gt false", Condition{Attr: "count", Op: condGt, Value: 5}, false},
		{"lte true", Condition{Attr: "count", Op: condLte, Value: 3}, true},
		{"missing attr comparison", Condition{Attr: "missing", Op: condGt, Value: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cond.evaluate(item); got != tt.want {
				t.Errorf("evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   float64
		wantOk bool
	}{
		{"float64", float64(1.5), 1.5, true},
		{"int", 4, 4, true},
		{"numeric string", "2.5", 2.5, true},
		{"non-numeric string", "abc", 0, false},
		{"unsupported type", true, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := toFloat(tt.input)
			if ok != tt.wantOk || (ok && got != tt.want) {
				t.Errorf("toFloat(%v) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.want, tt.wantOk)
			}
		})
	}
}

func TestToAttributeValue(t *testing.T) {
	tests := []struct {
		name  string
		input any
		check func(t *testing.T, v dynamodbtypes.AttributeValue)
	}{
		{"string", "hello", func(t *testing.T, v dynamodbtypes.AttributeValue) {
			s, ok := v.(*dynamodbtypes.AttributeValueMemberS)
			if !ok || s.Value != "hello" {
				t.Errorf("got %#v, want AttributeValueMemberS{hello}", v)
			}
		}},
		{"number", float64(42), func(t *testing.T, v dynamodbtypes.AttributeValue) {
			n, ok := v.(*dynamodbtypes.AttributeValueMemberN)
			if !ok || n.Value != "42" {
				t.Errorf("got %#v, want AttributeValueMemberN{42}", v)
			}
		}},
		{"bool", true, func(t *testing.T, v dynamodbtypes.AttributeValue) {
			b, ok := v.(*dynamodbtypes.AttributeValueMemberBOOL)
			if !ok || !b.Value {
				t.Errorf("got %#v, want AttributeValueMemberBOOL{true}", v)
			}
		}},
		{"nil", nil, func(t *testing.T, v dynamodbtypes.AttributeValue) {
			if _, ok := v.(*dynamodbtypes.AttributeValueMemberNULL); !ok {
				t.Errorf("got %#v, want AttributeValueMemberNULL", v)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, toAttributeValue(tt.input))
		})
	}
}

func TestNamespaceFor(t *testing.T) {
	got := namespaceFor("env-123", "my-bucket")
	want := "env-env-123-my-bucket"
	if got != want {
		t.Errorf("namespaceFor() = %q, want %q", got, want)
	}
}

func TestLambdaConcurrencyBookkeeping(t *testing.T) {
	tr := &lambdaTranslator{inFlight: make(map[string]int)}

	for i := 0; i < defaultLambdaConcurrency; i++ {
		if !tr.acquire("fn") {
			t.Fatalf("acquire() unexpectedly denied at slot %d", i)
		}
	}
	if tr.acquire("fn") {
		t.Fatal("acquire() should deny once concurrency limit is reached")
	}

	tr.release("fn")
	if !tr.acquire("fn") {
		t.Fatal("acquire() should succeed after a release frees a slot")
	}

	for i := 0; i < defaultLambdaConcurrency; i++ {
		tr.release("fn")
	}
	if _, ok := tr.inFlight["fn"]; ok {
		t.Error("inFlight entry should be removed once its count reaches zero")
	}
}

func TestS3ErrorCode(t *testing.T) {
	tests := []struct {
		kind apperr.Kind
		want string
	}{
		{apperr.NotFound, "NoSuchBucket"},
		{apperr.Forbidden, "AccessDenied"},
		{apperr.InvalidRequest, "InvalidRequest"},
		{apperr.InternalError, "InternalError"},
	}
	for _, tt := range tests {
		if got := s3ErrorCode(tt.kind); got != tt.want {
			t.Errorf("s3ErrorCode(%s) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
