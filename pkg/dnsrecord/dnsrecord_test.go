package dnsrecord

import "testing"

func intp(v int) *int { return &v }

func TestCreateRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateRequest
		wantErr bool
	}{
		{"valid A", CreateRequest{Name: "api.env-x", Type: TypeA, Value: "10.0.0.1", TTL: 300}, false},
		{"A with hostname value", CreateRequest{Name: "api.env-x", Type: TypeA, Value: "not-an-ip", TTL: 300}, true},
		{"A with IPv6 value", CreateRequest{Name: "api.env-x", Type: TypeA, Value: "::1", TTL: 300}, true},
		{"valid AAAA", CreateRequest{Name: "api.env-x", Type: TypeAAAA, Value: "::1", TTL: 300}, false},
		{"valid CNAME", CreateRequest{Name: "www.env-x", Type: TypeCNAME, Value: "api.env-x.mockfactory.dev", TTL: 300}, false},
		{"MX missing priority", CreateRequest{Name: "env-x", Type: TypeMX, Value: "mail.env-x", TTL: 300}, true},
		{"MX with priority", CreateRequest{Name: "env-x", Type: TypeMX, Value: "mail.env-x", TTL: 300, Priority: intp(10)}, false},
		{"SRV missing fields", CreateRequest{Name: "_svc._tcp.env-x", Type: TypeSRV, Value: "target.env-x", TTL: 300}, true},
		{"SRV complete", CreateRequest{Name: "_svc._tcp.env-x", Type: TypeSRV, Value: "target.env-x", TTL: 300, Priority: intp(1), Weight: intp(1), Port: intp(8080)}, false},
		{"TXT empty", CreateRequest{Name: "env-x", Type: TypeTXT, Value: "", TTL: 300}, true},
		{"TXT valid", CreateRequest{Name: "env-x", Type: TypeTXT, Value: "v=spf1 -all", TTL: 300}, false},
		{"ttl too low", CreateRequest{Name: "env-x", Type: TypeA, Value: "10.0.0.1", TTL: 10}, true},
		{"ttl too high", CreateRequest{Name: "env-x", Type: TypeA, Value: "10.0.0.1", TTL: 999999}, true},
		{"unsupported type", CreateRequest{Name: "env-x", Type: "SOA", Value: "x", TTL: 300}, true},
		{"empty name", CreateRequest{Name: "", Type: TypeA, Value: "10.0.0.1", TTL: 300}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBulkCreateRequestValidate(t *testing.T) {
	var tooMany []CreateRequest
	for i := 0; i < maxBulkInsert+1; i++ {
		tooMany = append(tooMany, CreateRequest{Name: "env-x", Type: TypeA, Value: "10.0.0.1", TTL: 300})
	}

	tests := []struct {
		name    string
		req     BulkCreateRequest
		wantErr bool
	}{
		{"empty", BulkCreateRequest{}, true},
		{"one record", BulkCreateRequest{Records: []CreateRequest{{Name: "env-x", Type: TypeA, Value: "10.0.0.1", TTL: 300}}}, false},
		{"over limit", BulkCreateRequest{Records: tooMany}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsDNSLabelSequence(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"api.env-x.mockfactory.dev", true},
		{"api.env-x.mockfactory.dev.", true},
		{"-bad-start", false},
		{"bad-end-", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isDNSLabelSequence(tt.value); got != tt.want {
			t.Errorf("isDNSLabelSequence(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
