// Package dnsrecord implements the DNS Record Store and optional UDP
// responder (spec §4.7, C5): CRUD on per-environment DNS records, with
// per-type validation, and a read-only multi-tenant name resolver.
package dnsrecord

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type is one of the supported DNS record types (spec §3).
type Type string

const (
	TypeA     Type = "A"
	TypeAAAA  Type = "AAAA"
	TypeCNAME Type = "CNAME"
	TypeMX    Type = "MX"
	TypeTXT   Type = "TXT"
	TypeNS    Type = "NS"
	TypeSRV   Type = "SRV"
	TypePTR   Type = "PTR"
)

const (
	minTTL        = 60
	maxTTL        = 86400
	maxNameLength = 253
	maxBulkInsert = 100
)

// Row represents a row in the dns_records table.
type Row struct {
	ID            uuid.UUID
	EnvironmentID string
	Name          string
	Type          Type
	Value         string
	TTL           int
	Priority      *int
	Weight        *int
	Port          *int
	CreatedAt     time.Time
}

// Response is the caller-facing view of a DNSRecord.
type Response struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Type     Type      `json:"type"`
	Value    string    `json:"value"`
	TTL      int       `json:"ttl"`
	Priority *int      `json:"priority,omitempty"`
	Weight   *int      `json:"weight,omitempty"`
	Port     *int      `json:"port,omitempty"`
}

// ToResponse converts a Row to its DTO.
func (r *Row) ToResponse() Response {
	return Response{
		ID: r.ID, Name: r.Name, Type: r.Type, Value: r.Value, TTL: r.TTL,
		Priority: r.Priority, Weight: r.Weight, Port: r.Port,
	}
}

// CreateRequest is the payload for creating one DNS record (spec §4.7).
type CreateRequest struct {
	Name     string `json:"name"`
	Type     Type   `json:"type"`
	Value    string `json:"value"`
	TTL      int    `json:"ttl"`
	Priority *int   `json:"priority,omitempty"`
	Weight   *int   `json:"weight,omitempty"`
	Port     *int   `json:"port,omitempty"`
}

// BulkCreateRequest is the payload for the bulk insert endpoint; at most
// maxBulkInsert records are accepted per call (spec §4.7).
type BulkCreateRequest struct {
	Records []CreateRequest `json:"records"`
}

// BulkResult reports per-record success/failure for a bulk insert (spec §4.7
// "partial success is explicit").
type BulkResult struct {
	Index  int       `json:"index"`
	Record *Response `json:"record,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Validate checks a CreateRequest against the per-type rules of spec §4.7 and
// enforces P10 (reject, don't persist, on any violation).
func (r CreateRequest) Validate() error {
	if len(r.Name) == 0 || len(r.Name) > maxNameLength {
		return fmt.Errorf("name must be 1..%d characters", maxNameLength)
	}
	if r.TTL < minTTL || r.TTL > maxTTL {
		return fmt.Errorf("ttl must be between %d and %d seconds", minTTL, maxTTL)
	}

	switch r.Type {
	case TypeA:
		ip := net.ParseIP(r.Value)
		if ip == nil || ip.To4() == nil {
			return fmt.Errorf("A record value must be a literal IPv4 address")
		}
	case TypeAAAA:
		ip := net.ParseIP(r.Value)
		if ip == nil || ip.To4() != nil {
			return fmt.Errorf("AAAA record value must be a literal IPv6 address")
		}
	case TypeCNAME, TypeNS, TypePTR:
		if !isDNSLabelSequence(r.Value) {
			return fmt.Errorf("%s record value must be a DNS-label sequence", r.Type)
		}
	case TypeMX:
		if !isDNSLabelSequence(r.Value) {
			return fmt.Errorf("MX record value must be a DNS-label sequence")
		}
		if r.Priority == nil {
			return fmt.Errorf("MX record requires priority")
		}
	case TypeSRV:
		if !isDNSLabelSequence(r.Value) {
			return fmt.Errorf("SRV record value must be a DNS-label sequence")
		}
		if r.Priority == nil || r.Weight == nil || r.Port == nil {
			return fmt.Errorf("SRV record requires priority, weight and port")
		}
	case TypeTXT:
		if len(r.Value) == 0 {
			return fmt.Errorf("TXT record value must not be empty")
		}
		for _, chunk := range strings.Split(r.Value, "\n") {
			if len(chunk) > 255 {
				return fmt.Errorf("TXT record chunks must be at most 255 characters")
			}
		}
	default:
		return fmt.Errorf("unsupported record type %q", r.Type)
	}
	return nil
}

// Validate checks a bulk request's size bound (spec §4.7: at most 100 records
// per call). Individual record validity is checked by the caller per-item.
func (b BulkCreateRequest) Validate() error {
	if len(b.Records) == 0 {
		return fmt.Errorf("at least one record is required")
	}
	if len(b.Records) > maxBulkInsert {
		return fmt.Errorf("at most %d records per bulk insert", maxBulkInsert)
	}
	return nil
}

func isDNSLabelSequence(s string) bool {
	if len(s) == 0 || len(s) > maxNameLength {
		return false
	}
	labels := strings.Split(strings.TrimSuffix(s, "."), ".")
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		for i, c := range label {
			isAlnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
			isHyphen := c == '-'
			if !isAlnum && !(isHyphen && i != 0 && i != len(label)-1) {
				return false
			}
		}
	}
	return true
}
