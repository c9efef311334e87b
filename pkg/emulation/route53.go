package emulation

import (
	"context"

	route53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/google/uuid"

	"github.com/afterdarksys/mockfactory/pkg/dnsrecord"
)

// route53Translator implements the Route53 family (spec §4.6) by delegating
// directly to the DNS Record Store (C5, spec §4.7) rather than keeping a
// second copy of zone data: a hosted zone is an Environment, and a resource
// record set is a DNSRecord.
type route53Translator struct {
	dns *dnsrecord.Service
}

// ChangeResourceRecordSets applies one upsert (create-or-replace is
// approximated as create; real Route53 diffing is out of scope) per change.
func (t *route53Translator) ChangeResourceRecordSets(ctx context.Context, ownerID uuid.UUID, environmentID string, changes []dnsrecord.CreateRequest) ([]dnsrecord.BulkResult, error) {
	results, err := t.dns.BulkCreate(ctx, ownerID, environmentID, dnsrecord.BulkCreateRequest{Records: changes})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (t *route53Translator) ListResourceRecordSets(ctx context.Context, ownerID uuid.UUID, environmentID string) ([]route53types.ResourceRecordSet, error) {
	records, err := t.dns.List(ctx, ownerID, environmentID)
	if err != nil {
		return nil, err
	}
	sets := make([]route53types.ResourceRecordSet, 0, len(records))
	for _, r := range records {
		name, typ, value := r.Name, string(r.Type), r.Value
		ttl := int64(r.TTL)
		sets = append(sets, route53types.ResourceRecordSet{
			Name: &name,
			Type: route53types.RRType(typ),
			TTL:  &ttl,
			ResourceRecords: []route53types.ResourceRecord{
				{Value: &value},
			},
		})
	}
	return sets, nil
}

func (t *route53Translator) DeleteResourceRecordSet(ctx context.Context, ownerID uuid.UUID, environmentID string, id uuid.UUID) error {
	return t.dns.Delete(ctx, ownerID, environmentID, id)
}
