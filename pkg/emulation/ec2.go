package emulation

import (
	"context"

	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/afterdarksys/mockfactory/internal/apperr"
)

// ec2Translator implements the EC2-like compute family (spec §4.6): resources
// are synthesized, no VM is launched. Responses are shaped with the real
// EC2 SDK's types so callers using an EC2 SDK against this endpoint decode
// cleanly.
type ec2Translator struct {
	store *ec2Store
}

func (t *ec2Translator) RunInstances(ctx context.Context, environmentID, instanceType string, assignPublicIP bool) (ec2types.Instance, error) {
	row, err := t.store.create(ctx, environmentID, instanceType, assignPublicIP)
	if err != nil {
		return ec2types.Instance{}, apperr.Wrap(apperr.InternalError, "running instance", err)
	}
	// Transition pending -> running immediately: there is no boot sequence to
	// emulate and the spec lists no separate "launching" observation window.
	if err := t.store.setState(ctx, environmentID, row.ID, ec2Running); err != nil {
		return ec2types.Instance{}, apperr.Wrap(apperr.InternalError, "running instance", err)
	}
	row.State = ec2Running
	return toEC2Instance(row), nil
}

func (t *ec2Translator) DescribeInstances(ctx context.Context, environmentID string) ([]ec2types.Instance, error) {
	rows, err := t.store.listByEnvironment(ctx, environmentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "describing instances", err)
	}
	instances := make([]ec2types.Instance, 0, len(rows))
	for _, row := range rows {
		instances = append(instances, toEC2Instance(row))
	}
	return instances, nil
}

func (t *ec2Translator) StopInstances(ctx context.Context, environmentID, instanceID string) error {
	if err := t.store.setState(ctx, environmentID, instanceID, ec2Stopping); err != nil {
		return apperr.Wrap(apperr.InternalError, "stopping instance", err)
	}
	return t.store.setState(ctx, environmentID, instanceID, ec2Stopped)
}

func (t *ec2Translator) StartInstances(ctx context.Context, environmentID, instanceID string) error {
	if err := t.store.setState(ctx, environmentID, instanceID, ec2Pending); err != nil {
		return apperr.Wrap(apperr.InternalError, "starting instance", err)
	}
	return t.store.setState(ctx, environmentID, instanceID, ec2Running)
}

func (t *ec2Translator) TerminateInstances(ctx context.Context, environmentID, instanceID string) error {
	if err := t.store.setState(ctx, environmentID, instanceID, ec2Terminated); err != nil {
		return apperr.Wrap(apperr.InternalError, "terminating instance", err)
	}
	return nil
}

func toEC2Instance(row ec2InstanceRow) ec2types.Instance {
	instance := ec2types.Instance{
		InstanceId:   &row.ID,
		InstanceType: ec2types.InstanceType(row.InstanceType),
		PrivateIpAddress: &row.PrivateIP,
		State: &ec2types.InstanceState{
			Name: ec2types.InstanceStateName(row.State),
		},
	}
	if row.PublicIP != nil {
		instance.PublicIpAddress = row.PublicIP
	}
	return instance
}
