package resources

import (
	"context"

	"github.com/rangeos/engine/internal/apiclient"
	"github.com/rangeos/engine/internal/models"
)

// VMs adds power actions to the range VM resource.
type VMs struct {
	*Resource[models.RangeVM, models.RangeVMCreate, models.RangeVMUpdate]
}

// In returns a copy bound to a range scenario.
func (v *VMs) In(scope Scope) *VMs {
	return &VMs{Resource: v.Resource.In(scope)}
}

// Start powers a VM on.
func (v *VMs) Start(ctx context.Context, id string, opts ...apiclient.CallOption) (models.RangeVM, error) {
	return v.action(ctx, id, "start", "starting", opts...)
}

// Stop powers a VM off.
func (v *VMs) Stop(ctx context.Context, id string, opts ...apiclient.CallOption) (models.RangeVM, error) {
	return v.action(ctx, id, "stop", "stopping", opts...)
}

// Reboot stops then starts a VM. A failed stop is returned without starting.
func (v *VMs) Reboot(ctx context.Context, id string, opts ...apiclient.CallOption) (models.RangeVM, error) {
	if _, err := v.Stop(ctx, id, opts...); err != nil {
		return models.RangeVM{}, err
	}
	return v.Start(ctx, id, opts...)
}
