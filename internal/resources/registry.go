package resources

import (
	"github.com/rangeos/engine/internal/models"
	"github.com/rangeos/engine/internal/querykey"
)

// Resource definitions. Paths are relative to the versioned API root.
var (
	RangesDef = Definition{Key: querykey.Ranges, Path: "manage/infrastructure/ranges",
		Singular: "Range", Plural: "Ranges", Poll: true}
	RangeIPsDef = Definition{Key: querykey.RangeIPs, Path: "manage/range/{rangeId}/scenarios/{scenarioId}/range-ips",
		Singular: "IP", Plural: "IPs"}
	RangeVMsDef = Definition{Key: querykey.RangeResourceVMs, Path: "manage/range/{rangeId}/scenarios/{scenarioId}/range-vms",
		Singular: "VM", Plural: "VMs", Poll: true}
	AwsEnvironmentsDef = Definition{Key: querykey.AwsEnvironments, Path: "manage/infrastructure/environments/aws",
		Singular: "AWS Environment", Plural: "AWS Environments", Poll: true}
	AwsEnvironmentCredentialsDef = Definition{Key: querykey.AwsEnvironmentCredentials, Path: "content/infrastructure/environment-credentials/aws",
		Singular: "AWS Environment Credential", Plural: "AWS Environment Credentials"}
	AwsRangeSpecsDef = Definition{Key: querykey.AwsRangeSpecs, Path: "content/infrastructure/range-specifications/aws",
		Singular: "AWS Range Specification", Plural: "AWS Range Specifications"}
	ScenariosDef = Definition{Key: querykey.Scenarios, Path: "content/range/scenarios",
		Singular: "Scenario", Plural: "Scenarios"}
	RangeVolumesDef = Definition{Key: querykey.RangeVolumes, Path: "content/range/range-volumes",
		Singular: "Volume", Plural: "Volumes"}
	CertificatesDef = Definition{Key: querykey.Certificates, Path: "content/range/range-certs",
		Singular: "Certificate", Plural: "Certificates"}
	ContainerSpecsDef = Definition{Key: querykey.ContainerSpecs, Path: "content/range/container-specifications",
		Singular: "Container Specification", Plural: "Container Specifications"}
	RangeDNSZonesDef = Definition{Key: querykey.RangeDNSZones, Path: "content/range/range-dns-zones",
		Singular: "DNS Zone", Plural: "DNS Zones"}
	RangeDNSRecordsDef = Definition{Key: querykey.RangeDNSRecords, Path: "content/range/range-dns-records",
		Singular: "DNS Record", Plural: "DNS Records"}
	VMImagesDef = Definition{Key: querykey.VMImages, Path: "content/assets/virtual-machine/images",
		Singular: "VM Image", Plural: "VM Images"}
	ChartsDef = Definition{Key: querykey.Charts, Path: "content/assets/charts",
		Singular: "Chart", Plural: "Charts"}
)

// Registry holds one handle per resource, all sharing a transport and a cache.
type Registry struct {
	Ranges                    *Resource[models.Range, models.RangeCreate, models.RangeUpdate]
	RangeIPs                  *Resource[models.RangeIP, models.RangeIPCreate, models.RangeIPUpdate]
	RangeVMs                  *VMs
	AwsEnvironments           *Resource[models.AwsEnvironment, models.AwsEnvironmentCreate, models.AwsEnvironmentUpdate]
	AwsEnvironmentCredentials *Resource[models.AwsEnvironmentCredential, models.AwsEnvironmentCredentialCreate, models.AwsEnvironmentCredentialUpdate]
	AwsRangeSpecs             *Resource[models.AwsRangeSpec, models.AwsRangeSpecCreate, models.AwsRangeSpecUpdate]
	Scenarios                 *Resource[models.Scenario, models.ScenarioCreate, models.ScenarioUpdate]
	RangeVolumes              *Resource[models.RangeVolume, models.RangeVolumeCreate, models.RangeVolumeUpdate]
	Certificates              *Resource[models.RangeCert, models.RangeCertCreate, models.RangeCertUpdate]
	ContainerSpecs            *Resource[models.ContainerSpec, models.ContainerSpecCreate, models.ContainerSpecUpdate]
	RangeDNSZones             *Resource[models.RangeDNSZone, models.RangeDNSZoneCreate, models.RangeDNSZoneUpdate]
	RangeDNSRecords           *Resource[models.RangeDNSRecord, models.RangeDNSRecordCreate, models.RangeDNSRecordUpdate]
	VMImages                  *Resource[models.VMImage, models.VMImageCreate, models.VMImageUpdate]
	Charts                    *Resource[models.Chart, models.ChartCreate, models.ChartUpdate]

	BackgroundJobs *BackgroundJobs
	RangeGraph     *RangeGraph
}

// NewRegistry builds every resource handle from shared deps.
func NewRegistry(deps Deps) *Registry {
	deps = deps.withDefaults()
	return &Registry{
		Ranges:                    New[models.Range, models.RangeCreate, models.RangeUpdate](RangesDef, deps),
		RangeIPs:                  New[models.RangeIP, models.RangeIPCreate, models.RangeIPUpdate](RangeIPsDef, deps),
		RangeVMs:                  &VMs{Resource: New[models.RangeVM, models.RangeVMCreate, models.RangeVMUpdate](RangeVMsDef, deps)},
		AwsEnvironments:           New[models.AwsEnvironment, models.AwsEnvironmentCreate, models.AwsEnvironmentUpdate](AwsEnvironmentsDef, deps),
		AwsEnvironmentCredentials: New[models.AwsEnvironmentCredential, models.AwsEnvironmentCredentialCreate, models.AwsEnvironmentCredentialUpdate](AwsEnvironmentCredentialsDef, deps),
		AwsRangeSpecs:             New[models.AwsRangeSpec, models.AwsRangeSpecCreate, models.AwsRangeSpecUpdate](AwsRangeSpecsDef, deps),
		Scenarios:                 New[models.Scenario, models.ScenarioCreate, models.ScenarioUpdate](ScenariosDef, deps),
		RangeVolumes:              New[models.RangeVolume, models.RangeVolumeCreate, models.RangeVolumeUpdate](RangeVolumesDef, deps),
		Certificates:              New[models.RangeCert, models.RangeCertCreate, models.RangeCertUpdate](CertificatesDef, deps),
		ContainerSpecs:            New[models.ContainerSpec, models.ContainerSpecCreate, models.ContainerSpecUpdate](ContainerSpecsDef, deps),
		RangeDNSZones:             New[models.RangeDNSZone, models.RangeDNSZoneCreate, models.RangeDNSZoneUpdate](RangeDNSZonesDef, deps),
		RangeDNSRecords:           New[models.RangeDNSRecord, models.RangeDNSRecordCreate, models.RangeDNSRecordUpdate](RangeDNSRecordsDef, deps),
		VMImages:                  New[models.VMImage, models.VMImageCreate, models.VMImageUpdate](VMImagesDef, deps),
		Charts:                    New[models.Chart, models.ChartCreate, models.ChartUpdate](ChartsDef, deps),

		BackgroundJobs: NewBackgroundJobs(deps),
		RangeGraph:     NewRangeGraph(deps),
	}
}

// Definitions lists every REST resource definition.
func Definitions() []Definition {
	return []Definition{
		RangesDef, RangeIPsDef, RangeVMsDef,
		AwsEnvironmentsDef, AwsEnvironmentCredentialsDef, AwsRangeSpecsDef,
		ScenariosDef, RangeVolumesDef, CertificatesDef, ContainerSpecsDef,
		RangeDNSZonesDef, RangeDNSRecordsDef, VMImagesDef, ChartsDef,
	}
}
