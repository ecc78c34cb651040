package models

// Status values reported by ranges, range resources and environments.
const (
	StatusReady    = "Ready"
	StatusError    = "Error"
	StatusDeleting = "Deleting"
	StatusCreating = "Creating"
	StatusStopped  = "Stopped"
	StatusStopping = "Stopping"
)

// Range is a deployed cyber range.
type Range struct {
	Meta
	BootstrapType string `json:"bootstrapType" validate:"oneof=aws vsphere"`
	Type          string `json:"type"`
	Environment   string `json:"environment,omitempty"`
	Specification string `json:"specification"`
	Status        string `json:"status,omitempty"`
	Message       string `json:"message,omitempty"`
	Ready         *bool  `json:"ready,omitempty"`
}

type RangeCreate struct {
	Described
	BootstrapType string `json:"bootstrapType" validate:"required,oneof=aws vsphere"`
	Environment   string `json:"environment,omitempty"`
	Specification string `json:"specification" validate:"required"`
}

type RangeUpdate struct {
	Described
}

// RangeIP is an IP address resource deployed into a range scenario.
type RangeIP struct {
	Meta
	Address        *string `json:"address"`
	Latitude       *string `json:"latitude"`
	Longitude      *string `json:"longitude"`
	CountryCode    *string `json:"countryCode,omitempty"`
	RangeL3Network string  `json:"rangeL3Network,omitempty"`
	ControlNet     bool    `json:"controlNet"`
	Ready          bool    `json:"ready"`
	Status         string  `json:"status"`
}

type RangeIPCreate struct {
	Described
	Address        string `json:"address,omitempty" validate:"omitempty,cidr|ip"`
	CountryCode    string `json:"countryCode,omitempty" validate:"omitempty,iso3166_1_alpha2"`
	RangeL3Network string `json:"rangeL3Network,omitempty"`
	ControlNet     bool   `json:"controlNet"`
}

type RangeIPUpdate = RangeIPCreate

// VMDisk is one disk attached to a range VM.
type VMDisk struct {
	VMImage      string `json:"vmImage"`
	StorageClass string `json:"storageClass,omitempty"`
	Storage      string `json:"storage"`
}

// RangeVM is a KubeVirt virtual machine running in a range scenario.
type RangeVM struct {
	Meta
	CPUCores          int      `json:"cpuCores,omitempty"`
	Memory            string   `json:"memory,omitempty"`
	Disks             []VMDisk `json:"disks"`
	Running           bool     `json:"running"`
	Status            string   `json:"status"`
	KubevirtVMStatus  string   `json:"kubevirtVmStatus"`
	KubevirtVMMessage string   `json:"kubevirtVmMessage"`
}

type RangeVMCreate struct {
	Described
	CPUCores int      `json:"cpuCores" validate:"gte=1,lte=128"`
	Memory   string   `json:"memory" validate:"required"`
	Disks    []VMDisk `json:"disks" validate:"dive"`
}

type RangeVMUpdate = RangeVMCreate

// RangeScenario is a scenario deployed into a range.
type RangeScenario struct {
	Meta
	ScenarioID string `json:"scenarioId"`
	Status     string `json:"status"`
}

// Scenario is a scenario template in the content library.
type Scenario struct {
	Meta
	Tags                    []string `json:"metadata_tags,omitempty"`
	Packages                []string `json:"packages,omitempty"`
	ContainerSpecifications []string `json:"containerSpecifications,omitempty"`
}

type ScenarioCreate struct {
	Described
	Tags                    []string `json:"metadata_tags,omitempty"`
	Packages                []string `json:"packages,omitempty"`
	ContainerSpecifications []string `json:"containerSpecifications,omitempty"`
}

type ScenarioUpdate = ScenarioCreate

// RangeVolume is a persistent volume definition.
type RangeVolume struct {
	Meta
	Storage string `json:"storage"`
	Volume  string `json:"volume,omitempty"`
}

type RangeVolumeCreate struct {
	Described
	Storage string `json:"storage" validate:"required"`
}

type RangeVolumeUpdate = RangeVolumeCreate

// RangeCert is a certificate issued by a range PKI.
type RangeCert struct {
	Meta
	CommonName string   `json:"commonName"`
	DNSNames   []string `json:"dnsNames,omitempty"`
	IsCA       bool     `json:"isCA"`
	Issuer     string   `json:"issuer,omitempty"`
}

type RangeCertCreate struct {
	Described
	CommonName string   `json:"commonName" validate:"required"`
	DNSNames   []string `json:"dnsNames,omitempty" validate:"dive,hostname_rfc1123"`
	IsCA       bool     `json:"isCA"`
	Issuer     string   `json:"issuer,omitempty"`
}

type RangeCertUpdate = RangeCertCreate
