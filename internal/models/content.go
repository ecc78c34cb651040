package models

import "time"

// ContainerSpec is a Helm-chart based container definition.
type ContainerSpec struct {
	Meta
	Chart           string            `json:"chart"`
	ChartVersion    string            `json:"chartVersion"`
	RangeCerts      map[string]string `json:"rangeCerts,omitempty"`
	RangeDNSRecords map[string]string `json:"rangeDNSRecords,omitempty"`
	RangeIPs        map[string]string `json:"rangeIPs,omitempty"`
	RangeVolumes    map[string]string `json:"rangeVolumes,omitempty"`
	Values          map[string]any    `json:"values,omitempty"`
}

type ContainerSpecCreate struct {
	Described
	Chart        string         `json:"chart" validate:"required"`
	ChartVersion string         `json:"chartVersion" validate:"required"`
	Values       map[string]any `json:"values,omitempty"`
}

type ContainerSpecUpdate = ContainerSpecCreate

// VMImage is a bootable disk image in the asset library.
type VMImage struct {
	Meta
	Filename    string         `json:"filename"`
	Size        int64          `json:"size"`
	BootDetails map[string]any `json:"bootDetails,omitempty"`
}

type VMImageCreate struct {
	Described
	Filename string `json:"filename" validate:"required"`
}

type VMImageUpdate struct {
	Described
}

// RangeDNSZone is an authoritative zone served inside a range.
type RangeDNSZone struct {
	Meta
	TTL          int      `json:"ttl"`
	MasterNS     string   `json:"masterNs"`
	Email        string   `json:"email"`
	Serial       int64    `json:"serial"`
	Refresh      int      `json:"refresh"`
	Retry        int      `json:"retry"`
	Expire       int      `json:"expire"`
	MinimumTTL   int      `json:"minimumTTL"`
	TagSelectors []string `json:"tagSelectors,omitempty"`
}

type RangeDNSZoneCreate struct {
	Described
	TTL      int    `json:"ttl" validate:"gte=0"`
	MasterNS string `json:"masterNs" validate:"required,fqdn"`
	Email    string `json:"email" validate:"required,email"`
}

type RangeDNSZoneUpdate = RangeDNSZoneCreate

// RangeDNSRecord is a single record of a RangeDNSZone.
type RangeDNSRecord struct {
	Meta
	RecordClass  string `json:"recordClass"`
	TTL          int    `json:"ttl"`
	Type         string `json:"type"`
	Data         string `json:"data"`
	RangeDNSZone string `json:"rangeDNSZone"`
}

type RangeDNSRecordCreate struct {
	Described
	RecordClass  string `json:"recordClass" validate:"required,oneof=IN CH HS"`
	TTL          int    `json:"ttl" validate:"gte=0"`
	Type         string `json:"type" validate:"required,oneof=A AAAA CNAME MX NS PTR SRV TXT"`
	Data         string `json:"data" validate:"required"`
	RangeDNSZone string `json:"rangeDNSZone" validate:"required"`
}

type RangeDNSRecordUpdate = RangeDNSRecordCreate

// ChartVersion is one published version of a Helm chart.
type ChartVersion struct {
	UUID        string    `json:"uuid"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Version     string    `json:"version"`
	AppVersion  string    `json:"appVersion,omitempty"`
	Digest      string    `json:"digest,omitempty"`
	Author      string    `json:"author,omitempty"`
	DateCreated time.Time `json:"dateCreated"`
}

// Chart groups chart versions by name. Charts are addressed by name, not uuid.
type Chart struct {
	Name     string         `json:"name"`
	Versions []ChartVersion `json:"versions"`
}

func (c Chart) ID() string          { return c.Name }
func (c Chart) DisplayName() string { return c.Name }

// ChartCreate publishes a chart version.
type ChartCreate struct {
	Name        string `json:"name" validate:"required,max=253"`
	Version     string `json:"version" validate:"required"`
	Description string `json:"description,omitempty"`
	AppVersion  string `json:"appVersion,omitempty"`
}

type ChartUpdate = ChartCreate

// BackgroundJob is a long-running server task, read through GraphQL.
type BackgroundJob struct {
	UUID       string     `json:"uuid"`
	Name       string     `json:"name"`
	ScenarioID string     `json:"scenarioId"`
	State      string     `json:"state"`
	Progress   int        `json:"progress"`
	Message    string     `json:"message,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Background job states.
const (
	JobQueued    = "queued"
	JobActive    = "active"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Done reports whether the job reached a terminal state.
func (j BackgroundJob) Done() bool {
	return j.State == JobCompleted || j.State == JobFailed
}

func (j BackgroundJob) ID() string          { return j.UUID }
func (j BackgroundJob) DisplayName() string { return j.Name }

// RangeGraph is a range with its deployed resources, read through GraphQL.
type RangeGraph struct {
	UUID      string               `json:"uuid"`
	Name      string               `json:"name"`
	Status    string               `json:"status"`
	Resources []RangeGraphResource `json:"resources"`
}

type RangeGraphResource struct {
	UUID   string `json:"uuid"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Ready  bool   `json:"ready"`
	Status string `json:"status,omitempty"`
}
