// Package querykey is the registry of cache namespaces, one per resource type.
// Every cached query is stored under a key whose first element is one of
// these values, and mutations invalidate by that first element.
package querykey

import "sort"

// Key names one resource type in the query cache.
type Key string

const (
	AwsEnvironmentCredentials Key = "aws-environment-credentials"
	AwsEnvironments           Key = "environments-aws"
	AwsRangeSpecs             Key = "aws-range-specs"
	BackgroundJobs            Key = "background-jobs"
	Certificates              Key = "range-certs"
	Charts                    Key = "charts"
	ContainerSpecs            Key = "container-specs"
	RangeDNSRecords           Key = "range-dns-records"
	RangeDNSZones             Key = "range-dns-zones"
	RangeIPs                  Key = "range-ips"
	RangeResourceVMs          Key = "range-resource-vms"
	RangeVolumes              Key = "range-volumes"
	Ranges                    Key = "ranges"
	Scenarios                 Key = "scenarios"
	VMImages                  Key = "vm-images"
)

var all = []Key{
	AwsEnvironmentCredentials,
	AwsEnvironments,
	AwsRangeSpecs,
	BackgroundJobs,
	Certificates,
	Charts,
	ContainerSpecs,
	RangeDNSRecords,
	RangeDNSZones,
	RangeIPs,
	RangeResourceVMs,
	RangeVolumes,
	Ranges,
	Scenarios,
	VMImages,
}

var byName = func() map[string]Key {
	m := make(map[string]Key, len(all))
	for _, k := range all {
		m[string(k)] = k
	}
	return m
}()

// String implements fmt.Stringer.
func (k Key) String() string { return string(k) }

// All returns every registered key in lexical order.
func All() []Key {
	out := make([]Key, len(all))
	copy(out, all)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Lookup resolves a key by its string value.
func Lookup(name string) (Key, bool) {
	k, ok := byName[name]
	return k, ok
}
