package models

// AwsEnvironment is an AWS deployment target for ranges.
type AwsEnvironment struct {
	Meta
	EnvironmentSpec        string `json:"environmentSpec,omitempty"`
	EnvironmentCredentials string `json:"environmentCredentials,omitempty"`
	AwsRegion              string `json:"awsRegion"`
	AwsAvailabilityZone    string `json:"awsAvailabilityZone"`
	Status                 string `json:"status,omitempty"`
	Message                string `json:"message,omitempty"`
}

type AwsEnvironmentCreate struct {
	Described
	EnvironmentSpec        string `json:"environmentSpec" validate:"required"`
	EnvironmentCredentials string `json:"environmentCredentials" validate:"required"`
	AwsRegion              string `json:"awsRegion" validate:"required"`
	AwsAvailabilityZone    string `json:"awsAvailabilityZone" validate:"required"`
}

type AwsEnvironmentUpdate = AwsEnvironmentCreate

// AwsEnvironmentCredential holds the access key used by an AWS environment.
// The secret is write-only from the client's point of view.
type AwsEnvironmentCredential struct {
	Meta
	AccessKeyID                  string `json:"accessKeyId"`
	AccessKeySecret              string `json:"accessKeySecret,omitempty"`
	DefaultRegion                string `json:"defaultRegion"`
	EnvironmentCredentialRancher string `json:"environmentCredentialRancher,omitempty"`
}

type AwsEnvironmentCredentialCreate struct {
	Described
	AccessKeyID     string `json:"accessKeyId" validate:"required,alphanum,len=20"`
	AccessKeySecret string `json:"accessKeySecret" validate:"required"`
	DefaultRegion   string `json:"defaultRegion" validate:"required"`
}

type AwsEnvironmentCredentialUpdate = AwsEnvironmentCredentialCreate

// AwsRangeSpec describes the AWS resources a range is built from.
type AwsRangeSpec struct {
	Meta
	InstanceType string   `json:"instanceType,omitempty"`
	Subnets      []string `json:"subnets,omitempty"`
}

type AwsRangeSpecCreate struct {
	Described
	InstanceType string   `json:"instanceType" validate:"required"`
	Subnets      []string `json:"subnets,omitempty" validate:"dive,cidr"`
}

type AwsRangeSpecUpdate = AwsRangeSpecCreate
