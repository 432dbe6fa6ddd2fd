// Package api defines the shared request/response contracts for the plugin
// operation surface.
package api

// Options carries the plugin configuration attached to the data source.
type Options struct {
	TaskType      string  `json:"task_type,omitempty"`
	Currency      string  `json:"currency,omitempty"`
	Database      string  `json:"database,omitempty"`
	IncludeCredit bool    `json:"include_credit,omitempty"`
	ResyncDays    float64 `json:"resync_days_from_last_synced_at,omitempty"`
}

// SecretData carries the credentials for both collaborators. Delivered
// per request; the plugin holds no credential state between calls.
type SecretData struct {
	AWSAccessKeyID     string   `json:"aws_access_key_id,omitempty"`
	AWSSecretAccessKey string   `json:"aws_secret_access_key,omitempty"`
	AWSS3Bucket        string   `json:"aws_s3_bucket,omitempty"`
	RegionName         string   `json:"region_name,omitempty"`
	RoleARN            string   `json:"role_arn,omitempty"`
	ExternalID         string   `json:"external_id,omitempty"`
	Accounts           []string `json:"accounts,omitempty"`

	SpaceONEEndpoint     string `json:"spaceone_endpoint,omitempty"`
	SpaceONEClientSecret string `json:"spaceone_client_secret,omitempty"`
}

// InitRequest is the input for DataSource.init.
type InitRequest struct {
	Options  *Options `json:"options"`
	DomainID string   `json:"domain_id"`
}

// InitResponse declares static capability metadata.
type InitResponse struct {
	Metadata *Metadata `json:"metadata"`
}

// Metadata describes what the data source supports and how normalized
// records are matched back to service accounts.
type Metadata struct {
	Currency             string           `json:"currency"`
	SupportedSecretTypes []string         `json:"supported_secret_types"`
	DataSourceRules      []DataSourceRule `json:"data_source_rules"`
}

// DataSourceRule maps a field of the normalized record to an account
// identifier field on the coordinator side.
type DataSourceRule struct {
	Name             string                 `json:"name"`
	ConditionsPolicy string                 `json:"conditions_policy"`
	Actions          map[string]RuleAction  `json:"actions"`
	Options          map[string]interface{} `json:"options"`
}

// RuleAction is a single source-to-target field mapping.
type RuleAction struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// VerifyRequest is the input for DataSource.verify.
type VerifyRequest struct {
	Options    *Options    `json:"options"`
	SecretData *SecretData `json:"secret_data"`
	Schema     string      `json:"schema,omitempty"`
	DomainID   string      `json:"domain_id"`
}

// GetTasksRequest is the input for Job.get_tasks.
type GetTasksRequest struct {
	Options            *Options    `json:"options"`
	SecretData         *SecretData `json:"secret_data"`
	Schema             string      `json:"schema,omitempty"`
	Start              string      `json:"start,omitempty"`
	LastSynchronizedAt string      `json:"last_synchronized_at,omitempty"`
	DomainID           string      `json:"domain_id"`
}

// GetDataRequest is the input for Cost.get_data.
type GetDataRequest struct {
	Options     *Options     `json:"options"`
	SecretData  *SecretData  `json:"secret_data"`
	Schema      string       `json:"schema,omitempty"`
	TaskOptions *TaskOptions `json:"task_options"`
	DomainID    string       `json:"domain_id"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
