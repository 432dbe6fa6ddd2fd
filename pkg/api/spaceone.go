package api

// Project is a coordinator project entry. One project owns all the
// service accounts synced for a domain.
type Project struct {
	ProjectID string            `json:"project_id"`
	Name      string            `json:"name,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// ProjectList is the result of a Project.list dispatch.
type ProjectList struct {
	Results    []*Project `json:"results"`
	TotalCount int        `json:"total_count"`
}

// ServiceAccount is a coordinator service-account entry. Sync state
// lives in Tags: is_sync and an optional database partition override.
type ServiceAccount struct {
	ServiceAccountID string             `json:"service_account_id"`
	Name             string             `json:"name,omitempty"`
	Data             ServiceAccountData `json:"data"`
	Tags             map[string]string  `json:"tags,omitempty"`
}

// ServiceAccountData holds the provider-side identity of the account.
type ServiceAccountData struct {
	AccountID string `json:"account_id"`
}

// ServiceAccountList is the result of a ServiceAccount.list dispatch.
type ServiceAccountList struct {
	Results    []*ServiceAccount `json:"results"`
	TotalCount int               `json:"total_count"`
}
