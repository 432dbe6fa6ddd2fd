// Package spaceone implements the coordinating-service collaborator:
// token-authenticated JSON dispatch of Project and ServiceAccount
// operations against a SpaceONE endpoint.
package spaceone

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/api"
	perrors "github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/errors"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/platform"
)

const dispatchTimeout = 30 * time.Second

// Client dispatches coordinator operations over HTTP.
type Client struct {
	endpoint string
	token    string
	http     *platform.HTTPClient
	log      zerolog.Logger
}

// NewClient validates the coordinator credentials and builds a client.
func NewClient(secret *api.SecretData, log zerolog.Logger) (*Client, error) {
	if secret == nil {
		return nil, perrors.NewMissingParameter("secret_data")
	}
	if secret.SpaceONEEndpoint == "" {
		return nil, perrors.NewMissingParameter("secret_data.spaceone_endpoint")
	}
	if secret.SpaceONEClientSecret == "" {
		return nil, perrors.NewMissingParameter("secret_data.spaceone_client_secret")
	}

	return &Client{
		endpoint: strings.TrimRight(secret.SpaceONEEndpoint, "/"),
		token:    secret.SpaceONEClientSecret,
		http:     platform.NewHTTPClient(dispatchTimeout),
		log:      log,
	}, nil
}

// VerifyPlugin probes the coordinator with a Project.list scoped to the
// domain. Any dispatch failure is surfaced to the caller.
func (c *Client) VerifyPlugin(ctx context.Context, domainID string) error {
	var out api.ProjectList
	return c.dispatch(ctx, "Project.list", projectQuery(domainID), &out)
}

// ListProjects returns the projects tagged with the domain.
func (c *Client) ListProjects(ctx context.Context, domainID string) (*api.ProjectList, error) {
	var out api.ProjectList
	if err := c.dispatch(ctx, "Project.list", projectQuery(domainID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListServiceAccounts returns every AWS service account under a project.
func (c *Client) ListServiceAccounts(ctx context.Context, projectID string) (*api.ServiceAccountList, error) {
	params := map[string]interface{}{
		"provider":   "aws",
		"project_id": projectID,
	}

	var out api.ServiceAccountList
	if err := c.dispatch(ctx, "ServiceAccount.list", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetServiceAccount reads one service account with its current tags.
func (c *Client) GetServiceAccount(ctx context.Context, serviceAccountID string) (*api.ServiceAccount, error) {
	params := map[string]interface{}{
		"service_account_id": serviceAccountID,
	}

	var out api.ServiceAccount
	if err := c.dispatch(ctx, "ServiceAccount.get", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateServiceAccountTags writes the full tag map back. The caller owns
// the read-modify-write cycle; there is no version check.
func (c *Client) UpdateServiceAccountTags(ctx context.Context, serviceAccountID string, tags map[string]string) error {
	params := map[string]interface{}{
		"service_account_id": serviceAccountID,
		"tags":               tags,
	}

	var out api.ServiceAccount
	return c.dispatch(ctx, "ServiceAccount.update", params, &out)
}

func projectQuery(domainID string) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"filter": []map[string]interface{}{
				{"k": "tags.domain_id", "v": domainID, "o": "eq"},
			},
		},
	}
}

// dispatch posts the params for a dotted method name to its kebab-case
// URL path and decodes the JSON response into out.
func (c *Client) dispatch(ctx context.Context, method string, params interface{}, out interface{}) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", method, err)
	}

	url := c.endpoint + "/" + methodPath(method)
	c.log.Debug().Str("method", method).Str("url", url).Msg("dispatching coordinator call")

	resp, err := c.http.PostJSON(ctx, url, c.token, body)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return perrors.NewRemoteCall(method, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

// methodPath converts "ServiceAccount.list" to "service-account/list".
func methodPath(method string) string {
	var b strings.Builder
	for i, r := range method {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('-')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	path := strings.ReplaceAll(b.String(), ".", "/")
	return strings.ReplaceAll(path, "_", "-")
}
