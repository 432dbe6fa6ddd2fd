// Package datasource handles plugin initialization metadata and
// credential verification against both collaborators.
package datasource

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/connector/awss3"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/connector/spaceone"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/api"
	perrors "github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/errors"
)

const defaultCurrency = "USD"

// Manager implements the DataSource operations.
type Manager struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Manager {
	return &Manager{log: log}
}

// Init validates the options and declares the plugin's static
// capability metadata.
func (m *Manager) Init(options *api.Options) (*api.InitResponse, error) {
	if options == nil {
		options = &api.Options{}
	}
	if err := ValidateOptions(options); err != nil {
		return nil, err
	}

	currency := options.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	return &api.InitResponse{
		Metadata: &api.Metadata{
			Currency:             currency,
			SupportedSecretTypes: []string{"MANUAL"},
			DataSourceRules: []api.DataSourceRule{
				{
					Name:            "match_service_account",
					ConditionsPolicy: "ALWAYS",
					Actions: map[string]api.RuleAction{
						"match_service_account": {
							Source: "additional_info.Account ID",
							Target: "data.account_id",
						},
					},
					Options: map[string]interface{}{"stop_processing": true},
				},
			},
		},
	}, nil
}

// Verify checks that the credentials can establish a session with both
// the coordinator and the billing bucket.
func (m *Manager) Verify(ctx context.Context, options *api.Options, secret *api.SecretData, domainID string) error {
	if options == nil {
		options = &api.Options{}
	}
	if err := ValidateOptions(options); err != nil {
		return err
	}

	client, err := spaceone.NewClient(secret, m.log)
	if err != nil {
		return err
	}
	if err := client.VerifyPlugin(ctx, domainID); err != nil {
		return err
	}

	_, err = awss3.NewConnector(ctx, secret, m.log)
	return err
}

// ValidateOptions enforces the configuration contract shared by every
// operation: a known task type and a resync lookback inside [3, 27].
// A fractional lookback is truncated, not rejected.
func ValidateOptions(options *api.Options) error {
	switch options.TaskType {
	case "", api.TaskTypeIdentity, api.TaskTypeDirectory:
	default:
		return perrors.NewInvalidParameter("task_type", "task_type should be 'identity' or 'directory'")
	}

	if options.ResyncDays != 0 {
		days := math.Trunc(options.ResyncDays)
		if days < 3 || days > 27 {
			return perrors.NewInvalidParameter("resync_days_from_last_synced_at", "resync_days_from_last_synced_at should be 3 ~ 27")
		}
		options.ResyncDays = days
	}

	return nil
}
