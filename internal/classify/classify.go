// Package classify normalizes raw billing rows into the canonical cost
// record schema. Classification is deterministic: the same row always
// produces the same record, so a replayed task yields identical output.
package classify

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/fetch"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/api"
	perrors "github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/errors"
)

const (
	provider = "aws"

	// serviceCredit is the provider's credit bucket, filtered out unless
	// the data source opts in.
	serviceCredit = "Credit"

	serviceDataTransfer = "AWSDataTransfer"
	serviceCloudFront   = "AmazonCloudFront"
)

// Classifier turns raw rows into normalized cost records.
type Classifier struct {
	accountID     string
	includeCredit bool
	log           zerolog.Logger
}

func New(accountID string, includeCredit bool, log zerolog.Logger) *Classifier {
	return &Classifier{
		accountID:     accountID,
		includeCredit: includeCredit,
		log:           log,
	}
}

// Batch classifies one page of rows. A row the classifier drops (credit
// filtering) is excluded from the output; a row that cannot be
// classified aborts the whole page.
func (c *Classifier) Batch(rows []fetch.BillingRow) ([]*api.CostRecord, error) {
	records := make([]*api.CostRecord, 0, len(rows))

	for i := range rows {
		record, err := c.Record(&rows[i])
		if err != nil {
			c.log.Error().Err(err).Msg("record classification failed")
			return nil, err
		}
		if record == nil {
			continue
		}
		records = append(records, record)
	}

	return records, nil
}

// Record classifies a single row. A nil record with nil error means the
// row was filtered, not failed.
func (c *Classifier) Record(row *fetch.BillingRow) (*api.CostRecord, error) {
	if row.ServiceCode == nil {
		return nil, perrors.NewClassification("service_code")
	}
	serviceCode := *row.ServiceCode

	if serviceCode == serviceCredit && !c.includeCredit {
		return nil, nil
	}

	if row.UsageType == nil {
		return nil, perrors.NewClassification("usage_type")
	}
	if row.UsageQuantity == nil {
		return nil, perrors.NewClassification("usage_quantity")
	}
	if row.UsageDate == nil {
		return nil, perrors.NewClassification("usage_date")
	}

	region := ""
	if row.Region != nil {
		region = *row.Region
	}

	cost := 0.0
	if row.UsageCost != nil {
		cost = *row.UsageCost
	}

	record := &api.CostRecord{
		Cost:          cost,
		UsageQuantity: *row.UsageQuantity,
		Provider:      provider,
		RegionCode:    ResolveRegion(region),
		Product:       serviceCode,
		UsageType:     *row.UsageType,
		BilledDate:    *row.UsageDate,
		AdditionalInfo: map[string]interface{}{
			"Account ID": c.accountID,
		},
		Tags: ParseTags(row.Tags, c.log),
	}

	if row.InstanceType != nil {
		record.AdditionalInfo["Instance Type"] = *row.InstanceType
	}
	if row.UsageUnit != nil {
		record.UsageUnit = *row.UsageUnit
	}

	c.applyUsageTypeRules(record, serviceCode, *row.UsageType)

	return record, nil
}

// applyUsageTypeRules derives the usage unit and the "Usage Type Details"
// annotation. Rule order is part of the contract: data-transfer rules
// before CloudFront rules, and inside CloudFront the HTTPS marker before
// the outbound-bytes marker.
func (c *Classifier) applyUsageTypeRules(record *api.CostRecord, serviceCode, usageType string) {
	switch serviceCode {
	case serviceDataTransfer:
		record.UsageUnit = "Bytes"
		if strings.Index(usageType, "-In-Bytes") > 0 {
			record.AdditionalInfo["Usage Type Details"] = "Transfer In"
		} else if strings.Index(usageType, "-Out-Bytes") > 0 {
			record.AdditionalInfo["Usage Type Details"] = "Transfer Out"
		} else {
			record.AdditionalInfo["Usage Type Details"] = "Transfer Etc"
		}
	case serviceCloudFront:
		if strings.Index(usageType, "-HTTPS") > 0 {
			record.UsageUnit = "Count"
			record.AdditionalInfo["Usage Type Details"] = "HTTPS Requests"
		} else if strings.Index(usageType, "-Out-Bytes") > 0 {
			record.UsageUnit = "GB"
			record.AdditionalInfo["Usage Type Details"] = "Transfer Out"
		} else {
			record.UsageUnit = "Count"
			record.AdditionalInfo["Usage Type Details"] = "HTTP Requests"
		}
	}
}
