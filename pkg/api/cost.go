package api

// CostRecord is the canonical normalized cost record shared across
// providers. Cost defaults to 0.0 when the source omits it; every other
// required source field fails classification instead.
type CostRecord struct {
	Cost           float64                `json:"cost"`
	UsageQuantity  float64                `json:"usage_quantity"`
	UsageUnit      string                 `json:"usage_unit,omitempty"`
	Provider       string                 `json:"provider"`
	RegionCode     string                 `json:"region_code"`
	Product        string                 `json:"product"`
	UsageType      string                 `json:"usage_type"`
	BilledDate     string                 `json:"billed_date"`
	AdditionalInfo map[string]interface{} `json:"additional_info"`
	Tags           map[string]interface{} `json:"tags"`
}

// CostBatch is one page of normalized records. The page bound caps
// memory per yield; it carries no semantic grouping. An empty Results
// slice is the stream's terminal sentinel.
type CostBatch struct {
	Results []*CostRecord `json:"results"`
}
