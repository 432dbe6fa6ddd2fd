package classify

// regionMap translates the provider's billing region abbreviations into
// canonical region slugs. Loaded once for the process lifetime; unknown
// abbreviations pass through unchanged.
var regionMap = map[string]string{
	"APE1": "ap-east-1",
	"APN1": "ap-northeast-1",
	"APN2": "ap-northeast-2",
	"APN3": "ap-northeast-3",
	"APS1": "ap-southeast-1",
	"APS2": "ap-southeast-2",
	"APS3": "ap-south-1",
	"CAN1": "ca-central-1",
	"CPT":  "af-south-1",
	"EUN1": "eu-north-1",
	"EUC1": "eu-central-1",
	"EU":   "eu-west-1",
	"EUW2": "eu-west-2",
	"EUW3": "eu-west-3",
	"MES1": "me-south-1",
	"SAE1": "sa-east-1",
	"UGW1": "AWS GovCloud (US-West)",
	"UGE1": "AWS GovCloud (US-East)",
	"USE1": "us-east-1",
	"USE2": "us-east-2",
	"USW1": "us-west-1",
	"USW2": "us-west-2",
	"AP":   "Asia Pacific",
	"AU":   "Australia",
	"CA":   "Canada",
	"IN":   "India",
	"JP":   "Japan",
	"ME":   "Middle East",
	"SA":   "South America",
	"US":   "United States",
	"ZA":   "South Africa",
}

// defaultRegion is assumed when a record carries no region at all.
const defaultRegion = "USE1"

// ResolveRegion maps a raw billing region code to its canonical slug.
// Unknown codes are returned as-is, never an error.
func ResolveRegion(code string) string {
	if code == "" {
		code = defaultRegion
	}
	if slug, ok := regionMap[code]; ok {
		return slug
	}
	return code
}
