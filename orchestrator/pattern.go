package orchestrator

import "maps"

// Pattern is one unit of detected behavior. Records are compared by value,
// not identity, so two structurally equal detections are one pattern.
type Pattern struct {
	Category    string            `json:"category"`
	CampaignID  string            `json:"campaign_id"`
	Environment string            `json:"environment,omitempty"`
	Role        string            `json:"role,omitempty"`
	Score       float64           `json:"score"`
	Anomaly     bool              `json:"anomaly,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// Equal reports structural equality, including attribute maps.
func (p Pattern) Equal(other Pattern) bool {
	return p.Category == other.Category &&
		p.CampaignID == other.CampaignID &&
		p.Environment == other.Environment &&
		p.Role == other.Role &&
		p.Score == other.Score &&
		p.Anomaly == other.Anomaly &&
		maps.Equal(p.Attributes, other.Attributes)
}

// campaign returns the owning campaign, defaulting like the rest of the
// platform when a record omits it.
func (p Pattern) campaign() string {
	if p.CampaignID == "" {
		return "default"
	}
	return p.CampaignID
}

// category returns the KPI category, defaulting to the generic bucket.
func (p Pattern) category() string {
	if p.Category == "" {
		return "pattern"
	}
	return p.Category
}
