package models

// ProviderResponse is the public catalog entry for one provider.
// @Description Supported verification provider
type ProviderResponse struct {
	ID           string  `json:"id"`
	DisplayName  string  `json:"display_name"`
	RewardWeight float64 `json:"reward_weight"`
}

// NewProviderResponse strips the schema down to what the UI needs;
// template ids and extraction rules stay server-side.
func NewProviderResponse(s *ProviderSchema) ProviderResponse {
	return ProviderResponse{
		ID:           s.ProviderID,
		DisplayName:  s.DisplayName,
		RewardWeight: s.RewardWeight,
	}
}
