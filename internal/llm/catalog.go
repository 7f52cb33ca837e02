package llm

// Provider identifiers as stored in llm_configs.provider.
const (
	ProviderDeepSeek = "deepseek"
	ProviderKimi     = "kimi"
	ProviderGemini   = "gemini"
)

// Provider describes one supported model vendor for the settings UI.
type Provider struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	BaseURL string   `json:"base_url,omitempty"`
	Models  []string `json:"models"`
}

// DefaultModel returns the model used when a config does not name one.
func (p Provider) DefaultModel() string {
	if len(p.Models) == 0 {
		return ""
	}
	return p.Models[0]
}

var catalog = []Provider{
	{
		ID:      ProviderDeepSeek,
		Name:    "DeepSeek",
		BaseURL: "https://api.deepseek.com/v1",
		Models:  []string{"deepseek-chat", "deepseek-reasoner"},
	},
	{
		ID:      ProviderKimi,
		Name:    "Kimi (月之暗面)",
		BaseURL: "https://api.moonshot.cn/v1",
		Models:  []string{"moonshot-v1-8k", "moonshot-v1-32k", "moonshot-v1-128k"},
	},
	{
		ID:     ProviderGemini,
		Name:   "Gemini",
		Models: []string{"gemini-2.0-flash", "gemini-1.5-pro", "gemini-1.5-flash"},
	},
}

// Providers returns the catalog of supported providers.
func Providers() []Provider {
	out := make([]Provider, len(catalog))
	copy(out, catalog)
	return out
}

// ProviderByID looks up a provider in the catalog.
func ProviderByID(id string) (Provider, bool) {
	for _, p := range catalog {
		if p.ID == id {
			return p, true
		}
	}
	return Provider{}, false
}
