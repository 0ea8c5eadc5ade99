package platform

// AuthConfig is a reusable platform credential reference for a toolkit.
type AuthConfig struct {
	ID      string `json:"id"`
	Toolkit string `json:"toolkit,omitempty"`
}

// Server is a provisioned gateway server.
type Server struct {
	ID  string `json:"id"`
	URL string `json:"mcp_url"`
}
