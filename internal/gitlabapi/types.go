package gitlabapi

// Group represents a namespace node in the hosting hierarchy.
type Group struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	FullPath    string `json:"full_path"`
	Description string `json:"description"`
	ParentID    *int   `json:"parent_id"`
}

// Project represents a repository hosted beneath a group.
type Project struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
	Description       string `json:"description"`
	HTTPURLToRepo     string `json:"http_url_to_repo"`
}

// GroupCreatePayload describes a group creation request body.
type GroupCreatePayload struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	ParentID    int    `json:"parent_id"`
	Description string `json:"description,omitempty"`
}

// Instance identifies one hosting instance together with its access token.
type Instance struct {
	BaseURL string
	Token   string
}
