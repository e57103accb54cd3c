package protocol

// Resource represents a concrete resource exposed by a provider
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceTemplate is a parameterized resource address using {name} placeholders
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourcesParams defines parameters for listing resources
type ListResourcesParams struct {
	PaginatedParams
}

// ListResourcesResult defines the response for listing resources
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
	PaginatedResult
}

// ListResourceTemplatesParams defines parameters for listing resource templates
type ListResourceTemplatesParams struct {
	PaginatedParams
}

// ListResourceTemplatesResult defines the response for listing resource templates
type ListResourceTemplatesResult struct {
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
	PaginatedResult
}

// ReadResourceParams defines parameters for reading a resource
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ResourceContents holds either text or a base64 blob.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// IsBlob reports whether the contents are binary.
func (c ResourceContents) IsBlob() bool {
	return c.Blob != ""
}

// ReadResourceResult defines the response for reading a resource
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

// Text concatenates the text of all textual contents.
func (r *ReadResourceResult) Text() string {
	var out string
	for _, c := range r.Contents {
		out += c.Text
	}
	return out
}

// SubscribeResourceParams defines parameters for resources/subscribe and resources/unsubscribe
type SubscribeResourceParams struct {
	URI string `json:"uri"`
}

// ResourceUpdatedParams defines parameters for the resources/updated notification
type ResourceUpdatedParams struct {
	URI string `json:"uri"`
}
