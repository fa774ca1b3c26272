package pdfcreator

// pageInfo describes one page in a session listing.
type pageInfo struct {
	// Position is the 1-based position in the output order.
	Position int `json:"position"`

	// ID is the asset's opaque identifier.
	ID string `json:"id"`

	// Kind is "image" or "pdf_page".
	Kind string `json:"kind"`

	// DisplayName is the page label shown to the user.
	DisplayName string `json:"display_name"`

	// PreviewPath is the raster to thumbnail, and the stable token to send
	// back in the next update_pages call to keep or move this page.
	PreviewPath string `json:"preview_path"`

	// SourcePath is the originating file.
	SourcePath string `json:"source_path"`

	// PageIndex is the zero-based page number within the source PDF; 0 for
	// images.
	PageIndex int `json:"page_index"`
}

// pagesResponse is returned by update_pages and status.
type pagesResponse struct {
	Session      string     `json:"session"`
	Pages        []pageInfo `json:"pages"`
	RemovedPages int        `json:"removed_pages,omitempty"`
	OutputPath   string     `json:"output_path,omitempty"`
	Hints        string     `json:"hints,omitempty"`
}

// convertResponse is returned by create_pdf.
type convertResponse struct {
	Session     string `json:"session"`
	OutputPath  string `json:"output_path"`
	Filename    string `json:"filename"`
	Pages       int    `json:"pages"`
	Compression string `json:"compression"`
}

// clearResponse is returned by clear.
type clearResponse struct {
	Session string `json:"session"`
	Cleared bool   `json:"cleared"`
}
