package models

// PlanEntry is one requested object and the keys it resolves to.
type PlanEntry struct {
	Path  string   `json:"path"`
	IsDir bool     `json:"is_dir"`
	Keys  []string `json:"keys"`
	Error string   `json:"error,omitempty"`
}

type PlanResult struct {
	BucketName   string      `json:"bucket_name"`
	Endpoint     string      `json:"endpoint"`
	OutputFolder string      `json:"output_folder"`
	Entries      []PlanEntry `json:"entries"`
	TotalKeys    int         `json:"total_keys"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
	Command   string `json:"command"`
}
