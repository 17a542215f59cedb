package models

type DownloadItem struct {
	RequestedPath string `json:"requested_path"`
	Key           string `json:"key"`
	LocalPath     string `json:"local_path"`
	Size          int64  `json:"size"`
	Duration      string `json:"duration"`
}

type DownloadResult struct {
	BucketName       string         `json:"bucket_name"`
	OutputFolder     string         `json:"output_folder"`
	Items            []DownloadItem `json:"items"`
	TotalFiles       int            `json:"total_files"`
	TotalSizeBytes   int64          `json:"total_size_bytes"`
	TotalSizeHuman   string         `json:"total_size_human"`
	OperationTime    string         `json:"operation_time"`
	DownloadDuration string         `json:"download_duration"`
}
