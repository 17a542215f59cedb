package utils

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dggscli/internal/models"
)

func FormatBytes(bytes int64) string {
	if bytes < 0 {
		return "unknown"
	}
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatMegabytes renders a size in decimal megabytes with two decimals,
// the unit used in per-file log lines.
func FormatMegabytes(bytes int64) string {
	if bytes < 0 {
		return "unknown size"
	}
	return fmt.Sprintf("%.2f MB", float64(bytes)/1e6)
}

func PrintJSON(data interface{}) error {
	jsonOutput, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(jsonOutput))
	return nil
}

func PrintError(err error, command string) {
	errorResp := models.ErrorResponse{
		Error:     err.Error(),
		Timestamp: time.Now().Format(time.RFC3339),
		Command:   command,
	}
	err = PrintJSON(errorResp)
	if err != nil {
		zap.S().Errorw("Failed to print error in JSON format", "error", err)
		fmt.Println("Error: ", errorResp)
		return
	}
}

func FormatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func FormatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
