package models

// Stats summarizes the contents of the store.
type Stats struct {
	FileCount     int64 `json:"fileCount" yaml:"fileCount"`
	AnalysisCount int64 `json:"analysisCount" yaml:"analysisCount"`
	MessageCount  int64 `json:"messageCount" yaml:"messageCount"`
	StorageSize   int64 `json:"storageSize" yaml:"storageSize"`
}
