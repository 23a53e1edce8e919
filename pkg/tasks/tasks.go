// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// TextbookIngestTask asks the pipeline to extract, chunk, embed and index one
// uploaded textbook PDF.
type TextbookIngestTask struct {
	FileMD5    string `json:"file_md5"`
	ObjectName string `json:"object_name"`
	FileName   string `json:"file_name"`
	Grade      int    `json:"grade"`
	Subject    string `json:"subject"`
}
