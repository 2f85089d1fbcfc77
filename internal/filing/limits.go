package filing

import (
	"fmt"

	"github.com/dmitrijs2005/taxdesk/internal/common"
)

// DefaultAcceptedTypes mirrors the upload form's accept list.
var DefaultAcceptedTypes = []string{
	"image/*", "application/pdf", ".hwp", ".hwpx", ".doc", ".docx", ".xls", ".xlsx", ".zip",
}

// UploadLimits is the upload configuration surface. The server publishes
// its values so clients stage and chunk files the same way.
type UploadLimits struct {
	MaxFiles            int      `json:"maxFiles" yaml:"max_files"`
	MaxFileSizeMB       int      `json:"maxFileSizeMB" yaml:"max_file_size_mb"`
	AcceptedTypes       []string `json:"acceptedTypes" yaml:"accepted_types"`
	ChunkSizeBytes      int64    `json:"chunkSizeBytes" yaml:"chunk_size_bytes"`
	MaxRetries          int      `json:"maxRetries" yaml:"max_retries"`
	SignedURLTTLSeconds int      `json:"signedUrlTtlSeconds" yaml:"signed_url_ttl_seconds"`
}

func DefaultUploadLimits() UploadLimits {
	return UploadLimits{
		MaxFiles:            5,
		MaxFileSizeMB:       10,
		AcceptedTypes:       append([]string(nil), DefaultAcceptedTypes...),
		ChunkSizeBytes:      2 * common.MiB,
		MaxRetries:          3,
		SignedURLTTLSeconds: 3600,
	}
}

// MaxFileBytes is MaxFileSizeMB in bytes.
func (l UploadLimits) MaxFileBytes() int64 {
	return int64(l.MaxFileSizeMB) * common.MiB
}

// CheckBatch rejects a batch of files the upload form would refuse: more
// than MaxFiles, any file above MaxFileSizeMB or of a type not in
// AcceptedTypes.
func (l UploadLimits) CheckBatch(files []FileInfo) error {
	if len(files) > l.MaxFiles {
		return &common.ValidationError{
			Reason: common.TooManyFiles,
			Detail: fmt.Sprintf("at most %d files may be attached", l.MaxFiles),
		}
	}
	for _, f := range files {
		if f.Size > l.MaxFileBytes() {
			return &common.ValidationError{Reason: common.FileTooLarge, Field: f.Name,
				Detail: fmt.Sprintf("larger than %d MB", l.MaxFileSizeMB)}
		}
		if !AcceptsType(l.AcceptedTypes, f.Name, f.Type) {
			return &common.ValidationError{Reason: common.UnacceptedType, Field: f.Name,
				Detail: "file type is not accepted"}
		}
	}
	return nil
}

// FileInfo is the metadata CheckBatch looks at.
type FileInfo struct {
	Name string
	Type string
	Size int64
}
