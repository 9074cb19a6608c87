package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"mime"
	"os"
	"path/filepath"

	"auditx/internal"
)

// LoadEvidenceFiles reads local files for upload, guessing content types
// from the extension.
func LoadEvidenceFiles(paths []string) ([]internal.EvidenceFile, error) {
	out := make([]internal.EvidenceFile, 0, len(paths))
	for _, path := range paths {
		blob, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		out = append(out, internal.EvidenceFile{Name: filepath.Base(path), ContentType: contentType, Content: blob})
	}
	return out, nil
}

// EvidenceDocuments extracts indexable text from uploaded files. Files
// without a text reader are skipped; blobNames pairs each file with its
// stored object name when known.
func EvidenceDocuments(auditID string, files []internal.EvidenceFile, blobNames map[string]string) []internal.EvidenceDocument {
	out := []internal.EvidenceDocument{}
	for _, f := range files {
		extracted, err := ExtractEvidenceText(f.Name, f.ContentType, f.Content)
		if err != nil || extracted.Text == "" {
			continue
		}
		blob := blobNames[f.Name]
		out = append(out, internal.EvidenceDocument{
			ID:       evidenceDocumentID(auditID, f.Name, blob),
			AuditID:  auditID,
			Title:    f.Name,
			Content:  extracted.Text,
			BlobName: blob,
			Source:   extracted.Kind,
		})
	}
	return out
}

// evidenceDocumentID is stable per audit and file so re-indexing the same
// evidence replaces the earlier document.
func evidenceDocumentID(auditID, name, blob string) string {
	sum := sha256.Sum256([]byte(auditID + "|" + name + "|" + blob))
	return hex.EncodeToString(sum[:16])
}
