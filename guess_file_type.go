package filestag

import (
	"mime"
	"net/http"
	"path"
	"strings"
)

// Common MIME types
const (
	MIMETypeTextPlain       = "text/plain"
	MIMETypeApplicationJSON = "application/json"
	MIMETypeApplicationZip  = "application/zip"
	MIMETypeOctetStream     = "application/octet-stream"
)

var extensionToMIME = map[string]string{
	".txt":     MIMETypeTextPlain,
	".csv":     "text/csv",
	".md":      "text/markdown",
	".html":    "text/html",
	".json":    MIMETypeApplicationJSON,
	".xml":     "application/xml",
	".zip":     MIMETypeApplicationZip,
	".gz":      "application/gzip",
	".tar":     "application/x-tar",
	".parquet": "application/vnd.apache.parquet",
	".npy":     MIMETypeOctetStream,
	".jpg":     "image/jpeg",
	".jpeg":    "image/jpeg",
	".png":     "image/png",
	".gif":     "image/gif",
	".svg":     "image/svg+xml",
	".webp":    "image/webp",
	".mp4":     "video/mp4",
	".pdf":     "application/pdf",
}

// GuessContentType determines the content type of a stored file from its
// name and, failing that, its data. Cloud sinks send it with every upload.
func GuessContentType(name string, data []byte) string {
	ext := strings.ToLower(path.Ext(name))
	if contentType, ok := extensionToMIME[ext]; ok {
		return contentType
	}

	if len(data) > 0 {
		return http.DetectContentType(data)
	}

	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}

	return MIMETypeOctetStream
}
