package upload

import (
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
)

var knownExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/avif": ".avif",
}

// ObjectKey returns a fresh object key under prefix. The extension follows
// contentType. filename only supplies it when contentType maps to none and
// the filename extension names an image type.
func ObjectKey(prefix, contentType, filename string) string {
	return path.Join(prefix, uuid.NewString()+extension(contentType, filename))
}

func extension(contentType, filename string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := knownExtensions[mt]; ok {
			return ext
		}
		if exts, err := mime.ExtensionsByType(mt); err == nil && len(exts) > 0 {
			return exts[0]
		}
	}
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" || len(ext) > 6 {
		return ""
	}
	if !strings.HasPrefix(mime.TypeByExtension(ext), "image/") {
		return ""
	}
	return ext
}
