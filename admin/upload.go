package admin

import (
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"scrollpress/common"
)

// Uploader stores images under cfg.Dir/YYYY/MM and returns their public URL.
type Uploader struct {
	cfg common.UploadConfig
}

func NewUploader(cfg common.UploadConfig) *Uploader {
	return &Uploader{cfg: cfg}
}

// Save validates size, extension and sniffed content type before writing the file.
func (u *Uploader) Save(file *multipart.FileHeader) (string, error) {
	if u.cfg.MaxSize > 0 && file.Size > u.cfg.MaxSize {
		return "", common.Invalid("file exceeds the %d MB limit", u.cfg.MaxSize/1024/1024)
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if len(u.cfg.AllowedExtensions) > 0 {
		if ext == "" || !isAllowedExtension(ext, u.cfg.AllowedExtensions) {
			return "", common.Invalid("file extension not allowed: %q", ext)
		}
	}

	src, err := file.Open()
	if err != nil {
		return "", common.Internal("open upload", err)
	}
	defer src.Close()

	// sniff the header for the MIME type
	buffer := make([]byte, 512)
	n, err := src.Read(buffer)
	if err != nil && err != io.EOF {
		return "", common.Internal("read upload", err)
	}
	contentType := http.DetectContentType(buffer[:n])
	if len(u.cfg.AllowedTypes) > 0 && !containsFold(u.cfg.AllowedTypes, contentType) {
		return "", common.Invalid("file type not allowed: %s", contentType)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", common.Internal("rewind upload", err)
	}

	filename := uuid.New().String() + ext
	now := time.Now()
	year, month := now.Format("2006"), now.Format("01")
	savePath := filepath.Join(u.dir(), year, month, filename)

	if err := os.MkdirAll(filepath.Dir(savePath), 0755); err != nil {
		return "", common.Internal("create upload directory", err)
	}
	dst, err := os.Create(savePath)
	if err != nil {
		return "", common.Internal("create upload file", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(savePath)
		return "", common.Internal("write upload file", err)
	}

	common.Infow("upload_saved", "path", savePath, "content_type", contentType, "size", file.Size)
	return u.urlPrefix() + "/" + path.Join(year, month, filename), nil
}

func (u *Uploader) dir() string {
	if u.cfg.Dir == "" {
		return "uploads"
	}
	return u.cfg.Dir
}

func (u *Uploader) urlPrefix() string {
	prefix := strings.TrimSpace(u.cfg.URLPrefix)
	if prefix == "" {
		prefix = "/uploads"
	}
	if !strings.HasPrefix(prefix, "/") && !strings.Contains(prefix, "://") {
		prefix = "/" + prefix
	}
	return strings.TrimRight(prefix, "/")
}

func isAllowedExtension(ext string, allowed []string) bool {
	for _, allowedExt := range allowed {
		normalized := strings.ToLower(strings.TrimSpace(allowedExt))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if ext == normalized {
			return true
		}
	}
	return false
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return true
		}
	}
	return false
}

