// Package attachments stores uploaded files under the upload root, derives
// thumbnails for images and removes files again when their message goes.
package attachments

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"kiselgram-backend/internal/apperr"
	"kiselgram-backend/internal/models"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DirImages    = "images"
	DirDocuments = "documents"
	DirMedia     = "media"

	DefaultMaxBytes      = 16 * 1024 * 1024
	DefaultThumbnailSize = 200
)

var fileTypes = map[string]models.FileType{
	"jpg": models.FileImage, "jpeg": models.FileImage, "png": models.FileImage,
	"gif": models.FileImage, "bmp": models.FileImage, "webp": models.FileImage,

	"pdf": models.FileDocument, "doc": models.FileDocument, "docx": models.FileDocument,
	"txt": models.FileDocument, "rtf": models.FileDocument,

	"zip": models.FileArchive, "rar": models.FileArchive, "7z": models.FileArchive,

	"mp3": models.FileAudio, "m4a": models.FileAudio, "wav": models.FileAudio, "ogg": models.FileAudio,

	"mp4": models.FileVideo, "avi": models.FileVideo, "mov": models.FileVideo, "mkv": models.FileVideo,
}

// Classify returns the file type and upload directory for a file name.
func Classify(fileName string) (models.FileType, string, error) {
	ext := extension(fileName)
	fileType, ok := fileTypes[ext]
	if !ok {
		return "", "", apperr.InvalidInput("File type not allowed")
	}

	switch fileType {
	case models.FileImage:
		return fileType, DirImages, nil
	case models.FileAudio, models.FileVideo:
		return fileType, DirMedia, nil
	default:
		return fileType, DirDocuments, nil
	}
}

func extension(fileName string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
}

type Manager struct {
	root          string
	maxBytes      int64
	thumbnailSize int
	sugar         *zap.SugaredLogger
}

func NewManager(root string, maxBytes int64, thumbnailSize int, sugar *zap.SugaredLogger) *Manager {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if thumbnailSize <= 0 {
		thumbnailSize = DefaultThumbnailSize
	}
	return &Manager{root: root, maxBytes: maxBytes, thumbnailSize: thumbnailSize, sugar: sugar}
}

func (m *Manager) Root() string {
	return m.root
}

func (m *Manager) MaxBytes() int64 {
	return m.maxBytes
}

// Store validates and writes an upload. Nothing touches the disk unless the
// name is allowed and the content fits within the size limit.
func (m *Manager) Store(r io.Reader, originalName string) (models.Attachment, error) {
	displayName := filepath.Base(strings.ReplaceAll(originalName, "\\", "/"))
	fileType, dir, err := Classify(displayName)
	if err != nil {
		return models.Attachment{}, err
	}

	data, err := io.ReadAll(io.LimitReader(r, m.maxBytes+1))
	if err != nil {
		return models.Attachment{}, apperr.Wrap(apperr.KindInvalidInput, "Could not read upload", err)
	}
	if int64(len(data)) > m.maxBytes {
		return models.Attachment{}, apperr.InvalidInput(fmt.Sprintf("File is larger than %s", FormatSize(m.maxBytes)))
	}
	if len(data) == 0 {
		return models.Attachment{}, apperr.InvalidInput("File is empty")
	}

	storageName := strings.ReplaceAll(uuid.NewString(), "-", "") + "." + extension(displayName)
	relPath := path.Join(dir, storageName)

	folderPath := filepath.Join(m.root, dir)
	if err := os.MkdirAll(folderPath, os.ModePerm); err != nil {
		return models.Attachment{}, apperr.Internal("creating upload folder", err)
	}

	if err := os.WriteFile(filepath.Join(folderPath, storageName), data, 0644); err != nil {
		return models.Attachment{}, apperr.Internal("writing upload", err)
	}

	att := models.Attachment{
		Type:     fileType,
		Name:     displayName,
		Path:     relPath,
		Size:     int64(len(data)),
		MimeType: mimetype.Detect(data).String(),
	}

	if fileType == models.FileImage {
		thumbPath, err := m.writeThumbnail(data, dir, storageName)
		if err != nil {
			// an attachment without thumbnail is still usable
			m.sugar.Warnf("Couldn't make thumbnail for %s: %v", relPath, err)
		} else {
			att.ThumbnailPath = thumbPath
		}
	}

	m.sugar.Debugf("Stored upload [%s] as [%s]", displayName, relPath)
	return att, nil
}

func (m *Manager) writeThumbnail(data []byte, dir string, storageName string) (string, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", err
	}

	dst := Thumbnail(src, m.thumbnailSize)

	thumbName := "thumb_" + storageName
	var buf bytes.Buffer
	if format == "jpeg" {
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85})
	} else {
		if format != "png" {
			thumbName = "thumb_" + strings.TrimSuffix(storageName, filepath.Ext(storageName)) + ".png"
		}
		err = png.Encode(&buf, dst)
	}
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(filepath.Join(m.root, dir, thumbName), buf.Bytes(), 0644); err != nil {
		return "", err
	}

	return path.Join(dir, thumbName), nil
}

// Thumbnail scales src to fit within a size x size box keeping its aspect
// ratio. Images that already fit are only copied.
func Thumbnail(src image.Image, size int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if w > size || h > size {
		if w >= h {
			h = max(1, h*size/w)
			w = size
		} else {
			w = max(1, w*size/h)
			h = size
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

// Reclaim deletes the file and thumbnail of att. Files that are already gone
// are skipped.
func (m *Manager) Reclaim(att models.Attachment) error {
	var errs []error
	for _, rel := range []string{att.Path, att.ThumbnailPath} {
		if rel == "" {
			continue
		}

		full, err := m.Resolve(rel)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		m.sugar.Debugf("Removed upload [%s]", rel)
	}

	return errors.Join(errs...)
}

// Resolve maps a path relative to the upload root to a file system path,
// refusing anything that would leave the root.
func (m *Manager) Resolve(rel string) (string, error) {
	rel = filepath.FromSlash(strings.TrimPrefix(rel, "/"))
	if rel == "" || !filepath.IsLocal(rel) {
		return "", apperr.NotFound("File not found")
	}
	return filepath.Join(m.root, rel), nil
}

func URL(rel string) string {
	if rel == "" {
		return ""
	}
	return "/uploads/" + rel
}

// FormatSize renders a byte count with one decimal, stepping by 1024.
func FormatSize(size int64) string {
	if size <= 0 {
		return "0 B"
	}

	units := []string{"B", "KB", "MB", "GB"}
	value := float64(size)
	i := 0
	for value >= 1024 && i < len(units)-1 {
		value /= 1024
		i++
	}

	return fmt.Sprintf("%.1f %s", value, units[i])
}
