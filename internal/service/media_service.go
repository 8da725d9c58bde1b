package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrMediaTooLarge indicates the source image exceeded the configured limit.
	ErrMediaTooLarge = errors.New("image exceeds maximum allowed size")
	// ErrMediaNotImage indicates the fetched file is not an image.
	ErrMediaNotImage = errors.New("file is not an image")
)

// FileStorage abstracts upload destinations.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// MediaService re-hosts post images before they are handed to the ad platform.
type MediaService interface {
	StageImage(ctx context.Context, sourceURL string) (string, error)
}

type mediaService struct {
	storage FileStorage
	client  *http.Client
	maxSize int64
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewMediaService constructs a media service. client may be nil.
func NewMediaService(storage FileStorage, client *http.Client, maxSizeMB int, logger zerolog.Logger) MediaService {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &mediaService{
		storage: storage,
		client:  client,
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		logger:  logger.With().Str("component", "media_service").Logger(),
		tracer:  otel.Tracer("github.com/noah-isme/marketing-agent/internal/service/media"),
	}
}

func (s *mediaService) StageImage(ctx context.Context, sourceURL string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "media.stage_image", trace.WithAttributes(attribute.String("media.source", sourceURL)))
	defer span.End()

	parsed, err := url.Parse(strings.TrimSpace(sourceURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		err = fmt.Errorf("invalid image url %q", sourceURL)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid url")
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return "", err
	}

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(resp.Body, s.maxSize+1)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return "", err
	}
	if int64(buf.Len()) > s.maxSize {
		span.RecordError(ErrMediaTooLarge)
		span.SetStatus(codes.Error, "payload too large")
		return "", ErrMediaTooLarge
	}

	detected := mimetype.Detect(buf.Bytes())
	span.SetAttributes(attribute.String("media.detected_mime", detected.String()))
	if !strings.HasPrefix(detected.String(), "image/") {
		span.RecordError(ErrMediaNotImage)
		span.SetStatus(codes.Error, "type not allowed")
		return "", ErrMediaNotImage
	}

	name := sanitizeFileName(path.Base(parsed.Path), detected.Extension())
	hosted, err := s.storage.Upload(ctx, name, bytes.NewReader(buf.Bytes()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return "", err
	}

	s.logger.Info().Str("source", parsed.String()).Str("hosted", hosted).Int("bytes", buf.Len()).Msg("post image staged")
	span.SetStatus(codes.Ok, "stored")
	return hosted, nil
}

func sanitizeFileName(name, detectedExt string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" || base == "." {
		base = fmt.Sprintf("post-image-%d", time.Now().Unix())
	}

	ext := strings.ToLower(filepath.Ext(name))
	if detectedExt != "" {
		ext = detectedExt
	}
	if ext == "" {
		ext = ".bin"
	}
	return base + ext
}
