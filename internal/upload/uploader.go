package upload

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"afterlive/internal/channel"
	"afterlive/internal/config"
	"afterlive/internal/fileutil"
	"afterlive/internal/logging"
	"afterlive/internal/services"
	"afterlive/internal/telemetry"
	"afterlive/internal/uploadqueue"
)

// Copyright declarations accepted by platforms that distinguish them.
const (
	CopyrightOriginal = 1
	CopyrightRepost   = 2
)

// Part is one uploaded file.
type Part struct {
	Path  string
	Title string
}

// Request is a fully rendered upload.
type Request struct {
	Files       []Part
	Title       string
	Description string
	Dynamic     string
	Tags        []string
	Channel     config.Channel
	CategoryID  int
	SourceURL   string
	Copyright   int
}

// Client publishes a request and returns the platform id of the first video.
// Parts already present in parts are not sent again. parts may be nil.
type Client interface {
	Upload(ctx context.Context, req Request, parts uploadqueue.PartLog) (string, error)
}

// Uploader builds requests from queued items and submits them.
type Uploader struct {
	cfg      *config.Config
	client   Client
	resolver *channel.Resolver
	logger   *slog.Logger
}

// NewUploader wires an uploader.
func NewUploader(cfg *config.Config, client Client, resolver *channel.Resolver, logger *slog.Logger) *Uploader {
	return &Uploader{
		cfg:      cfg,
		client:   client,
		resolver: resolver,
		logger:   logging.NewComponentLogger(logger, "upload"),
	}
}

// Upload publishes item. Missing videos and unresolved channels are returned
// as typed errors so the queue can classify them.
func (u *Uploader) Upload(ctx context.Context, item uploadqueue.Item, parts uploadqueue.PartLog) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "upload.item",
		attribute.Int("upload.video_count", len(item.VideoPaths)),
	)
	videoID, err := u.upload(ctx, item, parts)
	telemetry.EndSpan(span, err)
	return videoID, err
}

func (u *Uploader) upload(ctx context.Context, item uploadqueue.Item, parts uploadqueue.PartLog) (string, error) {
	req, err := u.BuildRequest(item)
	if err != nil {
		return "", err
	}
	logger := logging.WithContext(ctx, u.logger)
	logger.Info("uploading session",
		logging.String("title", req.Title),
		logging.String("channel", req.Channel.String()),
		logging.Int("category_id", req.CategoryID),
		logging.Strings("tags", req.Tags),
		logging.Int("parts", len(req.Files)),
	)
	videoID, err := u.client.Upload(ctx, req, parts)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "upload", "submit", fmt.Sprintf("upload %q", req.Title), err)
	}
	return videoID, nil
}

// BuildRequest renders the request for item without contacting the platform.
func (u *Uploader) BuildRequest(item uploadqueue.Item) (Request, error) {
	var parts []Part
	for i, path := range item.VideoPaths {
		if !fileutil.NonEmpty(path) {
			continue
		}
		parts = append(parts, Part{Path: path, Title: fmt.Sprintf("part%d", i+1)})
	}
	if len(parts) == 0 {
		return Request{}, &services.NoVideosFoundError{Paths: append([]string(nil), item.VideoPaths...)}
	}

	assignment, err := u.resolver.Resolve(item.Session, item.Room)
	if err != nil {
		return Request{}, err
	}

	title := strings.TrimSpace(Render(item.Room.Title, item.Session))
	if title == "" {
		title = strings.TrimSpace(Render("${anchor} ${date}", item.Session))
	}
	if title == "" {
		title = fmt.Sprintf("room %d", item.Session.RoomID)
	}

	source := strings.TrimSpace(Render(u.cfg.Upload.SourceURL, item.Session))
	copyright := CopyrightOriginal
	if source != "" {
		copyright = CopyrightRepost
	}
	return Request{
		Files:       parts,
		Title:       title,
		Description: Render(item.Room.Description, item.Session),
		Dynamic:     Render(item.Room.Dynamic, item.Session),
		Tags:        assignment.Tags,
		Channel:     assignment.Channel,
		CategoryID:  assignment.CategoryID,
		SourceURL:   source,
		Copyright:   copyright,
	}, nil
}
