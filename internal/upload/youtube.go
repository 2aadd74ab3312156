package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"afterlive/internal/config"
	"afterlive/internal/logging"
	"afterlive/internal/services"
	"afterlive/internal/uploadqueue"
)

const (
	maxTitleRunes       = 100
	maxDescriptionBytes = 5000
	uploadChunkSize     = 16 << 20
)

var angleBrackets = strings.NewReplacer("<", "‹", ">", "›")

// YouTubeClient uploads each page as a separate YouTube video.
type YouTubeClient struct {
	oauth     *oauth2.Config
	tokenPath string
	privacy   string
	timeout   time.Duration
	options   []option.ClientOption
	logger    *slog.Logger
}

// NewYouTubeClient builds a client from the upload configuration. Extra
// options are passed to the YouTube service constructor.
func NewYouTubeClient(cfg *config.Config, logger *slog.Logger, opts ...option.ClientOption) *YouTubeClient {
	return &YouTubeClient{
		oauth:     OAuthConfig(cfg),
		tokenPath: cfg.Upload.CredentialFile,
		privacy:   cfg.Upload.Privacy,
		timeout:   cfg.UploadTimeout(),
		options:   opts,
		logger:    logging.NewComponentLogger(logger, "youtube"),
	}
}

func (c *YouTubeClient) service(ctx context.Context) (*youtube.Service, error) {
	tok, err := LoadToken(c.tokenPath)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "upload", "load credentials",
			"run `afterlive auth youtube` to authorize uploads", err)
	}
	source := newPersistingTokenSource(oauth2.ReuseTokenSource(tok, c.oauth.TokenSource(ctx, tok)), c.tokenPath, tok)
	httpClient := oauth2.NewClient(ctx, source)
	httpClient.Timeout = c.timeout

	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, c.options...)
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "upload", "create youtube service", "", err)
	}
	return svc, nil
}

// Upload inserts every page not yet in parts and returns the first video id.
// With more than one page each title gets a "(part i/n)" suffix.
func (c *YouTubeClient) Upload(ctx context.Context, req Request, parts uploadqueue.PartLog) (string, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return "", err
	}
	description := c.description(req)
	categoryID := ""
	if req.CategoryID > 0 {
		categoryID = strconv.Itoa(req.CategoryID)
	}

	var firstID string
	total := len(req.Files)
	for i, part := range req.Files {
		if parts != nil {
			if id, ok := parts.Published(part.Path); ok {
				c.logger.Info("part already published; skipping",
					logging.String("video_id", id),
					logging.String("part", part.Title),
				)
				if firstID == "" {
					firstID = id
				}
				continue
			}
		}
		title := req.Title
		if total > 1 {
			title = fmt.Sprintf("%s (part %d/%d)", req.Title, i+1, total)
		}
		video := &youtube.Video{
			Snippet: &youtube.VideoSnippet{
				Title:       truncateRunes(angleBrackets.Replace(title), maxTitleRunes),
				Description: description,
				Tags:        req.Tags,
				CategoryId:  categoryID,
			},
			Status: &youtube.VideoStatus{PrivacyStatus: c.privacy},
		}
		id, err := c.insert(ctx, svc, video, part.Path)
		if err != nil {
			if firstID != "" {
				logging.WarnWithContext(c.logger, "multi-part upload interrupted", "upload_partial",
					logging.String("first_video_id", firstID),
					logging.Int("failed_part", i+1),
					logging.String(logging.FieldImpact, "the retry resumes at the failed part"),
				)
			}
			return "", err
		}
		c.logger.Info("video inserted",
			logging.String("video_id", id),
			logging.String("part", part.Title),
			logging.String("path", part.Path),
		)
		if parts != nil {
			if err := parts.Record(ctx, part.Path, id); err != nil {
				logging.WarnWithContext(c.logger, "failed to record published part", "upload_part_unrecorded",
					logging.String("video_id", id),
					logging.Error(err),
					logging.String(logging.FieldImpact, "a retry may publish this part again"),
				)
			}
		}
		if firstID == "" {
			firstID = id
		}
	}
	return firstID, nil
}

func (c *YouTubeClient) insert(ctx context.Context, svc *youtube.Service, video *youtube.Video, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", services.Wrap(services.ErrNotFound, "upload", "open video", path, err)
	}
	defer file.Close()

	res, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(file, googleapi.ChunkSize(uploadChunkSize)).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("youtube insert %s: %w", path, err)
	}
	if res.Id == "" {
		return "", fmt.Errorf("youtube insert %s: empty video id", path)
	}
	return res.Id, nil
}

// description joins the rendered description, dynamic text and source link.
func (c *YouTubeClient) description(req Request) string {
	sections := make([]string, 0, 3)
	for _, text := range []string{req.Description, req.Dynamic} {
		if text = strings.TrimSpace(text); text != "" {
			sections = append(sections, text)
		}
	}
	if req.Copyright == CopyrightRepost && req.SourceURL != "" {
		sections = append(sections, "Source: "+req.SourceURL)
	}
	return truncateBytes(angleBrackets.Replace(strings.Join(sections, "\n\n")), maxDescriptionBytes)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
