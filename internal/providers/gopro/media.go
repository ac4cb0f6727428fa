package gopro

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
)

// searchResponse is the wire shape of GET /media/search.
type searchResponse struct {
	Media       []wireItem `json:"media"`
	CurrentPage int        `json:"current_page"`
	TotalPages  int        `json:"total_pages"`
	PerPage     int        `json:"per_page"`
}

// wireItem tolerates the API's loose typing: file sizes and durations
// arrive as either numbers or strings depending on the asset's age.
type wireItem struct {
	ID         string      `json:"id"`
	Filename   string      `json:"filename"`
	FileSize   json.Number `json:"file_size"`
	CreatedAt  string      `json:"created_at"`
	CapturedAt string      `json:"captured_at"`
	Duration   json.Number `json:"duration"`
}

// downloadResponse is the wire shape of GET /media/{id}/download.
type downloadResponse struct {
	Filename string `json:"filename"`
	Embedded struct {
		Variations []variation `json:"variations"`
	} `json:"_embedded"`
}

type variation struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// tokenResponse is the wire shape of the OAuth token endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	ExpiresIn    int    `json:"expires_in"`
}

// parseItems converts wire items to domain items, dropping ones that fail
// validation. Returns the parsed items and the skip count.
func (c *Client) parseItems(raw []wireItem) ([]*domain.MediaItem, int) {
	items := make([]*domain.MediaItem, 0, len(raw))
	skipped := 0
	for _, w := range raw {
		item := w.toDomain(c.baseURL)
		if err := item.Validate(); err != nil {
			c.logger.Warn("dropping media item", "media_id", w.ID, "error", err)
			skipped++
			continue
		}
		items = append(items, item)
	}
	return items, skipped
}

func (w *wireItem) toDomain(baseURL string) *domain.MediaItem {
	item := &domain.MediaItem{
		ID:       w.ID,
		Filename: w.Filename,
		Provider: "gopro",
	}
	if w.ID != "" {
		item.DownloadURL = baseURL + "/media/" + w.ID + "/download"
	}
	if w.Filename == "" && w.ID != "" {
		item.Filename = w.ID + ".MP4"
	}
	if size, err := w.FileSize.Int64(); err == nil {
		item.Size = size
	} else if f, err := w.FileSize.Float64(); err == nil {
		item.Size = int64(f)
	}
	item.UploadDate = w.CreatedAt
	if item.UploadDate == "" {
		item.UploadDate = w.CapturedAt
	}
	if item.UploadDate == "" {
		item.UploadDate = time.Now().UTC().Format(time.RFC3339)
	}
	if d, err := w.Duration.Int64(); err == nil {
		item.Duration = int(d)
	} else if f, err := strconv.ParseFloat(w.Duration.String(), 64); err == nil {
		item.Duration = int(f)
	}
	return item
}
