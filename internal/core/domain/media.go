package domain

import (
	"fmt"
	"time"
)

// MediaItem describes one remote asset as reported by the provider's listing
// API. Items are ephemeral: produced by a listing, consumed by the differ and
// transfer engine, never persisted as-is.
type MediaItem struct {
	ID          string `json:"media_id"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url"` // may require a second resolution call
	Size        int64  `json:"file_size"`    // declared by the provider; 0 when unknown
	UploadDate  string `json:"upload_date"`  // RFC 3339; provider metadata, advisory only
	Duration    int    `json:"duration,omitempty"`
	Provider    string `json:"provider"`
}

// Validate checks the fields every downstream consumer requires. A failing
// item on an otherwise healthy page is skipped; when a whole page fails the
// caller treats it as contract drift (ErrAPIStructureChanged).
func (m *MediaItem) Validate() error {
	var missing []string
	if m.ID == "" {
		missing = append(missing, "media_id")
	}
	if m.Filename == "" {
		missing = append(missing, "filename")
	}
	if m.DownloadURL == "" {
		missing = append(missing, "download_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("media item missing required fields: %v", missing)
	}
	return nil
}

// UploadTime parses the declared upload date. The bool is false when the
// date is absent or unparsable; callers fall back to current UTC.
func (m *MediaItem) UploadTime() (time.Time, bool) {
	if m.UploadDate == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, m.UploadDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// PageInfo carries the pagination metadata a listing response reports.
type PageInfo struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
	PerPage     int `json:"per_page"`
}

// LastPage reports whether the current page is the final one.
func (p *PageInfo) LastPage() bool {
	return p.TotalPages > 0 && p.CurrentPage >= p.TotalPages
}
