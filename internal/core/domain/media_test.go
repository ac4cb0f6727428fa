package domain

import "testing"

func TestMediaItemValidate(t *testing.T) {
	tests := []struct {
		name    string
		item    MediaItem
		wantErr bool
	}{
		{
			name: "complete item",
			item: MediaItem{ID: "m1", Filename: "GX010001.MP4", DownloadURL: "https://cdn.example.com/m1"},
		},
		{
			name:    "missing id",
			item:    MediaItem{Filename: "GX010001.MP4", DownloadURL: "https://cdn.example.com/m1"},
			wantErr: true,
		},
		{
			name:    "missing filename",
			item:    MediaItem{ID: "m1", DownloadURL: "https://cdn.example.com/m1"},
			wantErr: true,
		},
		{
			name:    "missing download url",
			item:    MediaItem{ID: "m1", Filename: "GX010001.MP4"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUploadTime(t *testing.T) {
	item := &MediaItem{UploadDate: "2026-03-15T10:30:00Z"}
	ts, ok := item.UploadTime()
	if !ok {
		t.Fatal("expected parsable upload date")
	}
	if ts.Year() != 2026 || ts.Month() != 3 {
		t.Errorf("parsed time = %v", ts)
	}

	for _, raw := range []string{"", "not-a-date", "2026-13-99"} {
		item := &MediaItem{UploadDate: raw}
		if _, ok := item.UploadTime(); ok {
			t.Errorf("expected %q to be unparsable", raw)
		}
	}
}

func TestPageInfoLastPage(t *testing.T) {
	if (&PageInfo{CurrentPage: 1, TotalPages: 3}).LastPage() {
		t.Error("page 1 of 3 reported as last")
	}
	if !(&PageInfo{CurrentPage: 3, TotalPages: 3}).LastPage() {
		t.Error("page 3 of 3 not reported as last")
	}
	if (&PageInfo{CurrentPage: 1, TotalPages: 0}).LastPage() {
		t.Error("unknown total pages reported as last")
	}
}
