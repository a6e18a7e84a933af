package sizing

import (
	"errors"
	"testing"
)

func TestBestCaptureSize(t *testing.T) {
	tests := []struct {
		name  string
		sizes []Resolution
		want  Resolution
	}{
		{"single", []Resolution{{640, 480}}, Resolution{640, 480}},
		{"largest last", []Resolution{{320, 240}, {640, 480}, {4032, 3024}}, Resolution{4032, 3024}},
		{"largest first", []Resolution{{4032, 3024}, {1920, 1080}}, Resolution{4032, 3024}},
		{"tie keeps first", []Resolution{{1200, 800}, {800, 1200}}, Resolution{1200, 800}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BestCaptureSize(tt.sizes)
			if err != nil {
				t.Fatalf("BestCaptureSize() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("BestCaptureSize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBestCaptureSizePermutationKeepsArea(t *testing.T) {
	sizes := []Resolution{{320, 240}, {1920, 1080}, {4032, 3024}, {640, 480}}
	want, _ := BestCaptureSize(sizes)

	reversed := []Resolution{{640, 480}, {4032, 3024}, {1920, 1080}, {320, 240}}
	got, _ := BestCaptureSize(reversed)

	if got.Area() != want.Area() {
		t.Errorf("area after permutation = %d, want %d", got.Area(), want.Area())
	}
}

func TestBestCaptureSizeEmpty(t *testing.T) {
	if _, err := BestCaptureSize(nil); !errors.Is(err, ErrNoSizes) {
		t.Errorf("BestCaptureSize(nil) error = %v, want ErrNoSizes", err)
	}
}

func TestBestPreviewAndRecordSize(t *testing.T) {
	fourThree := []Resolution{{320, 240}, {640, 480}, {1280, 960}, {1920, 1440}}

	tests := []struct {
		name        string
		sizes       []Resolution
		min         Resolution
		ratio       float64
		maxShort    int
		wantPreview Resolution
		wantRecord  Resolution
		wantIdeal   bool
	}{
		{
			name:        "medium preset 4:3",
			sizes:       fourThree,
			min:         Resolution{640, 480},
			ratio:       4.0 / 3.0,
			wantPreview: Resolution{1280, 960},
			wantRecord:  Resolution{1280, 960},
			wantIdeal:   true,
		},
		{
			name:        "low preset picks smallest above minimum",
			sizes:       fourThree,
			min:         Resolution{320, 240},
			ratio:       4.0 / 3.0,
			wantPreview: Resolution{640, 480},
			wantRecord:  Resolution{1280, 960},
			wantIdeal:   true,
		},
		{
			name:        "raised short side ceiling",
			sizes:       fourThree,
			min:         Resolution{640, 480},
			ratio:       4.0 / 3.0,
			maxShort:    1440,
			wantPreview: Resolution{1280, 960},
			wantRecord:  Resolution{1920, 1440},
			wantIdeal:   true,
		},
		{
			name:        "unsorted input",
			sizes:       []Resolution{{1920, 1080}, {1280, 720}, {3840, 2160}, {960, 540}},
			min:         Resolution{640, 480},
			ratio:       16.0 / 9.0,
			wantPreview: Resolution{960, 540},
			wantRecord:  Resolution{1920, 1080},
			wantIdeal:   true,
		},
		{
			name:        "minimum is exclusive",
			sizes:       []Resolution{{640, 480}, {1024, 768}},
			min:         Resolution{640, 480},
			ratio:       4.0 / 3.0,
			wantPreview: Resolution{1024, 768},
			wantRecord:  Resolution{1024, 768},
			wantIdeal:   true,
		},
		{
			name:        "nothing qualifies falls back to first",
			sizes:       []Resolution{{176, 144}, {320, 240}},
			min:         Resolution{1024, 768},
			ratio:       4.0 / 3.0,
			wantPreview: Resolution{176, 144},
			wantRecord:  Resolution{176, 144},
		},
		{
			name:        "record falls back to preview when all exceed ceiling",
			sizes:       []Resolution{{3840, 2160}, {7680, 4320}},
			min:         Resolution{640, 480},
			ratio:       16.0 / 9.0,
			wantPreview: Resolution{3840, 2160},
			wantRecord:  Resolution{3840, 2160},
			wantIdeal:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BestPreviewAndRecordSize(tt.sizes, tt.min, tt.ratio, tt.maxShort)
			if err != nil {
				t.Fatalf("BestPreviewAndRecordSize() error = %v", err)
			}
			if got.Preview != tt.wantPreview {
				t.Errorf("Preview = %v, want %v", got.Preview, tt.wantPreview)
			}
			if got.Record != tt.wantRecord {
				t.Errorf("Record = %v, want %v", got.Record, tt.wantRecord)
			}
			if got.Ideal != tt.wantIdeal {
				t.Errorf("Ideal = %v, want %v", got.Ideal, tt.wantIdeal)
			}
		})
	}
}

func TestPreviewSizeProperties(t *testing.T) {
	sizes := []Resolution{{4032, 3024}, {1920, 1440}, {1600, 1200}, {1280, 960}, {1920, 1080}, {800, 600}, {320, 240}}
	min := Resolution{640, 480}
	ratio := 4.0 / 3.0

	sel, err := BestPreviewAndRecordSize(sizes, min, ratio, 0)
	if err != nil {
		t.Fatal(err)
	}

	if float32(sel.Preview.Width)/float32(sel.Preview.Height) != float32(ratio) {
		t.Errorf("preview %v does not have ratio %v", sel.Preview, ratio)
	}
	if sel.Preview.Width <= min.Width || sel.Preview.Height <= min.Height {
		t.Errorf("preview %v not strictly above %v", sel.Preview, min)
	}
	if sel.Record.ShortSide() > DefaultMaxShortSide {
		t.Errorf("record %v exceeds short side %d", sel.Record, DefaultMaxShortSide)
	}
	if sel.Preview != (Resolution{800, 600}) {
		t.Errorf("preview = %v, want 800x600", sel.Preview)
	}
	if sel.Record != (Resolution{1280, 960}) {
		t.Errorf("record = %v, want 1280x960", sel.Record)
	}
}

func TestAdjustForDisplayRotation(t *testing.T) {
	min := Resolution{640, 480}
	if got := AdjustForDisplayRotation(min, true); got != (Resolution{480, 640}) {
		t.Errorf("quarter turn = %v, want 480x640", got)
	}
	if got := AdjustForDisplayRotation(min, false); got != min {
		t.Errorf("no rotation = %v, want %v", got, min)
	}
}

func TestTargetAspectRatio(t *testing.T) {
	capture := Resolution{4032, 3024}
	if got := TargetAspectRatio(0, capture); got != 4032.0/3024.0 {
		t.Errorf("derived ratio = %v", got)
	}
	if got := TargetAspectRatio(16.0/9.0, capture); got != 16.0/9.0 {
		t.Errorf("requested ratio = %v", got)
	}
}

func TestParsePreset(t *testing.T) {
	tests := []struct {
		name    string
		want    Resolution
		wantErr bool
	}{
		{"low", Resolution{320, 240}, false},
		{"medium", Resolution{640, 480}, false},
		{"high", Resolution{1024, 768}, false},
		{"ultra", Resolution{}, true},
		{"HIGH", Resolution{}, true},
		{"", Resolution{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePreset(tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownPreset) {
					t.Errorf("ParsePreset(%q) error = %v, want ErrUnknownPreset", tt.name, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePreset(%q) error = %v", tt.name, err)
			}
			if got := p.MinPreviewSize(); got != tt.want {
				t.Errorf("MinPreviewSize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseResolution(t *testing.T) {
	r, err := ParseResolution("1920x1080")
	if err != nil {
		t.Fatal(err)
	}
	if r != (Resolution{1920, 1080}) {
		t.Errorf("ParseResolution = %v", r)
	}
	for _, bad := range []string{"", "1920", "0x10", "axb"} {
		if _, err := ParseResolution(bad); err == nil {
			t.Errorf("ParseResolution(%q) expected error", bad)
		}
	}
}
