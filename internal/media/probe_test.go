package media

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleProbe = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1280, "height": 720,
     "avg_frame_rate": "30000/1001", "r_frame_rate": "30000/1001", "nb_frames": "1798"},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "sample_rate": "48000", "channels": 2}
  ],
  "format": {"filename": "talk.mp4", "nb_streams": 2, "duration": "60.060000", "format_name": "mov,mp4,m4a,3gp,3g2,mj2"}
}`

func TestParseInfo(t *testing.T) {
	info, err := ParseInfo([]byte(sampleProbe))
	if err != nil {
		t.Fatalf("ParseInfo failed: %v", err)
	}
	if !info.HasAudio() || !info.HasVideo() {
		t.Fatalf("expected audio and video, got %+v", info.Streams)
	}
	if math.Abs(info.FrameRate()-29.97002997) > 1e-6 {
		t.Errorf("unexpected frame rate %v", info.FrameRate())
	}
	if info.DurationSeconds() != 60.06 {
		t.Errorf("unexpected duration %v", info.DurationSeconds())
	}
	if info.FrameCount() != 1798 {
		t.Errorf("unexpected frame count %d", info.FrameCount())
	}
}

func TestParseInfo_Invalid(t *testing.T) {
	if _, err := ParseInfo([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestInfo_Fallbacks(t *testing.T) {
	info := &Info{
		Streams: []Stream{{CodecType: "video", AvgFrameRate: "0/0", RFrameRate: "25/1"}},
		Format:  Format{Duration: "4"},
	}
	if info.FrameRate() != 25 {
		t.Errorf("expected r_frame_rate fallback 25, got %v", info.FrameRate())
	}
	if info.FrameCount() != 100 {
		t.Errorf("expected estimated 100 frames, got %d", info.FrameCount())
	}
	if info.HasAudio() {
		t.Error("expected no audio")
	}

	audioOnly := &Info{Streams: []Stream{{CodecType: "audio"}}, Format: Format{Duration: "bad"}}
	if audioOnly.FrameRate() != 0 || audioOnly.FrameCount() != 0 || audioOnly.DurationSeconds() != 0 {
		t.Error("audio-only info should report no frames")
	}
}

func TestParseRate(t *testing.T) {
	tests := map[string]float64{
		"30/1":       30,
		"30000/1001": 30000.0 / 1001,
		"25":         25,
		" 24/1 ":     24,
		"0/0":        0,
		"1/0":        0,
		"-30/1":      0,
		"":           0,
		"abc":        0,
		"30/x":       0,
	}
	for in, want := range tests {
		if got := ParseRate(in); got != want {
			t.Errorf("ParseRate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFilterGraph(t *testing.T) {
	graph, err := FilterGraph(30, "if(lt(N,10),N*1.0+0.0,N*0.5+5.0)/TB/FR", false)
	if err != nil {
		t.Fatalf("FilterGraph failed: %v", err)
	}
	want := `fps=fps=30,setpts=if(lt(N\,10)\,N*1.0+0.0\,N*0.5+5.0)/TB/FR`
	if graph != want {
		t.Errorf("got %q, want %q", graph, want)
	}

	graph, err = FilterGraph(29.97, "N*1.0+0.0/TB/FR", true)
	if err != nil {
		t.Fatalf("FilterGraph failed: %v", err)
	}
	if !strings.HasPrefix(graph, SmallScale+",fps=fps=29.97,") {
		t.Errorf("small graph should start with the downscale: %q", graph)
	}

	for _, rate := range []float64{0, -1, math.NaN()} {
		if _, err := FilterGraph(rate, "N", false); !errors.Is(err, ErrInvalidFrameRate) {
			t.Errorf("rate %v: expected ErrInvalidFrameRate, got %v", rate, err)
		}
	}
}

func TestWriteFilterScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "filterGraph.txt")
	if err := WriteFilterScript(path, "fps=fps=30"); err != nil {
		t.Fatalf("WriteFilterScript failed: %v", err)
	}
	data, err := os.ReadFile(path) // #nosec G304 - test temp path
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "fps=fps=30" {
		t.Errorf("unexpected script %q", data)
	}
}
