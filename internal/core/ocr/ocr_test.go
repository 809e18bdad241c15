package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joseph-ayodele/committee-extract/internal/common"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	run   func(name string, args []string) ([]byte, []byte, error)
}

func (f *fakeRunner) Run(_ context.Context, name string, _ *slog.Logger, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()
	return f.run(name, args)
}

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.Black)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestRepairRTL(t *testing.T) {
	in := "123456789 ת.ז\nשם המבוטח: דוגמה כהן\nID 42 only latin"
	got := RepairRTL(in)
	lines := strings.Split(got, "\n")
	if lines[0] != "ת.ז 123456789" {
		t.Errorf("mixed line = %q", lines[0])
	}
	if lines[1] != "שם המבוטח: דוגמה כהן" {
		t.Errorf("hebrew-only line changed: %q", lines[1])
	}
	if lines[2] != "ID 42 only latin" {
		t.Errorf("latin-only line changed: %q", lines[2])
	}
}

func TestRepairRTLKeepsGroupOrder(t *testing.T) {
	got := RepairRTL("10% אחוז 37(7)(א) סעיף")
	want := "אחוז 37(7)(א) סעיף 10%"
	if got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestNormalize(t *testing.T) {
	in := "שורה אחת\r\n\r\n\r\n\r\n-----\nשורה\u00a0  שתיים  \f\tסוף"
	got := Normalize(in)
	if strings.Contains(got, "\u00a0") || strings.Contains(got, "\r") || strings.Contains(got, "---") {
		t.Fatalf("noise left in %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("blank lines not collapsed: %q", got)
	}
	if !strings.Contains(got, "שורה שתיים") {
		t.Errorf("spaces not collapsed: %q", got)
	}
}

func TestPrepareImageDownscales(t *testing.T) {
	out, err := PrepareImage(pngOf(t, 400, 100), 200)
	if err != nil {
		t.Fatalf("PrepareImage: %v", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if cfg.Width != 200 || cfg.Height != 50 {
		t.Errorf("got %dx%d want 200x50", cfg.Width, cfg.Height)
	}
}

func TestPrepareImagePassThrough(t *testing.T) {
	in := pngOf(t, 50, 50)
	out, err := PrepareImage(in, 200)
	if err != nil {
		t.Fatalf("PrepareImage: %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Error("small png should be returned unchanged")
	}
	if _, err := PrepareImage([]byte("not an image"), 200); err == nil {
		t.Error("expected decode error")
	}
}

func TestPdftoppmRasterizerVisitsPagesInOrder(t *testing.T) {
	page := pngOf(t, 10, 10)
	r := &fakeRunner{run: func(_ string, args []string) ([]byte, []byte, error) {
		prefix := args[len(args)-1]
		for _, n := range []string{"01", "02", "03"} {
			if err := os.WriteFile(prefix+"-"+n+".png", page, 0o600); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	}}
	rast := NewPdftoppmRasterizer("", 150, r, nil)

	var seen []int
	err := rast.RenderPages(context.Background(), []byte("%PDF-1.4"), 2, func(n int, img []byte) error {
		seen = append(seen, n)
		if !bytes.Equal(img, page) {
			t.Errorf("page %d content mismatch", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RenderPages: %v", err)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("visited %v, want [1 2]", seen)
	}
	args := strings.Join(r.calls[0], " ")
	if !strings.Contains(args, "-r 150") || !strings.Contains(args, "-l 2") {
		t.Errorf("unexpected args %q", args)
	}
}

func TestPdftoppmRasterizerFailure(t *testing.T) {
	r := &fakeRunner{run: func(string, []string) ([]byte, []byte, error) {
		return nil, []byte("Syntax Error"), errors.New("exit status 1")
	}}
	err := NewPdftoppmRasterizer("", 0, r, nil).RenderPages(context.Background(), []byte("x"), 3, func(int, []byte) error {
		t.Fatal("visit must not be called")
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "pdftoppm") {
		t.Fatalf("err = %v", err)
	}
}

func TestVisionClientRecognizePage(t *testing.T) {
	var gotKey string
	var gotHints []any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Goog-Api-Key")
		if r.URL.RawQuery != "" {
			t.Errorf("credentials must not travel in the query: %q", r.URL.RawQuery)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		req := body["requests"].([]any)[0].(map[string]any)
		gotHints = req["imageContext"].(map[string]any)["languageHints"].([]any)
		_, _ = w.Write([]byte(`{"responses":[{"fullTextAnnotation":{"text":"ועדה רפואית"}}]}`))
	}))
	defer srv.Close()

	c := NewVisionClient(VisionConfig{Endpoint: srv.URL, APIKey: "secret"}, nil)
	text, err := c.RecognizePage(context.Background(), []byte("img"), []string{"he", "en"})
	if err != nil {
		t.Fatalf("RecognizePage: %v", err)
	}
	if text != "ועדה רפואית" {
		t.Errorf("text = %q", text)
	}
	if gotKey != "secret" {
		t.Errorf("api key header = %q", gotKey)
	}
	if len(gotHints) != 2 || gotHints[0] != "he" {
		t.Errorf("hints = %v", gotHints)
	}
}

func TestVisionClientErrorsAreOracleUnavailable(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
		"empty":  func(w http.ResponseWriter, _ *http.Request) {},
		"api_error": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"responses":[{"error":{"code":3,"message":"Bad image data."}}]}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			c := NewVisionClient(VisionConfig{Endpoint: srv.URL, Timeout: time.Second}, nil)
			_, err := c.RecognizePage(context.Background(), []byte("img"), nil)
			if !errors.Is(err, common.ErrOracleUnavailable) {
				t.Fatalf("err = %v, want ErrOracleUnavailable", err)
			}
		})
	}
}

func listLangsRunner(loads *atomic.Int32, release <-chan struct{}) *fakeRunner {
	return &fakeRunner{run: func(_ string, args []string) ([]byte, []byte, error) {
		if args[0] == "--list-langs" {
			loads.Add(1)
			if release != nil {
				<-release
			}
			return []byte("List of available languages in \"/usr/share/tessdata/\" (2):\neng\nheb\n"), nil, nil
		}
		return []byte("טקסט מזוהה"), nil, nil
	}}
}

func TestLocalEngineConcurrentInitializeLoadsOnce(t *testing.T) {
	var probes atomic.Int32
	release := make(chan struct{})
	e := NewLocalEngine(LocalConfig{}, listLangsRunner(&probes, release), nil)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- e.Initialize(context.Background())
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Initialize: %v", err)
		}
	}
	if probes.Load() != 1 || e.Loads() != 1 {
		t.Fatalf("engine loaded %d times, want 1", probes.Load())
	}

	text, err := e.RecognizePage(context.Background(), []byte("png"), []string{"he", "en"})
	if err != nil || text != "טקסט מזוהה" {
		t.Fatalf("RecognizePage = %q, %v", text, err)
	}
	if e.Loads() != 1 {
		t.Errorf("RecognizePage re-initialized the engine")
	}

	_ = e.Close()
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("re-Initialize: %v", err)
	}
	if e.Loads() != 2 {
		t.Errorf("after Close the engine should load again, loads=%d", e.Loads())
	}
}

func TestLocalEngineMissingLanguageIsNotCached(t *testing.T) {
	r := &fakeRunner{run: func(string, []string) ([]byte, []byte, error) {
		return []byte("eng\n"), nil, nil
	}}
	e := NewLocalEngine(LocalConfig{}, r, nil)
	if err := e.Initialize(context.Background()); err == nil {
		t.Fatal("expected missing heb error")
	}
	if err := e.Initialize(context.Background()); err == nil {
		t.Fatal("expected missing heb error on retry")
	}
	if e.Loads() != 2 {
		t.Errorf("failed init should be retried, loads=%d", e.Loads())
	}
}
