package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drpaneas/vitisexpert/internal/advice"
	"github.com/drpaneas/vitisexpert/internal/imageedit"
	"github.com/drpaneas/vitisexpert/internal/journal"
	"github.com/drpaneas/vitisexpert/internal/llm"
	"github.com/drpaneas/vitisexpert/internal/weather"
)

type fakeAdvisor struct {
	rec   *advice.Recommendation
	err   error
	panic bool
	got   advice.Input
}

func (f *fakeAdvisor) Advise(_ context.Context, in advice.Input) (*advice.Recommendation, error) {
	if f.panic {
		panic("boom")
	}
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return f.rec, nil
}

type fakeWeather struct {
	aw  *weather.AutoWeather
	err error
}

func (f *fakeWeather) ForPruning(_ context.Context, lat, lon float64) (*weather.AutoWeather, error) {
	if err := weather.ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}
	return f.aw, f.err
}

type fakeImages struct {
	out string
	err error
}

func (f *fakeImages) Edit(_ context.Context, dataURL, instruction string) (string, error) {
	return f.out, f.err
}

func sampleRecommendation() *advice.Recommendation {
	return &advice.Recommendation{
		Verdict:             advice.VerdictWait,
		Justification:       "Spätfrost angekündigt.",
		CommonMistakes:      []string{"Zu früh schneiden", "Stumpfe Schere"},
		AlternativeStrategy: "Vorschnitt, Endschnitt im Wollestadium.",
	}
}

func sampleInput() advice.Input {
	in := advice.DefaultInput()
	in.Variety = "Riesling"
	in.Region = "Pfalz"
	return in
}

func newTestServer(t *testing.T, mutate func(*Options)) *httptest.Server {
	t.Helper()
	opts := Options{
		Advisor: &fakeAdvisor{rec: sampleRecommendation()},
		Weather: &fakeWeather{aw: &weather.AutoWeather{
			Region: "Deidesheim", TempTrend: weather.TrendRising, FrostRisk: weather.FrostLow,
			Precipitation: "0 mm", WindSpeed: "9 km/h",
		}},
		Provider: "gemini",
		Model:    "gemini-3-flash-preview",
	}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := New(opts)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", strings.NewReader(string(data)))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{Weather: &fakeWeather{}})
	assert.Error(t, err)
	_, err = New(Options{Advisor: &fakeAdvisor{}})
	assert.Error(t, err)
}

func TestRecommend(t *testing.T) {
	adv := &fakeAdvisor{rec: sampleRecommendation()}
	ts := newTestServer(t, func(o *Options) { o.Advisor = adv })

	resp := postJSON(t, ts.URL+"/api/recommend", sampleInput())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	got := decodeBody[advice.Recommendation](t, resp)
	assert.Equal(t, advice.VerdictWait, got.Verdict)
	assert.Len(t, got.CommonMistakes, 2)
	assert.Equal(t, "Riesling", adv.got.Variety)
}

func TestRecommend_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := get(t, ts.URL+"/api/recommend")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Method not allowed"}`, readBody(t, resp))
}

func TestRecommend_Errors(t *testing.T) {
	tests := []struct {
		name       string
		advisorErr error
		body       any
		wantStatus int
	}{
		{"missing fields", nil, advice.Input{Variety: "Riesling"}, http.StatusBadRequest},
		{"malformed json", nil, "not an object", http.StatusBadRequest},
		{"upstream failure", errors.New("quota exceeded"), sampleInput(), http.StatusBadGateway},
		{"unparseable answer", fmt.Errorf("%w: no json", advice.ErrParse), sampleInput(), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, func(o *Options) {
				o.Advisor = &fakeAdvisor{rec: sampleRecommendation(), err: tt.advisorErr}
			})
			resp := postJSON(t, ts.URL+"/api/recommend", tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			body := decodeBody[errorResponse](t, resp)
			assert.NotEmpty(t, body.Error)
			assert.NotContains(t, body.Error, "quota", "upstream details must not leak")
		})
	}
}

func TestRecommend_ParseMessage(t *testing.T) {
	ts := newTestServer(t, func(o *Options) {
		o.Advisor = &fakeAdvisor{err: fmt.Errorf("%w: unexpected end of JSON input", advice.ErrParse)}
	})
	resp := postJSON(t, ts.URL+"/api/recommend", sampleInput())
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "Fehler beim Verarbeiten der Empfehlung.", decodeBody[errorResponse](t, resp).Error)
}

func TestRecommend_BodyTooLarge(t *testing.T) {
	s, err := New(Options{Advisor: &fakeAdvisor{}, Weather: &fakeWeather{}})
	require.NoError(t, err)

	big := `{"variety":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/recommend", strings.NewReader(big))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestWeather(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := get(t, ts.URL+"/api/weather?lat=49.4&lon=8.17")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	aw := decodeBody[weather.AutoWeather](t, resp)
	assert.Equal(t, "Deidesheim", aw.Region)
	assert.Equal(t, weather.TrendRising, aw.TempTrend)

	assert.Equal(t, http.StatusBadRequest, get(t, ts.URL+"/api/weather?lat=abc&lon=8").StatusCode)
	assert.Equal(t, http.StatusBadRequest, get(t, ts.URL+"/api/weather?lat=95&lon=8").StatusCode)
}

func TestWeather_UpstreamFailure(t *testing.T) {
	ts := newTestServer(t, func(o *Options) {
		o.Weather = &fakeWeather{err: fmt.Errorf("%w: timeout", weather.ErrFetch)}
	})
	resp := get(t, ts.URL+"/api/weather?lat=49.4&lon=8.17")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "Fehler beim Abrufen der Wetterdaten.", decodeBody[errorResponse](t, resp).Error)
}

func TestImageEdit(t *testing.T) {
	tests := []struct {
		name       string
		images     ImageEditor
		wantStatus int
	}{
		{"edited", &fakeImages{out: "data:image/png;base64,eHl6"}, http.StatusOK},
		{"disabled", nil, http.StatusServiceUnavailable},
		{"no image returned", &fakeImages{err: imageedit.ErrNoImage}, http.StatusUnprocessableEntity},
		{"invalid data url", &fakeImages{err: imageedit.ErrInvalidDataURL}, http.StatusBadRequest},
		{"too large", &fakeImages{err: imageedit.ErrTooLarge}, http.StatusRequestEntityTooLarge},
		{"upstream", &fakeImages{err: errors.New("boom")}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, func(o *Options) { o.Images = tt.images })
			resp := postJSON(t, ts.URL+"/api/image-edit", ImageEditRequest{
				Image:  "data:image/jpeg;base64,eHl6",
				Prompt: imageedit.Suggestions[0],
			})
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "data:image/png;base64,eHl6", decodeBody[ImageEditResponse](t, resp).Image)
			}
		})
	}
}

// photoDataURL builds a JPEG data URL whose decoded size is n bytes.
func photoDataURL(n int) string {
	data := make([]byte, n)
	copy(data, "\xff\xd8\xff\xe0")
	return imageedit.EncodeDataURL("image/jpeg", data)
}

type echoBackend struct{}

func (echoBackend) EditImage(_ context.Context, img llm.Image, _ string) (*llm.Image, error) {
	return &llm.Image{MIMEType: "image/png", Data: img.Data[:16]}, nil
}

func TestImageEdit_SizeLimit(t *testing.T) {
	s, err := New(Options{
		Advisor: &fakeAdvisor{},
		Weather: &fakeWeather{},
		Images:  imageedit.New(echoBackend{}),
	})
	require.NoError(t, err)

	post := func(n int) *httptest.ResponseRecorder {
		body, err := json.Marshal(ImageEditRequest{Image: photoDataURL(n), Prompt: imageedit.Suggestions[2]})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/image-edit", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		return rec
	}

	rec := post(imageedit.MaxImageBytes - 100<<10)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = post(imageedit.MaxImageBytes)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = post(imageedit.MaxImageBytes + 100<<10)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, imageedit.ErrTooLarge.Error(), body.Error)
}

func TestImageEdit_NoImageMessage(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.Images = &fakeImages{err: imageedit.ErrNoImage} })
	resp := postJSON(t, ts.URL+"/api/image-edit", ImageEditRequest{Image: "data:image/png;base64,eHl6", Prompt: "x"})
	assert.Equal(t, "Bild konnte nicht bearbeitet werden.", decodeBody[errorResponse](t, resp).Error)
}

func TestStages(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := get(t, ts.URL+"/api/stages")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stages := decodeBody[[]map[string]any](t, resp)
	require.Len(t, stages, 11)
	assert.Equal(t, "00", stages[0]["bbch"])
	assert.Contains(t, stages[0], "vitisExpertTip")

	resp = get(t, ts.URL+"/api/stages/5")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "05", decodeBody[map[string]any](t, resp)["bbch"])

	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+"/api/stages/42").StatusCode)
}

func TestChartSVG(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := get(t, ts.URL+"/api/chart.svg")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	assert.Contains(t, readBody(t, resp), "<svg")
}

func TestHistory(t *testing.T) {
	ts := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+"/api/history").StatusCode)

	j, err := journal.Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	ts = newTestServer(t, func(o *Options) { o.Journal = j })

	require.Equal(t, http.StatusOK, postJSON(t, ts.URL+"/api/recommend", sampleInput()).StatusCode)
	form := url.Values{"variety": {"Silvaner"}, "region": {"Franken"}}
	for k, v := range map[string]string{"phenology": "BBCH 05: Wollestadium", "tempTrend": "Sinkend", "frostRisk": "Mittel", "goal": "Hoher Ertrag"} {
		form.Set(k, v)
	}
	resp, err := http.PostForm(ts.URL+"/advice", form)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, ts.URL+"/api/history?limit=10")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decodeBody[[]journal.Entry](t, resp)
	require.Len(t, entries, 2)
	assert.Equal(t, "gemini", entries[0].Provider)
	assert.Equal(t, http.StatusBadRequest, get(t, ts.URL+"/api/history?limit=-1").StatusCode)
}

func TestHistoryEntry(t *testing.T) {
	ts := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+"/api/history/abc").StatusCode)

	j, err := journal.Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	ts = newTestServer(t, func(o *Options) { o.Journal = j })

	require.Equal(t, http.StatusOK, postJSON(t, ts.URL+"/api/recommend", sampleInput()).StatusCode)
	entries := decodeBody[[]journal.Entry](t, get(t, ts.URL+"/api/history"))
	require.Len(t, entries, 1)

	resp := get(t, ts.URL+"/api/history/"+entries[0].ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	e := decodeBody[journal.Entry](t, resp)
	assert.Equal(t, entries[0].ID, e.ID)
	assert.Equal(t, "Riesling", e.Input.Variety)
	assert.Equal(t, advice.VerdictWait, e.Recommendation.Verdict)

	resp = get(t, ts.URL+"/api/history/00000000-0000-0000-0000-000000000000")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, msgUnknownEntry, decodeBody[errorResponse](t, resp).Error)
}

func TestSchema(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := get(t, ts.URL+"/api/schema")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	schemas := decodeBody[map[string]map[string]any](t, resp)
	for _, name := range []string{"PruningInput", "PruningRecommendation", "AutoWeather", "ImageEditRequest", "Stage", "HistoryEntry"} {
		assert.Contains(t, schemas, name)
	}
	props, ok := schemas["PruningRecommendation"]["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "verdict")
}

func TestHealthAndRequestID(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, resp.Header.Get(requestIDHeader), 36)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "trace-123")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "trace-123", resp2.Header.Get(requestIDHeader))
}

func TestRecoverer(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.Advisor = &fakeAdvisor{panic: true} })
	resp := postJSON(t, ts.URL+"/api/recommend", sampleInput())
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestPages(t *testing.T) {
	ts := newTestServer(t, nil)
	tests := []struct {
		path string
		want []string
	}{
		{"/", []string{"Schnitt-Assistent", "Empfehlung einholen", "Spalier (Guyot)", `value="BBCH 00: Winterruhe" selected`}},
		{"/guide", []string{"Phänologie-Guide", "Wollestadium", "Phänologische Schnittverzögerung", "badge-red", "<circle"}},
		{"/editor", []string{"Foto-Optimierung", "Verwandle das Foto in eine Bleistiftzeichnung", "nicht konfiguriert"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := get(t, ts.URL+tt.path)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
			body := readBody(t, resp)
			for _, w := range tt.want {
				assert.Contains(t, body, w)
			}
		})
	}
	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+"/nope").StatusCode)
}

func TestAdviceForm(t *testing.T) {
	ts := newTestServer(t, nil)

	form := url.Values{}
	in := sampleInput()
	form.Set("variety", in.Variety)
	form.Set("region", in.Region)
	form.Set("phenology", in.Phenology)
	form.Set("tempTrend", in.TempTrend)
	form.Set("frostRisk", in.FrostRisk)
	form.Set("goal", in.Goal)

	resp, err := http.PostForm(ts.URL+"/advice", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "noch warten")
	assert.Contains(t, body, "verdict-amber")
	assert.Contains(t, body, "Stumpfe Schere")
	assert.Contains(t, body, `value="Riesling"`)

	resp2, err := http.PostForm(ts.URL+"/advice", url.Values{"variety": {"Riesling"}})
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
	assert.Contains(t, readBody(t, resp2), "Pflichtfelder")
}

func TestAdviceForm_KeepsFreeTextSelection(t *testing.T) {
	ts := newTestServer(t, nil)

	in := sampleInput()
	form := url.Values{}
	form.Set("variety", in.Variety)
	form.Set("region", in.Region)
	form.Set("trainingSystem", "Lyra-Erziehung")
	form.Set("phenology", in.Phenology)
	form.Set("tempTrend", in.TempTrend)
	form.Set("frostRisk", in.FrostRisk)
	form.Set("goal", "Eiswein")

	resp, err := http.PostForm(ts.URL+"/advice", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, `<option value="Lyra-Erziehung" selected>`)
	assert.Contains(t, body, `<option value="Eiswein" selected>`)
	assert.Equal(t, 1, strings.Count(body, `<option value="Eiswein"`))
	assert.Contains(t, body, `<option value="Gering" selected>`)
	assert.NotContains(t, body, `<option value="Spalier (Guyot)" selected>`)
}

func TestVerdictClass(t *testing.T) {
	assert.Contains(t, verdictClass(advice.VerdictPruneNow), "green")
	assert.Contains(t, verdictClass(advice.VerdictWait), "amber")
	assert.Contains(t, verdictClass(advice.VerdictPrepareOnly), "blue")
}

func TestServe_GracefulShutdown(t *testing.T) {
	s, err := New(Options{Advisor: &fakeAdvisor{}, Weather: &fakeWeather{}})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
