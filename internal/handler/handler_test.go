package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"medifusion-go/internal/config"
	"medifusion-go/internal/doctor"
	"medifusion-go/internal/middleware"
	"medifusion-go/internal/model"
	"medifusion-go/internal/service"
	"medifusion-go/internal/session"
	"medifusion-go/pkg/apiclient"
	"medifusion-go/pkg/store"
	"medifusion-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const diagnosisJSON = `{"diagnosis_summary":"Likely angina","conditions":[{"name":"Angina","confidence":72}],"recommended_specialist":"Cardiology","recommended_tests":["ECG"]}`

// fakeBackend 模拟后端 REST API。pending 控制任务在成功前返回多少次 PENDING。
type fakeBackend struct {
	pending int32
	polls   int32

	mu         sync.Mutex
	fileType   string
	submitKind string
	medicines  []model.Medicine
	result     string
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"Incorrect email or password"}`))
			return
		}
		w.Write([]byte(`{"access_token":"tok","token_type":"bearer"}`))
	})
	mux.HandleFunc("/disease/predict", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			f.submitKind = "multipart"
			if _, fh, err := r.FormFile("file"); err == nil {
				f.fileType = fh.Header.Get("Content-Type")
			}
		} else {
			f.submitKind = "json"
		}
		f.mu.Unlock()
		w.Write([]byte(`{"task_id":"t1","status":"PENDING","consultation_id":7}`))
	})
	mux.HandleFunc("/disease/result/t1", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&f.polls, 1)
		if n <= atomic.LoadInt32(&f.pending) {
			w.Write([]byte(`{"status":"PENDING"}`))
			return
		}
		f.mu.Lock()
		result := f.result
		f.mu.Unlock()
		if result == "" {
			result = diagnosisJSON
		}
		w.Write([]byte(`{"status":"SUCCESS","result":` + result + `}`))
	})
	mux.HandleFunc("/disease/history", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":3,"symptoms":"a","diagnosis":"x"},{"id":2,"symptoms":"b","diagnosis":"y"},{"id":1,"symptoms":"c","diagnosis":"z"}]`))
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"email":"a@b.c","height":"180","weight":"75","role":"patient"}`))
	})
	mux.HandleFunc("/medicines", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.Method == http.MethodPost {
			var in model.MedicineInput
			json.NewDecoder(r.Body).Decode(&in)
			m := model.Medicine{ID: len(f.medicines) + 1, Name: in.Name, Dosage: in.Dosage, Frequency: in.Frequency, ReminderTime: in.ReminderTime, IsActive: 1}
			f.medicines = append(f.medicines, m)
			json.NewEncoder(w).Encode(m)
			return
		}
		json.NewEncoder(w).Encode(f.medicines)
	})
	mux.HandleFunc("/medicines/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (f *fakeBackend) submitted() (kind, fileType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitKind, f.fileType
}

type fakeArchive struct {
	objectName string
	size       int
	err        error
}

func (a *fakeArchive) Upload(_ context.Context, objectName string, data []byte) (string, error) {
	a.objectName = objectName
	a.size = len(data)
	if a.err != nil {
		return "", a.err
	}
	return "https://minio.local/" + objectName + "?sig=1", nil
}

type testEnv struct {
	router   *gin.Engine
	backend  *fakeBackend
	sessions *session.Manager
	analyses *service.AnalysisRegistry
	reports  *ReportHandler
	clientID string
	cookie   *http.Cookie
}

func newTestEnv(t *testing.T, archive ReportArchive) *testEnv {
	t.Helper()
	fb := &fakeBackend{}
	backend := httptest.NewServer(fb.handler())
	t.Cleanup(backend.Close)

	sessions := session.NewManager(store.NewMemory())
	api := apiclient.New(backend.URL, 5*time.Second)
	analyses := service.NewAnalysisRegistry(func(id string) *service.AnalysisWorkflow {
		return service.NewAnalysisWorkflow(id, api.WithTokens(sessions.Get(id)), sessions.Store(id), nil,
			service.PollOptions{Interval: 5 * time.Millisecond})
	})
	t.Cleanup(analyses.CloseAll)

	directory, err := doctor.Load()
	if err != nil {
		t.Fatalf("load doctors: %v", err)
	}
	medicines := service.NewMedicineService(api, sessions)
	reports := NewReportHandler(sessions, archive, "")
	reports.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }

	tm := token.NewClientTokenManager("test-secret", 1)
	r := gin.New()
	r.Use(middleware.ClientIdentity(tm, sessions, config.ClientConfig{CookieName: "mf_client", ExpireHours: 1}))
	RegisterRoutes(r, Handlers{
		Users:     NewUserHandler(service.NewUserService(api, sessions), medicines, analyses, sessions),
		Analysis:  NewAnalysisHandler(analyses, sessions),
		Predict:   NewPredictHandler(analyses),
		Doctors:   NewDoctorHandler(directory, sessions),
		Reports:   reports,
		History:   NewHistoryHandler(service.NewHistoryService(api, sessions)),
		Medicines: NewMedicineHandler(medicines),
	})

	id, signed, err := tm.Issue()
	if err != nil {
		t.Fatalf("issue client cookie: %v", err)
	}
	return &testEnv{
		router:   r,
		backend:  fb,
		sessions: sessions,
		analyses: analyses,
		reports:  reports,
		clientID: id,
		cookie:   &http.Cookie{Name: "mf_client", Value: signed},
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) send(t *testing.T, method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.AddCookie(e.cookie)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) sendJSON(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	w := e.send(t, method, path, "application/json", r)
	var env envelope
	if w.Header().Get("Content-Type") != "" && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode response: %v (%s)", method, path, err, w.Body.String())
		}
	}
	return w.Code, env
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	code, env := e.sendJSON(t, http.MethodPost, "/api/v1/session/login", `{"username":"a@b.c","password":"secret"}`)
	if code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d %s", code, env.Message)
	}
}

func (e *testEnv) waitForState(t *testing.T, want service.AnalysisState) service.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, env := e.sendJSON(t, http.MethodGet, "/api/v1/analysis", "")
		var snap service.Snapshot
		json.Unmarshal(env.Data, &snap)
		if snap.State == want {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s, last state %s", want, snap.State)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLanding_FreshClient(t *testing.T) {
	e := newTestEnv(t, nil)
	code, env := e.sendJSON(t, http.MethodGet, "/", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var landing LandingResponse
	json.Unmarshal(env.Data, &landing)
	if landing.Authenticated || landing.Guest || landing.Diagnosis != nil {
		t.Errorf("expected empty landing state, got %+v", landing)
	}
}

func TestReadOnlyRoutes_RetainNoClientState(t *testing.T) {
	e := newTestEnv(t, nil)

	// 每个请求使用不同的客户端 cookie，模拟大量一次性访问
	tm := token.NewClientTokenManager("test-secret", 1)
	for i := 0; i < 5; i++ {
		_, signed, err := tm.Issue()
		if err != nil {
			t.Fatal(err)
		}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "mf_client", Value: signed})
		w := httptest.NewRecorder()
		e.router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	}
	// 没有 cookie 的首次访问会签发新身份
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if n := e.sessions.Len(); n != 0 {
		t.Errorf("expected no in-memory sessions after GET /, got %d", n)
	}

	e.sendJSON(t, http.MethodPost, "/api/v1/session/guest", "")
	code, env := e.sendJSON(t, http.MethodGet, "/api/v1/analysis", "")
	var snap service.Snapshot
	json.Unmarshal(env.Data, &snap)
	if code != http.StatusOK || snap.State != service.StateIdle {
		t.Errorf("expected idle snapshot, got %d %+v", code, snap)
	}
	if code, _ := e.sendJSON(t, http.MethodGet, "/api/v1/analysis/last", ""); code != http.StatusNotFound {
		t.Errorf("expected 404 without a diagnosis, got %d", code)
	}
	e.sendJSON(t, http.MethodDelete, "/api/v1/analysis", "")
	if n := e.analyses.Len(); n != 0 {
		t.Errorf("read-only analysis routes must not create workflows, got %d", n)
	}

	e.sendJSON(t, http.MethodDelete, "/api/v1/session/guest", "")
	if n := e.sessions.Len(); n != 0 {
		t.Errorf("leaving guest mode must drop the entry, got %d", n)
	}
}

func TestLogin(t *testing.T) {
	e := newTestEnv(t, nil)
	e.login(t)

	_, env := e.sendJSON(t, http.MethodGet, "/", "")
	var landing LandingResponse
	json.Unmarshal(env.Data, &landing)
	if !landing.Authenticated {
		t.Error("expected authenticated after login")
	}
}

func TestLogin_Failures(t *testing.T) {
	e := newTestEnv(t, nil)

	code, env := e.sendJSON(t, http.MethodPost, "/api/v1/session/login", `{"username":"a@b.c","password":"wrong"}`)
	if code != http.StatusUnauthorized || env.Message != "Incorrect email or password" {
		t.Errorf("expected backend 401 message, got %d %q", code, env.Message)
	}

	code, _ = e.sendJSON(t, http.MethodPost, "/api/v1/session/login", `{"username":"a@b.c"}`)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing password, got %d", code)
	}
}

func TestAnalysis_RequiresSessionOrGuest(t *testing.T) {
	e := newTestEnv(t, nil)

	code, _ := e.sendJSON(t, http.MethodPost, "/api/v1/analysis", `{"symptoms":"chest pain"}`)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401 before guest mode, got %d", code)
	}

	e.sendJSON(t, http.MethodPost, "/api/v1/session/guest", "")
	code, _ = e.sendJSON(t, http.MethodPost, "/api/v1/analysis", `{"symptoms":"chest pain"}`)
	if code != http.StatusOK {
		t.Fatalf("expected guest submit to pass, got %d", code)
	}

	e.sendJSON(t, http.MethodDelete, "/api/v1/session/guest", "")
	code, _ = e.sendJSON(t, http.MethodGet, "/api/v1/analysis", "")
	if code != http.StatusUnauthorized {
		t.Errorf("expected 401 after leaving guest mode, got %d", code)
	}
}

func TestAnalysis_SubmitPollAndFollowUps(t *testing.T) {
	archive := &fakeArchive{}
	e := newTestEnv(t, archive)
	atomic.StoreInt32(&e.backend.pending, 2)
	e.sendJSON(t, http.MethodPost, "/api/v1/session/guest", "")

	code, env := e.sendJSON(t, http.MethodPost, "/api/v1/analysis", `{"symptoms":"  chest pain  "}`)
	if code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d %s", code, env.Message)
	}
	var snap service.Snapshot
	json.Unmarshal(env.Data, &snap)
	if snap.State != service.StateProcessing || snap.TaskID != "t1" {
		t.Fatalf("expected processing t1, got %+v", snap)
	}

	done := e.waitForState(t, service.StateSuccess)
	if done.View == nil || done.View.Summary != "Likely angina" || done.View.Conditions[0].BarWidth != "72%" {
		t.Fatalf("unexpected rendered result %+v", done.View)
	}
	if got := atomic.LoadInt32(&e.backend.polls); got != 3 {
		t.Errorf("expected 3 polls, got %d", got)
	}
	if kind, _ := e.backend.submitted(); kind != "json" {
		t.Errorf("expected JSON submit, got %s", kind)
	}

	t.Run("last", func(t *testing.T) {
		code, env := e.sendJSON(t, http.MethodGet, "/api/v1/analysis/last", "")
		var view model.DiagnosisView
		json.Unmarshal(env.Data, &view)
		if code != http.StatusOK || view.Specialist != "Cardiology" {
			t.Errorf("expected cached view, got %d %+v", code, view)
		}
	})

	t.Run("landing shows cached diagnosis", func(t *testing.T) {
		_, env := e.sendJSON(t, http.MethodGet, "/", "")
		var landing LandingResponse
		json.Unmarshal(env.Data, &landing)
		if !landing.Guest || landing.Diagnosis == nil || landing.Diagnosis.Summary != "Likely angina" {
			t.Errorf("unexpected landing %+v", landing)
		}
	})

	t.Run("doctors default to recommended specialist", func(t *testing.T) {
		_, env := e.sendJSON(t, http.MethodGet, "/api/v1/doctors", "")
		var res doctor.Result
		json.Unmarshal(env.Data, &res)
		if res.Specialty != "Cardiologist" || len(res.Doctors) != 4 {
			t.Errorf("expected 4 cardiologists, got %s %d", res.Specialty, len(res.Doctors))
		}
	})

	t.Run("pdf", func(t *testing.T) {
		w := e.send(t, http.MethodGet, "/api/v1/report", "", nil)
		if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/pdf" {
			t.Fatalf("expected PDF, got %d %s", w.Code, w.Header().Get("Content-Type"))
		}
		if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")) {
			t.Error("body is not a PDF")
		}
		if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="MediFusion_Report.pdf"` {
			t.Errorf("unexpected Content-Disposition %q", cd)
		}
	})

	t.Run("archive", func(t *testing.T) {
		code, env := e.sendJSON(t, http.MethodGet, "/api/v1/report?archive=1", "")
		var out struct {
			URL string `json:"url"`
		}
		json.Unmarshal(env.Data, &out)
		want := "reports/" + e.clientID + "/20260301T100000Z-MediFusion_Report.pdf"
		if code != http.StatusOK || archive.objectName != want || archive.size == 0 {
			t.Fatalf("unexpected archive upload %d %q (%d bytes)", code, archive.objectName, archive.size)
		}
		if !strings.Contains(out.URL, want) {
			t.Errorf("expected presigned URL for %s, got %s", want, out.URL)
		}
	})
}

func TestAnalysis_SuccessWithStringResultFails(t *testing.T) {
	e := newTestEnv(t, nil)
	e.backend.mu.Lock()
	e.backend.result = `"No result returned"`
	e.backend.mu.Unlock()
	e.sendJSON(t, http.MethodPost, "/api/v1/session/guest", "")

	if code, env := e.sendJSON(t, http.MethodPost, "/api/v1/analysis", `{"symptoms":"fever"}`); code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d %s", code, env.Message)
	}
	snap := e.waitForState(t, service.StateFailure)
	if snap.Error != "Task failed. Please try again." {
		t.Errorf("unexpected error message %q", snap.Error)
	}
	assertPollingStopped(t, e.backend)
	if code, _ := e.sendJSON(t, http.MethodGet, "/api/v1/analysis/last", ""); code != http.StatusNotFound {
		t.Errorf("nothing should be cached, got %d", code)
	}
}

func TestAnalysis_ValidationErrors(t *testing.T) {
	e := newTestEnv(t, nil)
	e.sendJSON(t, http.MethodPost, "/api/v1/session/guest", "")

	code, env := e.sendJSON(t, http.MethodPost, "/api/v1/analysis", `{"symptoms":"   "}`)
	if code != http.StatusBadRequest || env.Message != service.ErrEmptySymptoms.Error() {
		t.Errorf("expected empty symptoms error, got %d %q", code, env.Message)
	}

	body, ct := multipartBody(t, "headache", "notes.txt", []byte("plain text notes"))
	w := e.send(t, http.MethodPost, "/api/v1/analysis", ct, body)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Please select an image") {
		t.Errorf("expected unsupported attachment error, got %d %s", w.Code, w.Body.String())
	}
	if kind, _ := e.backend.submitted(); kind != "" || atomic.LoadInt32(&e.backend.polls) != 0 {
		t.Error("invalid submissions must not reach the backend")
	}
}

func TestAnalysis_MultipartAttachment(t *testing.T) {
	e := newTestEnv(t, nil)
	e.sendJSON(t, http.MethodPost, "/api/v1/session/guest", "")

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	body, ct := multipartBody(t, "rash on arm", "rash.png", png)
	w := e.send(t, http.MethodPost, "/api/v1/analysis", ct, body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}

	if kind, fileType := e.backend.submitted(); kind != "multipart" || fileType != "image/png" {
		t.Errorf("expected multipart submit with sniffed image/png, got %s %s", kind, fileType)
	}
}

// multipartBody 构造一个表单；CreateFormFile 会把文件类型设为 application/octet-stream。
func multipartBody(t *testing.T, symptoms, fileName string, data []byte) (io.Reader, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	mw.WriteField("symptoms", symptoms)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(data)
	mw.Close()
	return buf, mw.FormDataContentType()
}

func TestAnalysis_CancelReturnsToIdle(t *testing.T) {
	e := newTestEnv(t, nil)
	atomic.StoreInt32(&e.backend.pending, 1<<30)
	e.sendJSON(t, http.MethodPost, "/api/v1/session/guest", "")

	e.sendJSON(t, http.MethodPost, "/api/v1/analysis", `{"symptoms":"fever"}`)
	code, env := e.sendJSON(t, http.MethodDelete, "/api/v1/analysis", "")
	var snap service.Snapshot
	json.Unmarshal(env.Data, &snap)
	if code != http.StatusOK || snap.State != service.StateIdle {
		t.Fatalf("expected idle after cancel, got %d %+v", code, snap)
	}

	assertPollingStopped(t, e.backend)
}

// assertPollingStopped 先等待可能仍在途的请求落地，再确认计数不再增长。
func assertPollingStopped(t *testing.T, fb *fakeBackend) {
	t.Helper()
	time.Sleep(50 * time.Millisecond)
	polls := atomic.LoadInt32(&fb.polls)
	time.Sleep(40 * time.Millisecond)
	if got := atomic.LoadInt32(&fb.polls); got != polls {
		t.Errorf("polling continued: %d polls, then %d", polls, got)
	}
}

func TestReport_Errors(t *testing.T) {
	e := newTestEnv(t, nil)
	e.sendJSON(t, http.MethodPost, "/api/v1/session/guest", "")

	if code, _ := e.sendJSON(t, http.MethodGet, "/api/v1/report", ""); code != http.StatusNotFound {
		t.Errorf("expected 404 without a diagnosis, got %d", code)
	}

	e.sessions.Store(e.clientID).Set(context.Background(), service.DiagnosisCacheKey, diagnosisJSON)
	if code, _ := e.sendJSON(t, http.MethodGet, "/api/v1/report?archive=1", ""); code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without an archive, got %d", code)
	}
}

func TestReport_ArchiveFailure(t *testing.T) {
	e := newTestEnv(t, &fakeArchive{err: errors.New("bucket gone")})
	e.sendJSON(t, http.MethodPost, "/api/v1/session/guest", "")
	e.sessions.Store(e.clientID).Set(context.Background(), service.DiagnosisCacheKey, diagnosisJSON)

	if code, _ := e.sendJSON(t, http.MethodGet, "/api/v1/report?archive=1", ""); code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", code)
	}
}

func TestDoctors_QueryParams(t *testing.T) {
	e := newTestEnv(t, nil)
	e.sendJSON(t, http.MethodPost, "/api/v1/session/guest", "")

	_, env := e.sendJSON(t, http.MethodGet, "/api/v1/doctors?specialist=heart%20cardio&pincode=500033", "")
	var res doctor.Result
	json.Unmarshal(env.Data, &res)
	if len(res.Doctors) != 1 || res.Doctors[0].ID != 101 || res.PincodeFallback {
		t.Errorf("expected doctor 101 only, got %+v", res)
	}

	_, env = e.sendJSON(t, http.MethodGet, "/api/v1/doctors", "")
	json.Unmarshal(env.Data, &res)
	if res.Specialty != doctor.DefaultSpecialty {
		t.Errorf("expected default specialty without a diagnosis, got %s", res.Specialty)
	}
}

func TestProtectedRoutes_RedirectWithoutLogin(t *testing.T) {
	e := newTestEnv(t, nil)
	e.sendJSON(t, http.MethodPost, "/api/v1/session/guest", "")

	for _, path := range []string{"/api/v1/history", "/api/v1/profile", "/api/v1/medicines", "/predict"} {
		w := e.send(t, http.MethodGet, path, "", nil)
		if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
			t.Errorf("%s: expected redirect to /, got %d", path, w.Code)
		}
	}
}

func TestHistoryAndProfile(t *testing.T) {
	e := newTestEnv(t, nil)
	e.login(t)

	_, env := e.sendJSON(t, http.MethodGet, "/api/v1/history?limit=2", "")
	var history []model.Consultation
	json.Unmarshal(env.Data, &history)
	if len(history) != 2 || history[0].ID != 3 {
		t.Errorf("expected the 2 newest entries, got %+v", history)
	}
	if code, _ := e.sendJSON(t, http.MethodGet, "/api/v1/history?limit=x", ""); code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad limit, got %d", code)
	}

	_, env = e.sendJSON(t, http.MethodGet, "/api/v1/profile", "")
	var profile model.ProfileView
	json.Unmarshal(env.Data, &profile)
	if profile.BMI == nil || *profile.BMI != 23.1 || profile.BMIStatus != "Healthy" {
		t.Errorf("unexpected profile %+v", profile)
	}
}

func TestMedicines(t *testing.T) {
	e := newTestEnv(t, nil)
	e.login(t)

	code, env := e.sendJSON(t, http.MethodPost, "/api/v1/medicines", `{"name":"Aspirin","dosage":"75mg","reminder_time":"08:00"}`)
	var m model.Medicine
	json.Unmarshal(env.Data, &m)
	if code != http.StatusOK || m.ID != 1 || m.Frequency != "Daily" {
		t.Fatalf("unexpected create %d %+v", code, m)
	}

	if code, _ := e.sendJSON(t, http.MethodPost, "/api/v1/medicines", `{"name":"X","dosage":"1","reminder_time":"8am"}`); code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad reminder time, got %d", code)
	}

	_, env = e.sendJSON(t, http.MethodGet, "/api/v1/medicines", "")
	var list []model.Medicine
	json.Unmarshal(env.Data, &list)
	if len(list) != 1 {
		t.Errorf("expected 1 medicine, got %d", len(list))
	}

	if code, _ := e.sendJSON(t, http.MethodDelete, "/api/v1/medicines/1", ""); code != http.StatusOK {
		t.Errorf("expected delete to succeed, got %d", code)
	}
	if code, _ := e.sendJSON(t, http.MethodDelete, "/api/v1/medicines/abc", ""); code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad id, got %d", code)
	}
}

func TestLogout_ClearsSessionAndStopsPolling(t *testing.T) {
	e := newTestEnv(t, nil)
	atomic.StoreInt32(&e.backend.pending, 1<<30)
	e.login(t)
	e.sendJSON(t, http.MethodPost, "/api/v1/analysis", `{"symptoms":"fever"}`)
	e.waitForState(t, service.StateProcessing)

	if code, _ := e.sendJSON(t, http.MethodPost, "/api/v1/session/logout", ""); code != http.StatusOK {
		t.Fatalf("expected logout to succeed, got %d", code)
	}

	assertPollingStopped(t, e.backend)
	if ok, _ := e.sessions.Get(e.clientID).IsAuthenticated(context.Background()); ok {
		t.Error("token survived logout")
	}
	if code, _ := e.sendJSON(t, http.MethodGet, "/api/v1/analysis", ""); code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", code)
	}
}

func TestBackendFailure_StatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		msg  string
	}{
		{&apiclient.APIError{StatusCode: http.StatusNotFound, Message: "Not found"}, http.StatusNotFound, "Not found"},
		{&apiclient.APIError{StatusCode: http.StatusInternalServerError, Message: "boom"}, http.StatusBadGateway, "boom"},
		{errors.New("dial tcp: connection refused"), http.StatusBadGateway, "fallback"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		backendFailure(c, tc.err, "fallback")

		var env envelope
		json.Unmarshal(w.Body.Bytes(), &env)
		if w.Code != tc.code || env.Message != tc.msg {
			t.Errorf("%v: expected %d %q, got %d %q", tc.err, tc.code, tc.msg, w.Code, env.Message)
		}
	}
}
