package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/echemlab/specimen/internal/config"
	"github.com/echemlab/specimen/internal/session"
	"github.com/echemlab/specimen/internal/xasproject"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T, maxFiles int) *Server {
	t.Helper()
	cfg, err := config.LoadBytes([]byte("[Global]\nXAS-Project-Root=" + t.TempDir() + "\n"))
	require.NoError(t, err)
	if maxFiles > 0 {
		cfg.Global.Max_Files_Per_Session = maxFiles
	}
	limits := session.Limits{
		MaxFiles:      cfg.Global.Max_Files_Per_Session,
		MaxFileSizeMB: cfg.Global.Max_File_Size_MB,
		MaxMemoryMB:   cfg.Global.Max_Session_Memory_MB,
		TTL:           cfg.TTL(),
	}
	mgr := session.NewManager(limits, nil)
	return NewServer(cfg, mgr, &xasproject.Holder{}, nil, nil, nil, nil)
}

func sampleDTA() []byte {
	var b strings.Builder
	b.WriteString("TAG\tTAG\tCV\n")
	b.WriteString("CURVE\tTABLE\tN\n")
	b.WriteString("T\tVf\tIm\n")
	b.WriteString("s\tV\tA\n")
	b.WriteString("0.0\t1.000\t0.001\n")
	b.WriteString("1.0\t1.010\t0.002\n")
	return []byte(b.String())
}

func multipartUpload(t *testing.T, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie issued")
	return nil
}

func TestSessionCookieIssued(t *testing.T) {
	srv := testServer(t, 0)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/session", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	c := sessionCookie(t, rec)
	require.True(t, c.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, c.SameSite)
	require.Equal(t, int(srv.cfg.TTL().Seconds()), c.MaxAge)

	// presenting the cookie reuses the session, no new cookie issued
	req := httptest.NewRequest("GET", "/api/session", nil)
	req.AddCookie(c)
	rec2 := httptest.NewRecorder()
	srv.ServeHTTP(rec2, req)
	require.Empty(t, rec2.Result().Cookies())
}

func TestUploadListAnalyze(t *testing.T) {
	srv := testServer(t, 0)
	body, contentType := multipartUpload(t, map[string][]byte{"cell1.DTA": sampleDTA()})
	req := httptest.NewRequest("POST", "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	c := sessionCookie(t, rec)

	var up struct {
		Results []uploadResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	require.Len(t, up.Results, 1)
	require.True(t, up.Results[0].OK)

	req = httptest.NewRequest("GET", "/api/files", nil)
	req.AddCookie(c)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	var list struct {
		Files []fileInfo `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Files, 1)
	require.Equal(t, "CV", list.Files[0].Technique)
	require.Equal(t, 2, list.Files[0].Rows)

	// time average over the uploaded table
	req = httptest.NewRequest("GET", "/api/files/cell1.DTA/analysis?kind=time_average&t_start=0&t_end=1", nil)
	req.AddCookie(c)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	var res struct {
		Value *float64 `json:"value"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.Value)
	require.InDelta(t, 0.0015, *res.Value, 1e-9)
}

func TestUploadQuotaPartialSuccess(t *testing.T) {
	srv := testServer(t, 2)
	body, contentType := multipartUpload(t, map[string][]byte{
		"a.DTA": sampleDTA(),
		"b.DTA": sampleDTA(),
		"c.DTA": sampleDTA(),
	})
	req := httptest.NewRequest("POST", "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var up struct {
		Results []uploadResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	require.Len(t, up.Results, 3)
	var okCount, failCount int
	for _, r := range up.Results {
		if r.OK {
			okCount++
		} else {
			failCount++
			require.Contains(t, r.Error, "QuotaExceeded")
		}
	}
	require.Equal(t, 2, okCount)
	require.Equal(t, 1, failCount)

	// session reports two files
	c := sessionCookie(t, rec)
	req = httptest.NewRequest("GET", "/api/session", nil)
	req.AddCookie(c)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	var info struct {
		FileCount int `json:"file_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.Equal(t, 2, info.FileCount)
}

func TestTransformEndpoint(t *testing.T) {
	srv := testServer(t, 0)
	body, contentType := multipartUpload(t, map[string][]byte{"cell1.DTA": sampleDTA()})
	req := httptest.NewRequest("POST", "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	c := sessionCookie(t, rec)

	payload := `{"op":"ir_compensate","value":10}`
	req = httptest.NewRequest("POST", "/api/files/cell1.DTA/transform", strings.NewReader(payload))
	req.AddCookie(c)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var res struct {
		Columns []string `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Contains(t, res.Columns, "potential_ir_corrected_V")
}

func TestExportImportOverHTTP(t *testing.T) {
	srv := testServer(t, 0)
	body, contentType := multipartUpload(t, map[string][]byte{"cell1.DTA": sampleDTA()})
	req := httptest.NewRequest("POST", "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	c := sessionCookie(t, rec)

	req = httptest.NewRequest("GET", "/api/session/export", nil)
	req.AddCookie(c)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	zipContent := rec.Body.Bytes()

	// import into a fresh session
	req = httptest.NewRequest("POST", "/api/session/import", bytes.NewReader(zipContent))
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	c2 := sessionCookie(t, rec)

	req = httptest.NewRequest("GET", "/api/files", nil)
	req.AddCookie(c2)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	var list struct {
		Files []fileInfo `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Files, 1)
	require.Equal(t, "cell1.DTA", list.Files[0].Filename)
	require.Equal(t, "CV", list.Files[0].Technique)
}

func TestAnalysisUnknownFileNotFound(t *testing.T) {
	srv := testServer(t, 0)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/files/missing.DTA/analysis?kind=charge", nil)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	var eb errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eb))
	require.Equal(t, "NotFound", eb.Error)
}

func TestMPRUploadWithoutDecoder(t *testing.T) {
	srv := testServer(t, 0)
	body, contentType := multipartUpload(t, map[string][]byte{"run.mpr": {0x00, 0x01}})
	req := httptest.NewRequest("POST", "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	var up struct {
		Results []uploadResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	require.Len(t, up.Results, 1)
	require.False(t, up.Results[0].OK)
}
