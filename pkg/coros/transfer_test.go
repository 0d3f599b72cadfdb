package coros

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dlenski/corostc/pkg/coros/errors"
)

func TestGetDownloadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/activity/detail/download", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "act-1", q.Get("labelId"))
		assert.Equal(t, "100", q.Get("sportType"))
		assert.Equal(t, "4", q.Get("fileType"))
		writeEnvelope(w, map[string]any{"fileUrl": "https://files.example.com/act-1.fit"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	url, err := c.GetDownloadURL(context.Background(), "act-1", SportRun, FileTypeFIT)
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/act-1.fit", url)
}

func TestGetDownloadURL_NoneAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, map[string]any{})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	url, err := c.GetDownloadURL(context.Background(), "act-1", SportRun, FileTypeGPX)
	require.NoError(t, err)
	assert.Equal(t, "", url)
}

func TestDownloadActivity(t *testing.T) {
	content := []byte("not really a FIT file")
	var fileToken string

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/activity/detail/download":
			writeEnvelope(w, map[string]any{"fileUrl": srv.URL + "/files/act-1.fit"})
		case "/files/act-1.fit":
			// signed URL: the token header must not come along
			fileToken = r.Header.Get("accessToken")
			w.Write(content)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, AccessToken: "tok-123"})
	got, err := c.DownloadActivity(context.Background(), "act-1", SportRun, FileTypeFIT)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, "", fileToken)
}

func TestDownloadActivity_NoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, map[string]any{})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.DownloadActivity(context.Background(), "act-1", SportRun, FileTypeFIT)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrCodeDownloadFailed, appErr.Code)
}

func TestDownloadActivity_FileFetchFails(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/activity/detail/download":
			writeEnvelope(w, map[string]any{"fileUrl": srv.URL + "/files/gone.fit"})
		default:
			http.Error(w, "gone", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.DownloadActivity(context.Background(), "act-1", SportRun, FileTypeFIT)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrCodeTransportFailed, appErr.Code)
}

type uploadCapture struct {
	jsonParameter string
	filename      string
	content       []byte
}

func captureUpload(t *testing.T, r *http.Request) *uploadCapture {
	t.Helper()
	require.NoError(t, r.ParseMultipartForm(1<<20))

	up := &uploadCapture{jsonParameter: r.FormValue("jsonParameter")}
	file, header, err := r.FormFile("sportData")
	require.NoError(t, err)
	defer file.Close()

	up.filename = header.Filename
	up.content, err = io.ReadAll(file)
	require.NoError(t, err)
	return up
}

func TestUploadActivity_Compressed(t *testing.T) {
	original := []byte("FIT-ish bytes")
	var up *uploadCapture

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/activity/fit/import", r.URL.Path)
		up = captureUpload(t, r)
		writeEnvelope(w, nil)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	labelID, err := c.UploadActivity(context.Background(), "ride.fit", bytes.NewReader(original), UploadOptions{})
	require.NoError(t, err)

	// no FIT parser configured: upload succeeds, identity stays unknown
	assert.Equal(t, "", labelID)

	require.NotNil(t, up)
	assert.Equal(t, "{}", up.jsonParameter)
	assert.Equal(t, "ride.fit.gz", up.filename)

	gz, err := gzip.NewReader(bytes.NewReader(up.content))
	require.NoError(t, err)
	assert.Equal(t, "ride.fit", gz.Name)
	decompressed, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, original, decompressed)
}

func TestUploadActivity_Uncompressed(t *testing.T) {
	original := []byte("FIT-ish bytes")
	var up *uploadCapture

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up = captureUpload(t, r)
		writeEnvelope(w, nil)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.UploadActivity(context.Background(), "ride.fit", bytes.NewReader(original),
		UploadOptions{DisableCompression: true})
	require.NoError(t, err)

	require.NotNil(t, up)
	assert.Equal(t, "ride.fit", up.filename)
	assert.Equal(t, original, up.content)
}

func TestUploadActivity_VendorRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, "5001", "unsupported file")
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.UploadActivity(context.Background(), "ride.fit", bytes.NewReader([]byte("x")), UploadOptions{})
	require.Error(t, err)

	var apiErr *apperrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "5001", apiErr.Result)
}

// fixedStartTimeParser is a FITParser stub.
type fixedStartTimeParser struct {
	start time.Time
	err   error
}

func (p *fixedStartTimeParser) SessionStartTime([]byte) (time.Time, error) {
	return p.start, p.err
}

func TestUploadActivity_Correlation(t *testing.T) {
	start := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)
	var listQueries []map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/activity/fit/import":
			writeEnvelope(w, nil)
		case "/activity/query":
			q := r.URL.Query()
			listQueries = append(listQueries, map[string]string{
				"startDay": q.Get("startDay"),
				"endDay":   q.Get("endDay"),
			})
			writeEnvelope(w, map[string]any{
				"count": 2,
				"dataList": []map[string]any{
					{"labelId": "other", "startTime": start.Unix() - 5, "sportType": 100},
					{"labelId": "the-one", "startTime": start.Unix(), "sportType": 100},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:   srv.URL,
		FITParser: &fixedStartTimeParser{start: start},
	})
	labelID, err := c.UploadActivity(context.Background(), "ride.fit", bytes.NewReader([]byte("x")), UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "the-one", labelID)

	// relisting is bounded to one calendar day around the start time
	require.Len(t, listQueries, 1)
	assert.Equal(t, "20230430", listQueries[0]["startDay"])
	assert.Equal(t, "20230502", listQueries[0]["endDay"])
}

func TestUploadActivity_CorrelationTolerance(t *testing.T) {
	start := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/activity/fit/import":
			writeEnvelope(w, nil)
		case "/activity/query":
			// both candidates a full second away: no match
			writeEnvelope(w, map[string]any{
				"count": 2,
				"dataList": []map[string]any{
					{"labelId": "before", "startTime": start.Unix() - 1, "sportType": 100},
					{"labelId": "after", "startTime": start.Unix() + 1, "sportType": 100},
				},
			})
		}
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:   srv.URL,
		FITParser: &fixedStartTimeParser{start: start},
	})
	labelID, err := c.UploadActivity(context.Background(), "ride.fit", bytes.NewReader([]byte("x")), UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "", labelID)
}

func TestUploadActivity_CorrelationNonUTCStartTime(t *testing.T) {
	start := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/activity/fit/import":
			writeEnvelope(w, nil)
		case "/activity/query":
			writeEnvelope(w, map[string]any{
				"count": 1,
				"dataList": []map[string]any{
					{"labelId": "the-one", "startTime": start.Unix(), "sportType": 100},
				},
			})
		}
	}))
	defer srv.Close()

	var logged []string
	logger := funcr.New(func(prefix, args string) {
		logged = append(logged, args)
	}, funcr.Options{Verbosity: 1})

	// parser hands back the same instant in a non-UTC zone
	c := NewClient(Config{
		BaseURL:   srv.URL,
		Logger:    &logger,
		FITParser: &fixedStartTimeParser{start: start.In(time.FixedZone("UTC+01", 3600))},
	})
	labelID, err := c.UploadActivity(context.Background(), "ride.fit", bytes.NewReader([]byte("x")), UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "the-one", labelID)

	found := false
	for _, line := range logged {
		if strings.Contains(line, "assuming UTC") {
			found = true
		}
	}
	assert.True(t, found, "expected an assume-UTC log line, got %v", logged)
}

func TestUploadActivity_ParserFailureIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/activity/fit/import", r.URL.Path)
		writeEnvelope(w, nil)
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:   srv.URL,
		FITParser: &fixedStartTimeParser{err: errors.New("truncated file")},
	})
	labelID, err := c.UploadActivity(context.Background(), "ride.fit", bytes.NewReader([]byte("x")), UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "", labelID)
}

func TestDeleteActivity(t *testing.T) {
	var gotLabel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/activity/delete", r.URL.Path)
		gotLabel = r.URL.Query().Get("labelId")
		writeEnvelope(w, nil)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, c.DeleteActivity(context.Background(), "act-1"))
	assert.Equal(t, "act-1", gotLabel)
}

func TestUpdateActivity(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/activity/update", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeEnvelope(w, nil)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	err := c.UpdateActivity(context.Background(), "act-1", map[string]any{
		"name":   "Morning Run",
		"device": 7,
	})
	require.NoError(t, err)

	assert.Equal(t, "act-1", body["labelId"])
	assert.Equal(t, "Morning Run", body["name"])
	assert.Equal(t, float64(7), body["device"])
}

func TestActivityDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/activity/detail/query", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "act-1", r.PostFormValue("labelId"))
		assert.Equal(t, "100", r.PostFormValue("sportType"))
		writeEnvelope(w, map[string]any{
			"summary": map[string]any{"name": "Morning Run"},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	detail, err := c.ActivityDetail(context.Background(), "act-1", SportRun)
	require.NoError(t, err)

	summary, ok := detail["summary"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Morning Run", summary["name"])
}
