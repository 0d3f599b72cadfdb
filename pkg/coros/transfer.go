package coros

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/dlenski/corostc/pkg/coros/errors"
)

// GetDownloadURL resolves the signed file URL for one activity export. An
// empty return with nil error means the vendor offers no file in that
// format; callers must handle it.
func (c *Client) GetDownloadURL(ctx context.Context, labelID string, sportType SportType, fileType FileType) (string, error) {
	data, err := c.get(ctx, "/activity/detail/download", map[string]string{
		"labelId":   labelID,
		"sportType": strconv.Itoa(int(sportType)),
		"fileType":  strconv.Itoa(int(fileType)),
	})
	if err != nil {
		return "", err
	}
	var payload struct {
		FileURL string `json:"fileUrl"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", apperrors.New(apperrors.ErrCodeAPIError, "malformed download response", err)
	}
	return payload.FileURL, nil
}

// DownloadActivity resolves the export URL and fetches its content. The
// second fetch goes to a signed URL and carries no access token.
func (c *Client) DownloadActivity(ctx context.Context, labelID string, sportType SportType, fileType FileType) ([]byte, error) {
	fileURL, err := c.GetDownloadURL(ctx, labelID, sportType, fileType)
	if err != nil {
		return nil, err
	}
	if fileURL == "" {
		return nil, apperrors.New(apperrors.ErrCodeDownloadFailed,
			fmt.Sprintf("no %s file available for activity %s", fileType, labelID), nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "failed to create request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeTransportFailed, "failed to fetch activity file", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.New(apperrors.ErrCodeTransportFailed,
			fmt.Sprintf("unexpected status %d fetching activity file", resp.StatusCode), nil)
	}
	return io.ReadAll(resp.Body)
}

// UploadOptions controls UploadActivity.
type UploadOptions struct {
	// DisableCompression sends the file bytes uncompressed. By default the
	// content is wrapped in a gzip container that preserves the original
	// filename, and the transmitted name gets a .gz suffix.
	DisableCompression bool
}

// UploadActivity submits one FIT file to the import endpoint and then tries
// to identify the newly created activity.
//
// The returned label ID is best effort: without a configured FITParser, or
// when no freshly listed activity matches the file's session start time,
// it is empty with a nil error. A vendor rejection of the transfer itself
// is still an error.
func (c *Client) UploadActivity(ctx context.Context, filename string, r io.Reader, opts UploadOptions) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", apperrors.New(apperrors.ErrCodeUploadFailed, "failed to read activity file", err)
	}

	sendName := filename
	sendContent := content
	if !opts.DisableCompression {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		gz.Name = filename
		if _, err := gz.Write(content); err != nil {
			return "", apperrors.New(apperrors.ErrCodeUploadFailed, "failed to compress activity file", err)
		}
		if err := gz.Close(); err != nil {
			return "", apperrors.New(apperrors.ErrCodeUploadFailed, "failed to compress activity file", err)
		}
		sendName = filename + ".gz"
		sendContent = buf.Bytes()
	}

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	// The website sends {'source': ..., 'timezone': ...} here; an empty
	// object is accepted.
	if err := mw.WriteField("jsonParameter", "{}"); err != nil {
		return "", apperrors.New(apperrors.ErrCodeUploadFailed, "failed to build upload form", err)
	}
	fw, err := mw.CreateFormFile("sportData", sendName)
	if err != nil {
		return "", apperrors.New(apperrors.ErrCodeUploadFailed, "failed to build upload form", err)
	}
	if _, err := fw.Write(sendContent); err != nil {
		return "", apperrors.New(apperrors.ErrCodeUploadFailed, "failed to build upload form", err)
	}
	if err := mw.Close(); err != nil {
		return "", apperrors.New(apperrors.ErrCodeUploadFailed, "failed to build upload form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/activity/fit/import", &form)
	if err != nil {
		return "", apperrors.New(apperrors.ErrCodeInvalidInput, "failed to create request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if _, err := c.do(req); err != nil {
		return "", err
	}

	return c.correlateUpload(ctx, content)
}

// correlateUpload finds the label ID of a just-uploaded activity by matching
// its FIT session start time against a relisting bounded to the surrounding
// calendar days. Misses are logged, not errors.
func (c *Client) correlateUpload(ctx context.Context, content []byte) (string, error) {
	if c.fitParser == nil {
		c.logger.Info("cannot determine uploaded activity ID without a FIT parser")
		return "", nil
	}

	startTime, err := c.fitParser.SessionStartTime(content)
	if err != nil {
		c.logger.Info("cannot determine uploaded activity ID", "error", err.Error())
		return "", nil
	}
	// FIT timestamps carry no zone; treat them as UTC.
	if startTime.Location() != time.UTC {
		c.logger.V(1).Info("assuming UTC for FIT session start time",
			"startTime", startTime.Format(time.RFC3339))
		startTime = startTime.In(time.UTC)
	}

	window := ListOptions{
		StartDay: startTime.AddDate(0, 0, -1),
		EndDay:   startTime.AddDate(0, 0, 1),
	}
	for a, err := range c.ListActivities(ctx, window) {
		if err != nil {
			return "", err
		}
		delta := a.StartTime.Sub(startTime)
		if delta < 0 {
			delta = -delta
		}
		if delta < time.Second {
			return a.LabelID, nil
		}
	}

	c.logger.Info("uploaded FIT file but cannot find a matching activity",
		"startTime", startTime.Format(time.RFC3339))
	return "", nil
}

// DeleteActivity removes one activity.
func (c *Client) DeleteActivity(ctx context.Context, labelID string) error {
	_, err := c.get(ctx, "/activity/delete", map[string]string{"labelId": labelID})
	return err
}

// UpdateActivity merges attrs with the label ID into one update payload.
// Attribute names and values pass through to the vendor untyped.
func (c *Client) UpdateActivity(ctx context.Context, labelID string, attrs map[string]any) error {
	body := make(map[string]any, len(attrs)+1)
	for k, v := range attrs {
		body[k] = v
	}
	body["labelId"] = labelID
	_, err := c.postJSON(ctx, "/activity/update", body)
	return err
}

// ActivityDetail fetches the full detail document for one activity, as the
// web frontend does. The download tool uses summary.name for filenames.
func (c *Client) ActivityDetail(ctx context.Context, labelID string, sportType SportType) (map[string]any, error) {
	form := url.Values{}
	form.Set("labelId", labelID)
	form.Set("sportType", strconv.Itoa(int(sportType)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/activity/detail/query", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	data, err := c.do(req)
	if err != nil {
		return nil, err
	}
	detail := make(map[string]any)
	if err := json.Unmarshal(data, &detail); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeAPIError, "malformed activity detail", err)
	}
	return detail, nil
}
