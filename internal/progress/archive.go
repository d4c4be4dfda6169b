package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/signstream/streamer/internal/lessons"
	"github.com/signstream/streamer/internal/models"
	"github.com/signstream/streamer/pkg/storage"
)

// Uploader is the slice of the S3 client the archive needs.
type Uploader interface {
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64) (string, error)
	ReportsBucket() string
}

// Report is the archived JSON document for one session.
type Report struct {
	models.SessionOutcome
	LessonTitle string          `json:"lesson_title,omitempty"`
	Gestures    []GestureReport `json:"gestures,omitempty"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// GestureReport is the per-gesture line of a report.
type GestureReport struct {
	Gesture    string `json:"gesture"`
	Detections int    `json:"detections"`
}

// Archive writes session reports to S3.
type Archive struct {
	s3  Uploader
	now func() time.Time
}

// NewArchive creates a report archive.
func NewArchive(s3 Uploader) *Archive {
	return &Archive{s3: s3, now: time.Now}
}

// BuildReport expands an outcome into its report.
func BuildReport(o models.SessionOutcome, at time.Time) Report {
	r := Report{SessionOutcome: o, GeneratedAt: at}
	if l, err := lessons.Get(o.LessonID); err == nil {
		r.LessonTitle = l.Title
	}
	for i, g := range o.Expected {
		gr := GestureReport{Gesture: g}
		if i < len(o.PerGesture) {
			gr.Detections = o.PerGesture[i]
		}
		r.Gestures = append(r.Gestures, gr)
	}
	return r
}

// Put uploads the report for an outcome and returns its URL.
func (a *Archive) Put(ctx context.Context, o models.SessionOutcome) (string, error) {
	body, err := json.MarshalIndent(BuildReport(o, a.now()), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	key := storage.ReportKey(o.SessionID.String(), o.EndedAt)
	url, err := a.s3.Upload(ctx, a.s3.ReportsBucket(), key, "application/json", bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("archive report: %w", err)
	}
	return url, nil
}
