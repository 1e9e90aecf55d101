package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dvloznov/expense-tracker/internal/commit"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/jobs"
	"github.com/dvloznov/expense-tracker/internal/staging"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")

// multipartRequest builds a multipart body with a "statement" file part and
// the given extra fields.
func multipartRequest(t *testing.T, method, target, filename string, file []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if file != nil {
		part, err := mw.CreateFormFile("statement", filename)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		part.Write(file)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	mw.Close()

	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestTasksHandler_Upload(t *testing.T) {
	f := newFixture()

	rec := f.do(multipartRequest(t, http.MethodPost, "/api/tasks", "../march.pdf", samplePDF, nil), "u1")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["task_id"] == "" || resp["job_id"] == "" {
		t.Errorf("response = %v", resp)
	}

	if len(f.publisher.published) != 1 {
		t.Fatalf("published %d jobs, want 1", len(f.publisher.published))
	}
	job := f.publisher.published[0]
	if job.UserID != "u1" || job.TaskID != resp["task_id"] {
		t.Errorf("job = %+v", job)
	}
	if job.FileName != "march.pdf" {
		t.Errorf("FileName = %q, want march.pdf", job.FileName)
	}
	if !bytes.Equal(job.File, samplePDF) {
		t.Error("job does not carry the uploaded bytes")
	}
}

func TestTasksHandler_UploadRejects(t *testing.T) {
	tests := []struct {
		name string
		file []byte
		want int
	}{
		{name: "missing file", file: nil, want: http.StatusBadRequest},
		{name: "not a pdf", file: []byte("hello, world"), want: http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rec := f.do(multipartRequest(t, http.MethodPost, "/api/tasks", "x.pdf", tt.file, nil), "u1")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if len(f.publisher.published) != 0 {
				t.Error("nothing should be published")
			}
		})
	}
}

// zipArchive builds a zip with the given entries in order.
func zipArchive(t *testing.T, entries ...uploadedFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		fw, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("zip Create(%s) error = %v", e.Name, err)
		}
		fw.Write(e.Data)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close() error = %v", err)
	}
	return buf.Bytes()
}

func TestTasksHandler_UploadZip(t *testing.T) {
	f := newFixture()
	archive := zipArchive(t,
		uploadedFile{Name: "2024/jan.pdf", Data: samplePDF},
		uploadedFile{Name: "notes.txt", Data: []byte("ignore me")},
		uploadedFile{Name: "__MACOSX/2024/._jan.pdf", Data: samplePDF},
		uploadedFile{Name: "fake.pdf", Data: []byte("not really a pdf")},
		uploadedFile{Name: "FEB.PDF", Data: samplePDF},
	)

	rec := f.do(multipartRequest(t, http.MethodPost, "/api/tasks", "batch.zip", archive, nil), "u1")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Tasks  []queuedTask `json:"tasks"`
		Status string       `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Tasks) != 2 || len(f.publisher.published) != 2 {
		t.Fatalf("tasks = %+v, published = %d, want 2", resp.Tasks, len(f.publisher.published))
	}
	for i, want := range []string{"jan.pdf", "FEB.PDF"} {
		job := f.publisher.published[i]
		if job.FileName != want || resp.Tasks[i].Name != want {
			t.Errorf("task %d name = %q / %q, want %q", i, job.FileName, resp.Tasks[i].Name, want)
		}
		if job.TaskID != resp.Tasks[i].TaskID || job.UserID != "u1" {
			t.Errorf("job %d = %+v", i, job)
		}
		if !bytes.Equal(job.File, samplePDF) {
			t.Errorf("job %d does not carry the PDF bytes", i)
		}
	}
	if resp.Tasks[0].TaskID == resp.Tasks[1].TaskID {
		t.Error("each PDF needs its own task id")
	}
}

func TestTasksHandler_UploadZipRejects(t *testing.T) {
	many := make([]uploadedFile, MaxZipStatements+1)
	for i := range many {
		many[i] = uploadedFile{Name: fmt.Sprintf("s%02d.pdf", i), Data: samplePDF}
	}

	tests := []struct {
		name    string
		archive []byte
	}{
		{"no pdfs", zipArchive(t, uploadedFile{Name: "a.txt", Data: []byte("text")})},
		{"too many pdfs", zipArchive(t, many...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rec := f.do(multipartRequest(t, http.MethodPost, "/api/tasks", "batch.zip", tt.archive, nil), "u1")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if len(f.publisher.published) != 0 {
				t.Error("nothing should be published")
			}
		})
	}
}

func TestStatementsHandler_CreateRejectsZip(t *testing.T) {
	f := newFixture()
	archive := zipArchive(t, uploadedFile{Name: "jan.pdf", Data: samplePDF})
	req := multipartRequest(t, http.MethodPost, "/api/statements", "batch.zip", archive,
		map[string]string{"payload": `{"bank":"DBS","date":"2024-01-31","expenses":[]}`})

	rec := f.do(req, "u1")
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", rec.Code)
	}
}

func TestTasksHandler_UploadPublishFailure(t *testing.T) {
	f := newFixture()
	f.publisher.err = errors.New("queue is closed")

	rec := f.do(multipartRequest(t, http.MethodPost, "/api/tasks", "a.pdf", samplePDF, nil), "u1")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestTasksHandler_List(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.categories.categories = []domain.Category{{ID: 3, Title: "Food", UserID: "u1"}}

	completion := "BANK,DBS\nCoffee,4.50,2024-03-01,Food\nTaxi,12.30,2024-03-02,Transport\n"
	if err := f.staging.Put(ctx, "u1", "t1", staging.Entry{Name: "march.pdf", Completion: completion}); err != nil {
		t.Fatal(err)
	}
	if err := f.staging.Put(ctx, "u2", "t2", staging.Entry{Name: "other.pdf", Completion: completion}); err != nil {
		t.Fatal(err)
	}
	f.jobStore.SaveJob(ctx, &jobs.ParseStatementJob{JobID: "j1", UserID: "u1", TaskID: "t9", Status: jobs.JobStatusProcessing})
	f.jobStore.SaveJob(ctx, &jobs.ParseStatementJob{JobID: "j2", UserID: "u1", TaskID: "t1", Status: jobs.JobStatusCompleted})

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/tasks", nil), "u1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Tasks []TaskView                `json:"tasks"`
		Count int                       `json:"count"`
		Jobs  []*jobs.ParseStatementJob `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || resp.Tasks[0].TaskID != "t1" {
		t.Fatalf("tasks = %+v", resp.Tasks)
	}
	task := resp.Tasks[0]
	if task.Statement.Bank != domain.BankDBS || len(task.Statement.Expenses) != 2 {
		t.Errorf("preview = %+v", task.Statement)
	}
	if task.Total != "16.80" {
		t.Errorf("Total = %q, want 16.80", task.Total)
	}
	if id := task.Statement.Expenses[0].CategoryID; id == nil || *id != 3 {
		t.Errorf("first expense category = %v, want 3", id)
	}
	if len(resp.Jobs) != 1 || resp.Jobs[0].JobID != "j1" {
		t.Errorf("jobs = %+v, want only the unfinished one", resp.Jobs)
	}
}

func TestTasksHandler_Commit(t *testing.T) {
	f := newFixture()
	f.categories.categories = []domain.Category{{ID: 1, Title: "Food"}}

	var gotIDs []string
	f.committer.CommitFunc = func(ctx context.Context, userID string, taskIDs []string, categories []domain.Category) (*commit.Result, error) {
		if userID != "u1" {
			t.Errorf("userID = %q", userID)
		}
		if len(categories) != 1 {
			t.Errorf("categories not passed through: %v", categories)
		}
		gotIDs = taskIDs
		return &commit.Result{Outcomes: []commit.Outcome{
			{TaskID: "a", Status: commit.StatusCommitted, StatementID: 10, ExpenseCount: 2},
			{TaskID: "b", Status: commit.StatusSkipped, Reason: commit.ReasonNotStaged},
		}}, nil
	}

	rec := f.do(jsonRequest(http.MethodPatch, "/api/tasks", `{"id":["a","b","a",""]}`), "u1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if strings.Join(gotIDs, ",") != "a,b" {
		t.Errorf("ids = %v, want deduplicated [a b]", gotIDs)
	}

	var resp struct {
		Outcomes  []commit.Outcome `json:"outcomes"`
		Committed int              `json:"committed"`
		Skipped   int              `json:"skipped"`
		Failed    int              `json:"failed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Committed != 1 || resp.Skipped != 1 || resp.Failed != 0 {
		t.Errorf("counts = %+v", resp)
	}
	if resp.Outcomes[1].Reason != commit.ReasonNotStaged {
		t.Errorf("outcome b = %+v", resp.Outcomes[1])
	}
}

func TestTasksHandler_CommitErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		catErr    error
		commitErr error
		want      int
	}{
		{name: "bad json", body: `{"id":`, want: http.StatusBadRequest},
		{name: "no ids", body: `{"id":[]}`, want: http.StatusBadRequest},
		{name: "categories unavailable", body: `{"id":["a"]}`, catErr: errors.New("db down"), want: http.StatusInternalServerError},
		{name: "staging unavailable", body: `{"id":["a"]}`, commitErr: errors.New("redis down"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.categories.err = tt.catErr
			f.committer.CommitFunc = func(ctx context.Context, userID string, taskIDs []string, categories []domain.Category) (*commit.Result, error) {
				return nil, tt.commitErr
			}
			rec := f.do(jsonRequest(http.MethodPatch, "/api/tasks", tt.body), "u1")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestTasksHandler_Discard(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		f.staging.Put(ctx, "u1", id, staging.Entry{Completion: "x"})
	}

	rec := f.do(jsonRequest(http.MethodDelete, "/api/tasks", `{"id":["a","c","missing"]}`), "u1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	left, _ := f.staging.List(ctx, "u1")
	if len(left) != 1 || left[0].TaskID != "b" {
		t.Errorf("remaining = %+v, want only b", left)
	}
}

func TestRouter_AuthAndHealth(t *testing.T) {
	f := newFixture()

	if rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil), ""); rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
	if rec := f.do(httptest.NewRequest(http.MethodGet, "/api/tasks", nil), ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/nothing", nil), "u1")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want 404", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}
