package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ignite/bulkmailer/internal/domain"
	"github.com/ignite/bulkmailer/internal/pkg/runlock"
	"github.com/ignite/bulkmailer/internal/service/dispatch"
	tmpl "github.com/ignite/bulkmailer/internal/template"
)

// stubRepo is a minimal in-memory repository for handler tests.
type stubRepo struct {
	mu         sync.Mutex
	campaigns  map[string]*domain.Campaign
	recipients []*domain.Recipient
}

func newStubRepo() *stubRepo {
	return &stubRepo{campaigns: make(map[string]*domain.Campaign)}
}

func (s *stubRepo) CreateCampaign(_ context.Context, c *domain.Campaign, recipients []domain.RecipientInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.campaigns[cp.ID] = &cp
	for i, in := range recipients {
		s.recipients = append(s.recipients, &domain.Recipient{
			ID:         fmt.Sprintf("%s-r%d", c.ID, i),
			CampaignID: c.ID,
			Name:       in.Name,
			Email:      in.Email,
			Status:     domain.RecipientPending,
		})
	}
	return nil
}

func (s *stubRepo) GetCampaign(_ context.Context, id string) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, dispatch.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *stubRepo) ListCampaigns(_ context.Context) ([]domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Campaign
	for _, c := range s.campaigns {
		out = append(out, *c)
	}
	return out, nil
}

func (s *stubRepo) PendingRecipients(_ context.Context, campaignID string) ([]domain.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Recipient
	for _, r := range s.recipients {
		if r.CampaignID == campaignID && r.Status == domain.RecipientPending {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *stubRepo) ResetFailed(_ context.Context, campaignID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.recipients {
		if r.CampaignID == campaignID && r.Status == domain.RecipientFailed {
			r.Status = domain.RecipientPending
			r.ErrorMessage = ""
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) MarkSent(_ context.Context, recipientID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.recipients {
		if r.ID == recipientID {
			r.Status = domain.RecipientSent
			t := at
			r.SentAt = &t
		}
	}
	return nil
}

func (s *stubRepo) MarkFailed(_ context.Context, recipientID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.recipients {
		if r.ID == recipientID {
			r.Status = domain.RecipientFailed
			r.ErrorMessage = errMsg
		}
	}
	return nil
}

func (s *stubRepo) CountByStatus(_ context.Context, campaignID string) (domain.StatusCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c domain.StatusCounts
	for _, r := range s.recipients {
		if r.CampaignID != campaignID {
			continue
		}
		c.Total++
		switch r.Status {
		case domain.RecipientSent:
			c.Sent++
		case domain.RecipientFailed:
			c.Failed++
		default:
			c.Pending++
		}
	}
	return c, nil
}

func (s *stubRepo) Recipients(_ context.Context, campaignID string) ([]domain.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Recipient
	for _, r := range s.recipients {
		if r.CampaignID == campaignID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *stubRepo) SetProgress(_ context.Context, campaignID string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.campaigns[campaignID]; ok {
		c.Progress = progress
	}
	return nil
}

// okDeliverer accepts every message.
type okDeliverer struct{}

func (okDeliverer) Deliver(context.Context, *dispatch.OutboundEmail) error { return nil }

// rejectDeliverer fails configured addresses and accepts the rest.
type rejectDeliverer struct {
	failFor map[string]error
}

func (d rejectDeliverer) Deliver(_ context.Context, email *dispatch.OutboundEmail) error {
	if err, ok := d.failFor[email.ToEmail]; ok {
		return err
	}
	return nil
}

func newTestServer(repo *stubRepo) (*dispatch.Service, http.Handler) {
	return newTestServerWith(repo, okDeliverer{})
}

func newTestServerWith(repo *stubRepo, d dispatch.Deliverer) (*dispatch.Service, http.Handler) {
	svc := dispatch.NewService(repo, d, runlock.NewMemory())
	return svc, SetupRoutes(NewHandlers(svc, tmpl.NewService()))
}

func multipartCampaign(t *testing.T, title, subject, message, csvData string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("title", title)
	mw.WriteField("subject", subject)
	mw.WriteField("message", message)
	fw, err := mw.CreateFormFile("file", "recipients.csv")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write([]byte(csvData))
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestHealthCheck(t *testing.T) {
	_, handler := newTestServer(newStubRepo())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestCreateCampaign(t *testing.T) {
	_, handler := newTestServer(newStubRepo())

	body, contentType := multipartCampaign(t, "Launch", "Hello", "Hi {{name}}",
		"name,email\nAlice,a@x.com\n,\nBob,\n")
	req := httptest.NewRequest("POST", "/api/campaigns", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Campaign struct {
			ID    string `json:"id"`
			Total int    `json:"total"`
		} `json:"campaign"`
		Skipped int `json:"skipped"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Campaign.Total != 1 {
		t.Errorf("total = %d, want 1", resp.Campaign.Total)
	}
	if resp.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", resp.Skipped)
	}
}

func TestCreateCampaignMissingFile(t *testing.T) {
	_, handler := newTestServer(newStubRepo())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("title", "Launch")
	mw.Close()

	req := httptest.NewRequest("POST", "/api/campaigns", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestSendCampaign(t *testing.T) {
	repo := newStubRepo()
	svc, handler := newTestServer(repo)

	body, contentType := multipartCampaign(t, "Launch", "Hello", "Hi {{name}}",
		"name,email\nAlice,a@x.com\n")
	req := httptest.NewRequest("POST", "/api/campaigns", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var created struct {
		Campaign struct {
			ID string `json:"id"`
		} `json:"campaign"`
	}
	json.Unmarshal(rec.Body.Bytes(), &created)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/campaigns/"+created.Campaign.ID+"/send", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"status":"started"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
	svc.Wait()

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/campaigns/"+created.Campaign.ID+"/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint = %d", rec.Code)
	}
	var status struct {
		Total   int `json:"total"`
		Sent    int `json:"sent"`
		SentPct int `json:"sent_pct"`
	}
	json.Unmarshal(rec.Body.Bytes(), &status)
	if status.Total != 1 || status.Sent != 1 || status.SentPct != 100 {
		t.Errorf("status = %+v", status)
	}
}

func TestListCampaignsIncludesLiveCounts(t *testing.T) {
	repo := newStubRepo()
	d := rejectDeliverer{failFor: map[string]error{"b@x.com": fmt.Errorf("mailbox full")}}
	svc, handler := newTestServerWith(repo, d)

	body, contentType := multipartCampaign(t, "Launch", "Hello", "Hi {{name}}",
		"name,email\nAlice,a@x.com\nBob,b@x.com\n")
	req := httptest.NewRequest("POST", "/api/campaigns", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var created struct {
		Campaign struct {
			ID string `json:"id"`
		} `json:"campaign"`
	}
	json.Unmarshal(rec.Body.Bytes(), &created)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/campaigns/"+created.Campaign.ID+"/send", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("send status = %d", rec.Code)
	}
	svc.Wait()

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/campaigns", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}

	var views []struct {
		Total   int `json:"total"`
		Sent    int `json:"sent"`
		Failed  int `json:"failed"`
		Pending int `json:"pending"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("got %d campaigns, want 1", len(views))
	}
	v := views[0]
	if v.Total != 2 || v.Sent != 1 || v.Failed != 1 || v.Pending != 0 {
		t.Errorf("list view = %+v, want total=2 sent=1 failed=1 pending=0", v)
	}
}

func TestSendCampaignNotFound(t *testing.T) {
	_, handler := newTestServer(newStubRepo())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/campaigns/nope/send", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"not_found"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestCampaignStatusNotFound(t *testing.T) {
	_, handler := newTestServer(newStubRepo())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/campaigns/nope/status", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestPreviewTemplate(t *testing.T) {
	_, handler := newTestServer(newStubRepo())

	body := strings.NewReader(`{"message":"Hi {{ name }}","name":"Alice"}`)
	req := httptest.NewRequest("POST", "/api/templates/preview", body)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var preview struct {
		Output  string `json:"output"`
		Success bool   `json:"success"`
	}
	json.Unmarshal(rec.Body.Bytes(), &preview)
	if preview.Output != "Hi Alice" || !preview.Success {
		t.Errorf("preview = %+v", preview)
	}
}

func TestPreviewTemplateRequiresMessage(t *testing.T) {
	_, handler := newTestServer(newStubRepo())
	req := httptest.NewRequest("POST", "/api/templates/preview", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}
