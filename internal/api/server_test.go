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
	"testing"
	"time"

	"github.com/LancemDev/LostLink/internal/blobstore"
	"github.com/LancemDev/LostLink/internal/claim"
	"github.com/LancemDev/LostLink/internal/config"
	"github.com/LancemDev/LostLink/internal/docstore"
	"github.com/LancemDev/LostLink/internal/match"
	"github.com/LancemDev/LostLink/internal/model"
	"github.com/LancemDev/LostLink/internal/repository"
	"github.com/LancemDev/LostLink/internal/signing"
	"github.com/LancemDev/LostLink/internal/submit"
)

type fixture struct {
	handler      http.Handler
	repo         *repository.Items
	orchestrator *submit.Orchestrator
	signer       *signing.Signer
	cfg          *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, docstore.NewMemoryStore())
}

func newFixtureWithStore(t *testing.T, store docstore.Store) *fixture {
	t.Helper()
	repo := repository.NewItems(store)
	cfg := &config.Config{
		Address:             ":0",
		MaxImageBytes:       1 << 20,
		SignedURLTTL:        time.Minute,
		MinMatchDescription: 3,
		AdminSecret:         []byte("test-secret"),
	}
	orchestrator := submit.NewOrchestrator(repo, blobstore.NewInlineStore(cfg.MaxImageBytes))
	server := New(Options{
		Config:       cfg,
		Repo:         repo,
		Store:        store,
		Engine:       match.NewEngine(repo, cfg.MinMatchDescription),
		Workflow:     claim.NewWorkflow(repo, store),
		Orchestrator: orchestrator,
		Signer:       signing.NewSigner(cfg.AdminSecret),
	})
	return &fixture{
		handler:      server.Handler(),
		repo:         repo,
		orchestrator: orchestrator,
		signer:       signing.NewSigner(cfg.AdminSecret),
		cfg:          cfg,
	}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) adminToken() string {
	return f.signer.Token("operator", time.Hour)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCreateReportAndHistory(t *testing.T) {
	f := newFixture(t)

	body := `{"userId":"user-1","category":"electronics","itemName":"Laptop","description":"black dell laptop"}`
	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/reports", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created map[string]string
	decodeBody(t, rec, &created)
	if created["id"] == "" || created["status"] != "pending" {
		t.Fatalf("unexpected response %v", created)
	}

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/reports?userId=user-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	var reports []model.LostReport
	decodeBody(t, rec, &reports)
	if len(reports) != 1 || reports[0].ID != created["id"] {
		t.Fatalf("history = %+v", reports)
	}

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/reports?userId=nobody", nil))
	var empty []model.LostReport
	decodeBody(t, rec, &empty)
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty array, got %v", empty)
	}
}

func TestCreateReportRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/reports", strings.NewReader("not json")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d", rec.Code)
	}

	rec = f.do(t, httptest.NewRequest(http.MethodPost, "/reports", strings.NewReader(`{"category":"GADGETS","itemName":"x"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad category status = %d", rec.Code)
	}
}

// multipartItem builds a found-item submission form. A tiny valid PNG header
// satisfies the image sniffing.
func multipartItem(t *testing.T, fields map[string]string, withPhoto bool) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if withPhoto {
		part, err := mw.CreateFormFile("photo", "photo.png")
		if err != nil {
			t.Fatalf("create photo part: %v", err)
		}
		png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
		if _, err := part.Write(png); err != nil {
			t.Fatalf("write photo: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func submitItem(t *testing.T, f *fixture, fields map[string]string, withPhoto bool) string {
	t.Helper()
	body, contentType := multipartItem(t, fields, withPhoto)
	req := httptest.NewRequest(http.MethodPost, "/items", body)
	req.Header.Set("Content-Type", contentType)
	rec := f.do(t, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	opID := resp["operationId"]
	if opID == "" {
		t.Fatal("no operation id")
	}
	op, err := f.orchestrator.Wait(context.Background(), opID)
	if err != nil {
		t.Fatalf("wait for %s: %v", opID, err)
	}
	if op.Status != submit.StatusSuccess {
		t.Fatalf("operation %s ended %s: %s", opID, op.Status, op.Message)
	}
	return op.ItemID
}

func TestSubmitItemWithPhoto(t *testing.T) {
	f := newFixture(t)

	itemID := submitItem(t, f, map[string]string{
		"addedBy":     "finder-1",
		"category":    "WALLET",
		"itemName":    "Wallet",
		"description": "brown leather wallet",
	}, true)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/items/"+itemID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get item status = %d", rec.Code)
	}
	var item model.FoundItem
	decodeBody(t, rec, &item)
	if item.Status != model.ItemAvailable {
		t.Errorf("Status = %q", item.Status)
	}
	if item.Image == nil || item.Image.Inline == "" {
		t.Errorf("photo missing: %+v", item.Image)
	}

	rec = f.do(t, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/items/%s/image", itemID), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("image status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("image content type = %q", got)
	}
}

func TestSubmitRejectsNonImagePhoto(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("category", "KEYS")
	_ = mw.WriteField("itemName", "Keys")
	part, _ := mw.CreateFormFile("photo", "notes.txt")
	_, _ = part.Write([]byte("plain text, not a picture"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/items", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := f.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestOperationStatusAndReset(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/operations/unknown", nil))
	var op submit.Operation
	decodeBody(t, rec, &op)
	if op.Status != submit.StatusIdle {
		t.Errorf("unknown op status = %q", op.Status)
	}

	itemID := submitItem(t, f, map[string]string{
		"category": "KEYS",
		"itemName": "Keys",
	}, false)
	if itemID == "" {
		t.Fatal("no item id")
	}

	rec = f.do(t, httptest.NewRequest(http.MethodPost, "/operations/unknown/reset", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("reset status = %d", rec.Code)
	}
}

func TestClaimRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	itemID := submitItem(t, f, map[string]string{
		"category": "WALLET",
		"itemName": "Wallet",
	}, false)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/items/%s/claim", itemID), nil)
	rec := f.do(t, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated claim status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, fmt.Sprintf("/items/%s/claim", itemID), nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec = f.do(t, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token claim status = %d", rec.Code)
	}
}

func TestClaimFlow(t *testing.T) {
	f := newFixture(t)
	itemID := submitItem(t, f, map[string]string{
		"category": "WALLET",
		"itemName": "Wallet",
	}, false)
	token := f.adminToken()

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/items/%s/claim", itemID), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := f.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim status = %d, body %s", rec.Code, rec.Body.String())
	}
	var claimed model.ClaimedItem
	decodeBody(t, rec, &claimed)
	if claimed.ID != itemID || claimed.Status != model.ItemClaimed {
		t.Fatalf("claimed = %+v", claimed)
	}

	// Second claim conflicts.
	req = httptest.NewRequest(http.MethodPost, fmt.Sprintf("/items/%s/claim", itemID), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = f.do(t, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second claim status = %d", rec.Code)
	}

	// The dashboard sees it under claimed, not found.
	req = httptest.NewRequest(http.MethodGet, "/admin/claimed", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = f.do(t, req)
	var list []model.ClaimedItem
	decodeBody(t, rec, &list)
	if len(list) != 1 || list[0].ID != itemID {
		t.Fatalf("claimed list = %+v", list)
	}

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/items/"+itemID, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get claimed item status = %d", rec.Code)
	}
}

// ctxStore refuses writes on a cancelled context, the way a real database
// driver would.
type ctxStore struct {
	docstore.Store
}

func (c *ctxStore) Insert(ctx context.Context, collection string, doc docstore.Doc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.Store.Insert(ctx, collection, doc)
}

func (c *ctxStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Store.Delete(ctx, collection, id)
}

func TestClaimSurvivesClientDisconnect(t *testing.T) {
	f := newFixtureWithStore(t, &ctxStore{Store: docstore.NewMemoryStore()})

	itemID, err := f.repo.CreateFoundItem(context.Background(), repository.FoundItemInput{
		Category: model.CategoryWallet,
		ItemName: "Wallet",
	}, nil)
	if err != nil {
		t.Fatalf("CreateFoundItem: %v", err)
	}

	// The caller walked away before the handler ran: the move must still
	// complete rather than strand the item between collections.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/items/%s/claim", itemID), nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+f.adminToken())
	rec := f.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim status = %d, body %s", rec.Code, rec.Body.String())
	}

	if _, err := f.repo.GetClaimedItem(context.Background(), itemID); err != nil {
		t.Fatalf("GetClaimedItem: %v", err)
	}
	if _, err := f.repo.GetFoundItem(context.Background(), itemID); err == nil {
		t.Fatal("item still in found collection")
	}
}

func TestAdminReconcileEmpty(t *testing.T) {
	f := newFixture(t)
	token := f.adminToken()

	req := httptest.NewRequest(http.MethodGet, "/admin/unreconciled", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := f.do(t, req)
	var unreconciled map[string][]string
	decodeBody(t, rec, &unreconciled)
	if len(unreconciled["itemIds"]) != 0 {
		t.Fatalf("unreconciled = %v", unreconciled)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/reconcile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = f.do(t, req)
	var repaired map[string][]string
	decodeBody(t, rec, &repaired)
	if len(repaired["repaired"]) != 0 {
		t.Fatalf("repaired = %v", repaired)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodOptions, "/reports", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
