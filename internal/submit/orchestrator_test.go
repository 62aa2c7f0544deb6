package submit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LancemDev/LostLink/internal/blobstore"
	"github.com/LancemDev/LostLink/internal/docstore"
	"github.com/LancemDev/LostLink/internal/model"
	"github.com/LancemDev/LostLink/internal/repository"
)

// failingBlobs rejects every upload.
type failingBlobs struct{}

func (failingBlobs) Upload(ctx context.Context, key string, data []byte, contentType string) (model.ImageRef, error) {
	return model.ImageRef{}, errors.New("bucket unreachable")
}

func newFixture(t *testing.T, blobs blobstore.Store) (*Orchestrator, *repository.Items) {
	t.Helper()
	repo := repository.NewItems(docstore.NewMemoryStore())
	if blobs == nil {
		blobs = blobstore.NewInlineStore(1 << 20)
	}
	return NewOrchestrator(repo, blobs), repo
}

func waitDone(t *testing.T, o *Orchestrator, opID string) Operation {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	op, err := o.Wait(ctx, opID)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return op
}

func TestSubmitWithPhoto(t *testing.T) {
	orch, repo := newFixture(t, nil)

	opID := orch.Submit(context.Background(), repository.FoundItemInput{
		AddedBy:     "finder-1",
		Category:    model.CategoryWallet,
		ItemName:    "Wallet",
		Description: "brown leather wallet",
	}, []byte("fake jpeg bytes"), "image/jpeg")

	op := waitDone(t, orch, opID)
	if op.Status != StatusSuccess {
		t.Fatalf("Status = %q (%s), want success", op.Status, op.Message)
	}
	if op.ItemID == "" {
		t.Fatal("success without item id")
	}

	item, err := repo.GetFoundItem(context.Background(), op.ItemID)
	if err != nil {
		t.Fatalf("GetFoundItem: %v", err)
	}
	if item.Image == nil || item.Image.Inline == "" {
		t.Errorf("photo not attached: %+v", item.Image)
	}
}

func TestSubmitWithoutPhoto(t *testing.T) {
	orch, repo := newFixture(t, nil)

	opID := orch.Submit(context.Background(), repository.FoundItemInput{
		Category: model.CategoryKeys,
		ItemName: "Keys",
	}, nil, "")

	op := waitDone(t, orch, opID)
	if op.Status != StatusSuccess {
		t.Fatalf("Status = %q (%s), want success", op.Status, op.Message)
	}
	item, err := repo.GetFoundItem(context.Background(), op.ItemID)
	if err != nil {
		t.Fatalf("GetFoundItem: %v", err)
	}
	if item.Image != nil {
		t.Errorf("unexpected image on photoless submission: %+v", item.Image)
	}
}

func TestSubmitUploadFailureCreatesNoDocument(t *testing.T) {
	orch, repo := newFixture(t, failingBlobs{})

	opID := orch.Submit(context.Background(), repository.FoundItemInput{
		Category: model.CategoryWallet,
		ItemName: "Wallet",
	}, []byte("photo"), "image/jpeg")

	op := waitDone(t, orch, opID)
	if op.Status != StatusError {
		t.Fatalf("Status = %q, want error", op.Status)
	}
	if op.Message != "photo upload failed" {
		t.Errorf("Message = %q", op.Message)
	}

	items, err := repo.ListFound(context.Background())
	if err != nil {
		t.Fatalf("ListFound: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("document created despite upload failure: %+v", items)
	}
}

func TestSubmitValidationFailureSurfacesMessage(t *testing.T) {
	orch, _ := newFixture(t, nil)

	opID := orch.Submit(context.Background(), repository.FoundItemInput{
		Category: model.CategoryWallet,
	}, nil, "")

	op := waitDone(t, orch, opID)
	if op.Status != StatusError {
		t.Fatalf("Status = %q, want error", op.Status)
	}
	if op.Message == "" {
		t.Error("error without message")
	}
}

func TestStatusUnknownReadsIdle(t *testing.T) {
	orch, _ := newFixture(t, nil)
	op := orch.Status("never-submitted")
	if op.Status != StatusIdle {
		t.Errorf("Status = %q, want idle", op.Status)
	}
}

func TestResetClearsTerminalState(t *testing.T) {
	orch, _ := newFixture(t, nil)

	opID := orch.Submit(context.Background(), repository.FoundItemInput{
		Category: model.CategoryKeys,
		ItemName: "Keys",
	}, nil, "")
	waitDone(t, orch, opID)

	orch.Reset(opID)
	if got := orch.Status(opID).Status; got != StatusIdle {
		t.Errorf("Status after reset = %q, want idle", got)
	}
}

func TestSubmitSurvivesCallerCancellation(t *testing.T) {
	orch, repo := newFixture(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	opID := orch.Submit(ctx, repository.FoundItemInput{
		Category: model.CategoryKeys,
		ItemName: "Keys",
	}, nil, "")
	cancel()

	op := waitDone(t, orch, opID)
	if op.Status != StatusSuccess {
		t.Fatalf("Status = %q (%s), want success", op.Status, op.Message)
	}
	if _, err := repo.GetFoundItem(context.Background(), op.ItemID); err != nil {
		t.Errorf("GetFoundItem: %v", err)
	}
}
