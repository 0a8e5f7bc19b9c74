package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattgren/viewfinder/internal/apperror"
	"github.com/mattgren/viewfinder/internal/ingest"
)

// --- Mocks ---

type mockImageRepo struct {
	createFn    func(ctx context.Context, img *Image) error
	findFn      func(ctx context.Context, userID string, id int64) (*Image, error)
	findByIDsFn func(ctx context.Context, userID string, ids []int64) (map[int64]*Image, error)
	listFn      func(ctx context.Context, userID string, filter ListFilter) ([]Image, int, error)
	deleteFn    func(ctx context.Context, userID string, id int64) error

	viewCountCalls int
}

func (m *mockImageRepo) Create(ctx context.Context, img *Image) error {
	if m.createFn != nil {
		return m.createFn(ctx, img)
	}
	img.ID = 1
	return nil
}

func (m *mockImageRepo) FindByID(ctx context.Context, userID string, id int64) (*Image, error) {
	if m.findFn != nil {
		return m.findFn(ctx, userID, id)
	}
	return &Image{ID: id, UserID: userID, Category: CategoryDefault}, nil
}

func (m *mockImageRepo) FindByIDs(ctx context.Context, userID string, ids []int64) (map[int64]*Image, error) {
	if m.findByIDsFn != nil {
		return m.findByIDsFn(ctx, userID, ids)
	}
	return map[int64]*Image{}, nil
}

func (m *mockImageRepo) List(ctx context.Context, userID string, filter ListFilter) ([]Image, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, filter)
	}
	return nil, 0, nil
}

func (m *mockImageRepo) ListProjections(ctx context.Context, userID string) ([]Projection, error) {
	return nil, nil
}

func (m *mockImageRepo) Update(ctx context.Context, userID string, id int64, input UpdateInput) error {
	return nil
}

func (m *mockImageRepo) Delete(ctx context.Context, userID string, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, id)
	}
	return nil
}

func (m *mockImageRepo) IncrementViewCount(ctx context.Context, id int64) error {
	m.viewCountCalls++
	return nil
}

type mockTagRepo struct {
	getOrCreateFn func(ctx context.Context, name string) (*Tag, error)
	linkFn        func(ctx context.Context, imageID, tagID int64) error
}

func (m *mockTagRepo) GetOrCreate(ctx context.Context, name string) (*Tag, error) {
	if m.getOrCreateFn != nil {
		return m.getOrCreateFn(ctx, name)
	}
	return &Tag{ID: 1, Name: name}, nil
}

func (m *mockTagRepo) Link(ctx context.Context, imageID, tagID int64) error {
	if m.linkFn != nil {
		return m.linkFn(ctx, imageID, tagID)
	}
	return nil
}

func (m *mockTagRepo) Unlink(ctx context.Context, imageID, tagID int64) error { return nil }

func (m *mockTagRepo) TagsFor(ctx context.Context, imageID int64) ([]Tag, error) { return nil, nil }

func (m *mockTagRepo) TagsForImages(ctx context.Context, imageIDs []int64) (map[int64][]string, error) {
	return map[int64][]string{}, nil
}

func (m *mockTagRepo) ListAll(ctx context.Context) ([]Tag, error) { return nil, nil }

type mockQuotaStore struct {
	used, quota int64
	deltas      []int64
}

func (m *mockQuotaStore) StorageUsage(ctx context.Context, userID string) (int64, int64, error) {
	return m.used, m.quota, nil
}

func (m *mockQuotaStore) AddStorageUsage(ctx context.Context, userID string, delta int64) error {
	m.deltas = append(m.deltas, delta)
	return nil
}

type mockProcessor struct {
	processFn func(ctx context.Context, in ingest.Upload) (*ingest.Result, error)
	calls     int
}

func (m *mockProcessor) Process(ctx context.Context, in ingest.Upload) (*ingest.Result, error) {
	m.calls++
	if m.processFn != nil {
		return m.processFn(ctx, in)
	}
	return &ingest.Result{
		Filename:    "abc.jpg",
		FilePath:    "/tmp/abc.jpg",
		FileSize:    int64(len(in.Data)),
		Width:       100,
		Height:      100,
		CaptureDate: time.Now(),
	}, nil
}

type mockEnqueuer struct {
	imageIDs  []int64
	filePaths []string
	err       error
}

func (m *mockEnqueuer) EnqueueAutoTag(ctx context.Context, imageID int64, filePath string) error {
	m.imageIDs = append(m.imageIDs, imageID)
	m.filePaths = append(m.filePaths, filePath)
	return m.err
}

type mockDescriber struct {
	description string
}

func (m *mockDescriber) DescribeImage(ctx context.Context, imageData []byte) string {
	return m.description
}

type serviceMocks struct {
	images    *mockImageRepo
	tags      *mockTagRepo
	quota     *mockQuotaStore
	processor *mockProcessor
	enqueuer  *mockEnqueuer
	describer *mockDescriber
}

func newTestService() (Service, *serviceMocks) {
	m := &serviceMocks{
		images:    &mockImageRepo{},
		tags:      &mockTagRepo{},
		quota:     &mockQuotaStore{used: 0, quota: 1 << 30},
		processor: &mockProcessor{},
		enqueuer:  &mockEnqueuer{},
		describer: &mockDescriber{description: "a photo"},
	}
	svc := NewService(m.images, m.tags, m.quota, m.processor, m.enqueuer, m.describer)
	return svc, m
}

func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// --- Upload Tests ---

func TestUpload_QuotaExceeded(t *testing.T) {
	svc, m := newTestService()
	m.quota.used = 90
	m.quota.quota = 100

	_, err := svc.Upload(context.Background(), "user-1", ingest.Upload{
		Data:        make([]byte, 20),
		ContentType: "image/jpeg",
	})
	assertAppError(t, err, 400)

	if m.processor.calls != 0 {
		t.Error("pipeline should not run for an over-quota upload")
	}
}

func TestUpload_EnqueuesTaggingAndChargesQuota(t *testing.T) {
	svc, m := newTestService()
	m.images.createFn = func(ctx context.Context, img *Image) error {
		img.ID = 7
		return nil
	}

	img, err := svc.Upload(context.Background(), "user-1", ingest.Upload{
		Data:        make([]byte, 64),
		ContentType: "image/jpeg",
	})
	if err != nil {
		t.Fatalf("uploading: %v", err)
	}

	if img.ID != 7 {
		t.Errorf("expected image ID 7, got %d", img.ID)
	}
	if img.Category != CategoryDefault {
		t.Errorf("expected default category, got %q", img.Category)
	}
	if len(m.enqueuer.imageIDs) != 1 || m.enqueuer.imageIDs[0] != 7 {
		t.Errorf("expected tagging enqueued for image 7, got %v", m.enqueuer.imageIDs)
	}
	if len(m.quota.deltas) != 1 || m.quota.deltas[0] != 64 {
		t.Errorf("expected quota charged 64 bytes, got %v", m.quota.deltas)
	}
}

func TestUpload_EnqueueFailureDoesNotFailUpload(t *testing.T) {
	svc, m := newTestService()
	m.enqueuer.err = errors.New("redis down")

	_, err := svc.Upload(context.Background(), "user-1", ingest.Upload{
		Data:        make([]byte, 8),
		ContentType: "image/jpeg",
	})
	if err != nil {
		t.Fatalf("upload should survive an enqueue failure, got %v", err)
	}
}

func TestUpload_CreateFailureRemovesStoredFiles(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "abc.jpg")
	thumbPath := filepath.Join(dir, "abc_thumb.jpg")
	for _, p := range []string{filePath, thumbPath} {
		if err := os.WriteFile(p, []byte("data"), 0644); err != nil {
			t.Fatalf("writing fixture: %v", err)
		}
	}

	svc, m := newTestService()
	m.processor.processFn = func(ctx context.Context, in ingest.Upload) (*ingest.Result, error) {
		return &ingest.Result{
			Filename:      "abc.jpg",
			FilePath:      filePath,
			ThumbnailPath: thumbPath,
			FileSize:      4,
			CaptureDate:   time.Now(),
		}, nil
	}
	m.images.createFn = func(ctx context.Context, img *Image) error {
		return errors.New("db down")
	}

	_, err := svc.Upload(context.Background(), "user-1", ingest.Upload{
		Data:        []byte("data"),
		ContentType: "image/jpeg",
	})
	assertAppError(t, err, 500)

	for _, p := range []string{filePath, thumbPath} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("expected %s to be removed after DB failure", p)
		}
	}
}

// --- Get / Delete Tests ---

func TestGet_IncrementsViewCount(t *testing.T) {
	svc, m := newTestService()
	m.images.findFn = func(ctx context.Context, userID string, id int64) (*Image, error) {
		return &Image{ID: id, UserID: userID, ViewCount: 3}, nil
	}

	img, err := svc.Get(context.Background(), "user-1", 5)
	if err != nil {
		t.Fatalf("getting image: %v", err)
	}
	if m.images.viewCountCalls != 1 {
		t.Errorf("expected 1 view count increment, got %d", m.images.viewCountCalls)
	}
	if img.ViewCount != 4 {
		t.Errorf("expected returned view count 4, got %d", img.ViewCount)
	}
}

func TestDelete_RefundsQuotaAndRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "abc.jpg")
	if err := os.WriteFile(filePath, []byte("data"), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	svc, m := newTestService()
	m.images.findFn = func(ctx context.Context, userID string, id int64) (*Image, error) {
		return &Image{ID: id, UserID: userID, FilePath: filePath, FileSize: 4}, nil
	}

	if err := svc.Delete(context.Background(), "user-1", 5); err != nil {
		t.Fatalf("deleting image: %v", err)
	}

	if len(m.quota.deltas) != 1 || m.quota.deltas[0] != -4 {
		t.Errorf("expected quota refund of -4, got %v", m.quota.deltas)
	}
	if _, err := os.Stat(filePath); !os.IsNotExist(err) {
		t.Error("expected stored file to be removed")
	}
}

func TestDelete_NotFoundForOtherUsersImage(t *testing.T) {
	svc, m := newTestService()
	m.images.findFn = func(ctx context.Context, userID string, id int64) (*Image, error) {
		return nil, apperror.NewNotFound("image not found")
	}

	err := svc.Delete(context.Background(), "user-2", 5)
	assertAppError(t, err, 404)
}

// --- Tag Tests ---

func TestAddTag_CanonicalizesName(t *testing.T) {
	svc, m := newTestService()
	var gotName string
	m.tags.getOrCreateFn = func(ctx context.Context, name string) (*Tag, error) {
		gotName = name
		return &Tag{ID: 2, Name: name}, nil
	}

	tag, err := svc.AddTag(context.Background(), "user-1", 5, "  Sunset ")
	if err != nil {
		t.Fatalf("adding tag: %v", err)
	}
	if gotName != "sunset" {
		t.Errorf("expected canonical name %q, got %q", "sunset", gotName)
	}
	if tag.Name != "sunset" {
		t.Errorf("expected returned tag %q, got %q", "sunset", tag.Name)
	}
}

func TestAddTag_EmptyNameRejected(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.AddTag(context.Background(), "user-1", 5, "   ")
	assertAppError(t, err, 422)
}

func TestCanonicalTag(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Cat", "cat"},
		{"  cat  ", "cat"},
		{"CAT", "cat"},
		{"golden retriever", "golden retriever"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CanonicalTag(tt.in); got != tt.want {
			t.Errorf("CanonicalTag(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
