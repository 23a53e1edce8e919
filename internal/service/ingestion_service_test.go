package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/internal/repository"
	"ncert-tutor-go/internal/testutil"
	"ncert-tutor-go/pkg/diagram"
	"ncert-tutor-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memObjectStore) Put(_ context.Context, name string, r io.Reader, _ int64, contentType string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = b
	m.types[name] = contentType
	return nil
}

func (m *memObjectStore) Get(_ context.Context, name string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memObjectStore) PresignedURL(_ context.Context, name string) (string, error) {
	return "http://minio.local/tutor/" + name + "?sig=x", nil
}

type recordingPublisher struct {
	tasks []tasks.TextbookIngestTask
	err   error
}

func (p *recordingPublisher) ProduceIngestTask(_ context.Context, task tasks.TextbookIngestTask) error {
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, task)
	return nil
}

func TestIngestionUploadIsIdempotent(t *testing.T) {
	repo := repository.NewTextbookRepository(testutil.NewDB(t))
	store := newMemObjectStore()
	pub := &recordingPublisher{}
	svc := NewIngestionService(repo, store, pub)
	ctx := context.Background()

	meta := TextbookUpload{FileName: "hesc101.pdf", Grade: 9, Subject: "Science"}
	tb, created, err := svc.Upload(ctx, meta, strings.NewReader("%PDF-1.4 matter in our surroundings"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "science", tb.Subject)
	assert.Equal(t, "textbooks/"+tb.FileMD5+".pdf", tb.ObjectName)
	assert.Equal(t, "application/pdf", store.types[tb.ObjectName])
	require.Len(t, pub.tasks, 1)
	assert.Equal(t, tb.FileMD5, pub.tasks[0].FileMD5)
	assert.Equal(t, 9, pub.tasks[0].Grade)

	again, created, err := svc.Upload(ctx, meta, strings.NewReader("%PDF-1.4 matter in our surroundings"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, tb.ID, again.ID)
	assert.Len(t, pub.tasks, 1)
}

func TestIngestionRepublishesFailedTextbook(t *testing.T) {
	repo := repository.NewTextbookRepository(testutil.NewDB(t))
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewIngestionService(repo, newMemObjectStore(), pub)
	ctx := context.Background()
	meta := TextbookUpload{FileName: "jemh101.pdf", Grade: 10, Subject: "maths"}

	_, _, err := svc.Upload(ctx, meta, strings.NewReader("%PDF real numbers"))
	require.Error(t, err)

	books, total, err := repo.FindWithPagination(ctx, 0, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, model.TextbookFailed, books[0].Status)

	pub.err = nil
	tb, created, err := svc.Upload(ctx, meta, strings.NewReader("%PDF real numbers"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, model.TextbookPending, tb.Status)
	assert.Len(t, pub.tasks, 1)
}

func TestIngestionValidation(t *testing.T) {
	svc := NewIngestionService(repository.NewTextbookRepository(testutil.NewDB(t)), newMemObjectStore(), &recordingPublisher{})
	ctx := context.Background()
	cases := map[string]TextbookUpload{
		"not pdf":         {FileName: "notes.docx", Grade: 7, Subject: "science"},
		"grade":           {FileName: "a.pdf", Grade: 12, Subject: "science"},
		"unknown subject": {FileName: "a.pdf", Grade: 7, Subject: "music"},
	}
	for name, meta := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := svc.Upload(ctx, meta, strings.NewReader("%PDF"))
			assert.ErrorIs(t, err, ErrInvalidUpload)
		})
	}
	_, _, err := svc.Upload(ctx, TextbookUpload{FileName: "a.pdf", Grade: 7, Subject: "science"}, strings.NewReader(""))
	assert.ErrorIs(t, err, ErrInvalidUpload)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

type stubSpeaker struct{}

func (stubSpeaker) Speak(_ context.Context, text string) ([]byte, error) {
	return []byte("ID3" + text), nil
}

func TestMediaService(t *testing.T) {
	store := newMemObjectStore()
	renderer, err := diagram.NewRenderer(320, 240)
	require.NoError(t, err)
	svc := NewMediaService(store, stubSpeaker{}, renderer)
	ctx := context.Background()

	audio, err := svc.Speak(ctx, "hello")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(audio.ObjectName, "audio/"))
	assert.Contains(t, audio.URL, audio.ObjectName)
	assert.Equal(t, "audio/mpeg", store.types[audio.ObjectName])

	img, err := svc.Diagram(ctx, diagram.Spec{Kind: diagram.KindFunction, Expression: "x^2"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(img.ObjectName, ".png"))
	assert.Equal(t, []byte("\x89PNG"), store.objects[img.ObjectName][:4])
}

func TestConversationLifecycle(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	st := f.student(t, "conv", 8)
	other := f.student(t, "conv2", 8)

	conv, err := f.conversations.Resolve(ctx, st.ID, "")
	require.NoError(t, err)
	same, err := f.conversations.Resolve(ctx, st.ID, "")
	require.NoError(t, err)
	assert.Equal(t, conv.SessionID, same.SessionID)

	_, err = f.conversations.Resolve(ctx, other.ID, conv.SessionID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.conversations.Messages(ctx, other.ID, conv.SessionID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, f.conversations.RecordExchange(ctx, conv,
		&model.Message{Role: model.RoleUser, Content: "q"},
		&model.Message{Role: model.RoleAssistant, Content: "a"}))
	turns, err := f.conversations.History(ctx, conv.SessionID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "a", turns[1].Content)

	require.NoError(t, f.conversations.Close(ctx, st.ID, conv.SessionID))
	_, err = f.conversations.Resolve(ctx, st.ID, conv.SessionID)
	assert.ErrorIs(t, err, ErrConversationClosed)

	next, err := f.conversations.Resolve(ctx, st.ID, "")
	require.NoError(t, err)
	assert.NotEqual(t, conv.SessionID, next.SessionID)

	list, err := f.conversations.List(ctx, st.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, next.SessionID, list[0].SessionID)
}

func TestJanitorSweep(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	st := f.student(t, "idle", 6)

	conv, err := f.conversations.Resolve(ctx, st.ID, "")
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&model.Conversation{}).Where("id = ?", conv.ID).
		Update("last_activity_at", time.Now().Add(-2*time.Hour)).Error)

	NewJanitor(f.cache, f.conversations, time.Minute).Sweep(ctx)

	reloaded, err := f.convRepo.FindByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsActive)
	assert.NotNil(t, reloaded.EndedAt)
}
