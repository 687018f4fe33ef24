package filestore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/actiondesk/pkg/schema"
)

func TestLocal_WriteReadExists(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewLocal(fs, "/data/invoices")
	require.NoError(t, err)
	ctx := context.Background()

	p, err := store.Write(ctx, "invoice_INV-1_Acme.xlsx", []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, "/data/invoices/invoice_INV-1_Acme.xlsx", p)

	ok, err := store.Exists(ctx, p)
	require.NoError(t, err)
	assert.True(t, ok)

	// Last write wins.
	_, err = store.Write(ctx, "invoice_INV-1_Acme.xlsx", []byte("v2"))
	require.NoError(t, err)
	data, err := store.Read(ctx, "invoice_INV-1_Acme.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	entries, err := afero.ReadDir(fs, "/data/invoices")
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files are renamed away")
}

func TestLocal_List(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewLocal(fs, "/data")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Write(ctx, "b.xlsx", []byte("b"))
	require.NoError(t, err)
	_, err = store.Write(ctx, "a.xlsx", []byte("a"))
	require.NoError(t, err)
	require.NoError(t, fs.MkdirAll("/data/sub", 0o750))
	require.NoError(t, afero.WriteFile(fs, "/data/.tmp-c.xlsx-123", []byte("partial"), 0o640))

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.xlsx", "b.xlsx"}, names)
}

func TestLocal_Missing(t *testing.T) {
	store, err := NewLocal(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)

	ok, err := store.Exists(context.Background(), "/data/nope.xlsx")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Read(context.Background(), "/data/nope.xlsx")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestLocal_RejectsEscapes(t *testing.T) {
	store, err := NewLocal(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Write(ctx, "../etc/passwd", []byte("x"))
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	_, err = store.Read(ctx, "/etc/passwd")
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	_, err = store.Exists(ctx, "/data/../secret")
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestLocal_ConcurrentWritesNeverPartial(t *testing.T) {
	store, err := NewLocal(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)
	ctx := context.Background()
	a := strings.Repeat("a", 4096)
	b := strings.Repeat("b", 4096)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := a
			if i%2 == 0 {
				body = b
			}
			_, _ = store.Write(ctx, "same.xlsx", []byte(body))
		}(i)
	}
	wg.Wait()

	data, err := store.Read(ctx, "same.xlsx")
	require.NoError(t, err)
	assert.True(t, string(data) == a || string(data) == b)
}

// fakeS3 is a path-style object server good enough for Put/Get/Head.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		if _, ok := f.objects[r.URL.Path]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3_WriteReadExists(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	store, err := NewS3(ctx, S3Config{
		Bucket:          "docs",
		Region:          "ap-southeast-1",
		Endpoint:        srv.URL,
		Prefix:          "invoices/",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)

	p, err := store.Write(ctx, "invoice_INV-1_Acme.xlsx", []byte("sheet"))
	require.NoError(t, err)
	assert.Equal(t, "s3://docs/invoices/invoice_INV-1_Acme.xlsx", p)
	assert.Contains(t, fake.objects, "/docs/invoices/invoice_INV-1_Acme.xlsx")

	ok, err := store.Exists(ctx, p)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := store.Read(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "sheet", string(data))

	ok, err = store.Exists(ctx, "s3://docs/invoices/missing.xlsx")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Read(ctx, "missing.xlsx")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	_, err = store.Exists(ctx, "s3://other/invoices/x.xlsx")
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}
