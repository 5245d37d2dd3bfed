package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/vango-dev/rxstore/pkg/idb"
)

// fakeClient is an in-memory bucket. Listings return pageSize objects per
// page so tests exercise pagination.
type fakeClient struct {
	mu       sync.Mutex
	objects  map[string][]byte
	pageSize int
	lists    int
	failPut  error
}

func newFakeClient() *fakeClient {
	return &fakeClient{objects: make(map[string][]byte), pageSize: 2}
}

func (f *fakeClient) GetObject(ctx context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeClient) PutObject(ctx context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	if f.failPut != nil {
		return nil, f.failPut
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeClient) DeleteObject(ctx context.Context, in *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func (f *fakeClient) DeleteObjects(ctx context.Context, in *awss3.DeleteObjectsInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range in.Delete.Objects {
		delete(f.objects, aws.ToString(id.Key))
	}
	return &awss3.DeleteObjectsOutput{}, nil
}

func (f *fakeClient) ListObjectsV2(ctx context.Context, in *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++

	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if token := aws.ToString(in.ContinuationToken); token != "" {
		start = sort.SearchStrings(keys, token)
	}
	end := start + f.pageSize
	if end > len(keys) {
		end = len(keys)
	}

	out := &awss3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func (f *fakeClient) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func TestTableObjectLayout(t *testing.T) {
	client := newFakeClient()
	d := NewDriver(client, "bucket", WithPrefix("rx/"))
	ctx := context.Background()

	tbl, err := d.OpenTable(ctx, "my app", "settings")
	if err != nil {
		t.Fatalf("OpenTable failed: %v", err)
	}
	if err := tbl.Set(ctx, "theme/dark", []byte(`true`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !client.has("rx/my%20app/settings/theme/dark") {
		t.Fatalf("objects = %v", client.objects)
	}
}

func TestTableCRUD(t *testing.T) {
	d := NewDriver(newFakeClient(), "bucket")
	ctx := context.Background()
	tbl, err := d.OpenTable(ctx, "db", "t")
	if err != nil {
		t.Fatalf("OpenTable failed: %v", err)
	}

	if _, found, err := tbl.Get(ctx, "missing"); found || err != nil {
		t.Fatalf("Get missing = %v, %v", found, err)
	}
	if err := tbl.Set(ctx, "k", []byte(`"v"`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, found, err := tbl.Get(ctx, "k")
	if err != nil || !found || string(v) != `"v"` {
		t.Fatalf("Get = %q, %v, %v", v, found, err)
	}
	if err := tbl.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, found, _ := tbl.Get(ctx, "k"); found {
		t.Fatal("key present after Remove")
	}
}

func TestKeysAndClearPaginate(t *testing.T) {
	client := newFakeClient()
	d := NewDriver(client, "bucket")
	ctx := context.Background()

	tbl, _ := d.OpenTable(ctx, "db", "t")
	other, _ := d.OpenTable(ctx, "db", "other")
	for _, k := range []string{"e", "d", "c", "b", "a"} {
		if err := tbl.Set(ctx, k, []byte("1")); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	_ = other.Set(ctx, "a", []byte("1"))

	keys, err := tbl.Keys(ctx)
	if err != nil || strings.Join(keys, ",") != "a,b,c,d,e" {
		t.Fatalf("Keys = %v, %v", keys, err)
	}
	if client.lists < 3 {
		t.Fatalf("listing used %d pages, want at least 3", client.lists)
	}

	if err := tbl.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if keys, _ := tbl.Keys(ctx); len(keys) != 0 {
		t.Fatalf("Keys after Clear = %v", keys)
	}
	if _, found, _ := other.Get(ctx, "a"); !found {
		t.Fatal("Clear removed an object of another table")
	}
}

func TestErrors(t *testing.T) {
	client := newFakeClient()
	d := NewDriver(client, "bucket")
	ctx := context.Background()
	tbl, _ := d.OpenTable(ctx, "db", "t")

	boom := errors.New("boom")
	client.failPut = boom
	if err := tbl.Set(ctx, "k", []byte("1")); !errors.Is(err, boom) {
		t.Fatalf("Set error = %v, want wrapped boom", err)
	}

	_ = tbl.Close()
	if _, _, err := tbl.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Get on closed table = %v", err)
	}

	if _, err := NewDriver(client, "").OpenTable(ctx, "db", "t"); err == nil {
		t.Fatal("OpenTable without bucket succeeded")
	}
}

func TestIsNotFound(t *testing.T) {
	if !isNotFound(&types.NoSuchKey{}) {
		t.Error("NoSuchKey not detected")
	}
	if !isNotFound(&types.NotFound{}) {
		t.Error("NotFound not detected")
	}
	if isNotFound(errors.New("other")) || isNotFound(nil) {
		t.Error("unrelated error detected as not found")
	}
}

func TestNewClient(t *testing.T) {
	c := NewClient(ClientConfig{Region: "us-east-1", Endpoint: "http://localhost:9000", AccessKeyID: "id", SecretAccessKey: "secret"})
	opts := c.Options()
	if opts.Region != "us-east-1" || aws.ToString(opts.BaseEndpoint) != "http://localhost:9000" || !opts.UsePathStyle {
		t.Fatalf("options = %+v", opts)
	}
	creds, err := opts.Credentials.Retrieve(context.Background())
	if err != nil || creds.AccessKeyID != "id" {
		t.Fatalf("credentials = %+v, %v", creds, err)
	}
}

func TestAsyncStoreOverS3(t *testing.T) {
	d := NewDriver(newFakeClient(), "bucket", WithPrefix("rx/"))
	ctx := context.Background()

	s := idb.New("items", "app", idb.WithDriver(d))
	defer s.Dispose()

	if err := s.Set(ctx, "k", []any{"a", "b"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, found, err := s.Get(ctx, "k")
	if err != nil || !found {
		t.Fatalf("Get = %v, %v, %v", v, found, err)
	}
	if list, ok := v.([]any); !ok || len(list) != 2 || list[1] != "b" {
		t.Fatalf("Get = %#v", v)
	}
}
