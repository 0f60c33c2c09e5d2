package objectstore

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 implements Client over an in-memory key → content map.
// Listing returns keys in sorted order, paged by MaxKeys, like the real API.
type fakeS3 struct {
	objects map[string][]byte
	// listCalls counts ListObjectsV2 invocations.
	listCalls int
	// deleteCalls counts DeleteObjects invocations.
	deleteCalls int
	// maxDeleteBatch records the largest delete batch seen.
	maxDeleteBatch int
}

func newFakeS3(keys ...string) *fakeS3 {
	f := &fakeS3{objects: make(map[string][]byte)}
	for _, k := range keys {
		f.objects[k] = []byte("content of " + k)
	}
	return f
}

func (f *fakeS3) sortedKeys(prefix string) []string {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeS3) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.listCalls++

	keys := f.sortedKeys(aws.ToString(params.Prefix))
	start := 0
	if params.ContinuationToken != nil {
		token := aws.ToString(params.ContinuationToken)
		for i, k := range keys {
			if k > token {
				start = i
				break
			}
		}
	}

	pageSize := int(aws.ToInt32(params.MaxKeys))
	end := start + pageSize
	if end > len(keys) {
		end = len(keys)
	}
	page := keys[start:end]

	out := &s3.ListObjectsV2Output{KeyCount: aws.Int32(int32(len(page)))}
	for _, k := range page {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(page[len(page)-1])
	} else {
		out.IsTruncated = aws.Bool(false)
	}
	return out, nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, params *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.deleteCalls++
	if n := len(params.Delete.Objects); n > f.maxDeleteBatch {
		f.maxDeleteBatch = n
	}
	for _, id := range params.Delete.Objects {
		delete(f.objects, aws.ToString(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s", aws.ToString(params.Key))
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func TestParseURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		raw        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{"bucket and key", "s3://my-bucket/docs/file.pdf", "my-bucket", "docs/file.pdf", false},
		{"bucket only", "s3://my-bucket", "my-bucket", "", false},
		{"prefix", "s3://my-bucket/vector-store/", "my-bucket", "vector-store/", false},
		{"wrong scheme", "gs://my-bucket/key", "", "", true},
		{"http scheme", "https://example.com/key", "", "", true},
		{"no bucket", "s3:///key", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := ParseURI(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURI(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if u.Bucket != tt.wantBucket || u.Key != tt.wantKey {
				t.Errorf("ParseURI(%q) = {%q, %q}, want {%q, %q}", tt.raw, u.Bucket, u.Key, tt.wantBucket, tt.wantKey)
			}
		})
	}
}

func TestParseURI_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"s3://bucket/key",
		"s3://bucket/deep/nested/key.pdf",
		"s3://bucket",
	} {
		u, err := ParseURI(raw)
		if err != nil {
			t.Fatalf("ParseURI(%q): %v", raw, err)
		}
		if u.String() != raw {
			t.Errorf("round trip of %q produced %q", raw, u.String())
		}
	}
}

func TestListPager_PagesThroughAllKeys(t *testing.T) {
	t.Parallel()

	fake := newFakeS3("docs/a.pdf", "docs/b.pdf", "docs/c.pdf", "docs/d.pdf", "docs/e.pdf")
	g := NewGateway(fake)

	pager := g.ListPager(URI{Bucket: "b", Key: "docs/"}, 2)
	var all []string
	pages := 0
	for pager.HasMorePages() {
		keys, err := pager.NextPage(context.Background())
		if err != nil {
			t.Fatalf("NextPage: %v", err)
		}
		pages++
		all = append(all, keys...)
	}

	if len(all) != 5 {
		t.Errorf("got %d keys, want 5", len(all))
	}
	if pages != 3 {
		t.Errorf("got %d pages, want 3", pages)
	}
}

func TestDeleteAll_OneDeletePerPage(t *testing.T) {
	t.Parallel()

	var keys []string
	for i := 0; i < 25; i++ {
		keys = append(keys, fmt.Sprintf("store/seg-%03d.json", i))
	}
	fake := newFakeS3(keys...)
	g := NewGateway(fake)

	deleted, err := g.DeleteAll(context.Background(), URI{Bucket: "b", Key: "store/"})
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if deleted != 25 {
		t.Errorf("deleted %d objects, want 25", deleted)
	}
	if len(fake.objects) != 0 {
		t.Errorf("%d objects remain after DeleteAll", len(fake.objects))
	}
	if fake.maxDeleteBatch > MaxPageSize {
		t.Errorf("delete batch of %d exceeds the per-call limit %d", fake.maxDeleteBatch, MaxPageSize)
	}
}

func TestHasAny(t *testing.T) {
	t.Parallel()

	fake := newFakeS3("store/seg-000.json")
	g := NewGateway(fake)
	ctx := context.Background()

	ok, err := g.HasAny(ctx, URI{Bucket: "b", Key: "store/"})
	if err != nil {
		t.Fatalf("HasAny: %v", err)
	}
	if !ok {
		t.Error("HasAny = false for non-empty prefix")
	}

	ok, err = g.HasAny(ctx, URI{Bucket: "b", Key: "empty/"})
	if err != nil {
		t.Fatalf("HasAny: %v", err)
	}
	if ok {
		t.Error("HasAny = true for empty prefix")
	}
}

func TestGetPutRoundTrip(t *testing.T) {
	t.Parallel()

	fake := newFakeS3()
	g := NewGateway(fake)
	ctx := context.Background()
	loc := URI{Bucket: "b", Key: "store/seg-000.json"}

	if err := g.Put(ctx, loc, []byte(`{"records":[]}`), "application/json"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, err := g.Get(ctx, loc)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != `{"records":[]}` {
		t.Errorf("Get returned %q", data)
	}
}
