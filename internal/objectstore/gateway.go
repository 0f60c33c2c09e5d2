package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// MaxPageSize is the largest page the backing store supports for both
// ListObjectsV2 and DeleteObjects. Listing pages and delete batches are
// capped here so one delete call can always consume one listing page.
const MaxPageSize = 1000

// Client is the subset of the S3 API the gateway uses. *s3.Client satisfies
// it; tests inject a fake.
type Client interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewClientFromEnv constructs an *s3.Client from the standard AWS environment
// (credentials chain, AWS_REGION, AWS_ENDPOINT_URL). Backblaze B2 and other
// S3-compatible stores are reached by pointing AWS_ENDPOINT_URL at them.
func NewClientFromEnv(ctx context.Context) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// Gateway exposes the object-store operations used by ingestion and the
// vector store lifecycle. It is safe for concurrent use.
type Gateway struct {
	// client is the S3 API client.
	client Client
}

// NewGateway constructs a Gateway over the given client.
func NewGateway(client Client) *Gateway {
	return &Gateway{client: client}
}

// ListPager pages over the keys under a prefix, one ListObjectsV2 call per
// page. It mirrors the SDK paginator shape: call NextPage until HasMorePages
// reports false.
type ListPager struct {
	gateway  *Gateway
	loc      URI
	pageSize int32
	token    *string
	started  bool
	done     bool
}

// ListPager returns a pager over the keys under loc. pageSize is clamped to
// [1, MaxPageSize].
func (g *Gateway) ListPager(loc URI, pageSize int) *ListPager {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return &ListPager{gateway: g, loc: loc, pageSize: int32(pageSize)}
}

// HasMorePages reports whether another page may be available. It is true
// before the first call to NextPage.
func (p *ListPager) HasMorePages() bool {
	return !p.done
}

// NextPage fetches the next page of keys. Returns the keys in listing order;
// the final page may be empty when the prefix holds no objects.
func (p *ListPager) NextPage(ctx context.Context) ([]string, error) {
	if p.done {
		return nil, fmt.Errorf("objectstore: pager exhausted for %s", p.loc)
	}

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.loc.Bucket),
		Prefix:  aws.String(p.loc.Key),
		MaxKeys: aws.Int32(p.pageSize),
	}
	if p.started {
		input.ContinuationToken = p.token
	}

	out, err := p.gateway.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("objectstore: list %s: %w", p.loc, err)
	}

	p.started = true
	if out.IsTruncated != nil && *out.IsTruncated {
		p.token = out.NextContinuationToken
	} else {
		p.done = true
	}

	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		keys = append(keys, aws.ToString(obj.Key))
	}
	return keys, nil
}

// DeleteAll removes every object under loc, issuing one DeleteObjects call
// per listing page. ListObjectsV2 returns pages of up to 1000 results and
// DeleteObjects accepts up to 1000 identifiers, so the two pair exactly.
// Returns the number of objects deleted.
func (g *Gateway) DeleteAll(ctx context.Context, loc URI) (int, error) {
	deleted := 0
	pager := g.ListPager(loc, MaxPageSize)
	for pager.HasMorePages() {
		keys, err := pager.NextPage(ctx)
		if err != nil {
			return deleted, err
		}
		if len(keys) == 0 {
			continue
		}

		ids := make([]types.ObjectIdentifier, 0, len(keys))
		for _, k := range keys {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}
		_, err = g.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(loc.Bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, fmt.Errorf("objectstore: delete under %s: %w", loc, err)
		}
		deleted += len(keys)
	}
	return deleted, nil
}

// HasAny reports whether at least one object exists under loc. It issues a
// single listing call capped at one result.
func (g *Gateway) HasAny(ctx context.Context, loc URI) (bool, error) {
	out, err := g.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(loc.Bucket),
		Prefix:  aws.String(loc.Key),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("objectstore: list %s: %w", loc, err)
	}
	return aws.ToInt32(out.KeyCount) > 0, nil
}

// Get reads the full contents of one object.
func (g *Gateway) Get(ctx context.Context, loc URI) ([]byte, error) {
	out, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: get %s: %w", loc, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("objectstore: read %s: %w", loc, err)
	}
	return data, nil
}

// Put writes one object, replacing any existing object at the same key.
func (g *Gateway) Put(ctx context.Context, loc URI, data []byte, contentType string) error {
	_, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(loc.Bucket),
		Key:         aws.String(loc.Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("objectstore: put %s: %w", loc, err)
	}
	return nil
}
