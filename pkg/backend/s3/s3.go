// Package s3 provides a backend.Driver that stores every value as one
// object of an S3 bucket, under prefix + database/table/key.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/vango-dev/rxstore/pkg/backend"
)

// ErrClosed is returned by closed table handles.
var ErrClosed = errors.New("s3: table closed")

// Client is the subset of the AWS SDK S3 client used by the driver.
type Client interface {
	awss3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *awss3.DeleteObjectsInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error)
}

var _ Client = (*awss3.Client)(nil)

// Option configures a Driver.
type Option func(*Driver)

// WithPrefix sets the object key prefix, e.g. "rxstore/".
func WithPrefix(prefix string) Option {
	return func(d *Driver) {
		d.prefix = prefix
	}
}

// WithLogger sets the driver logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Driver stores tables in a bucket.
type Driver struct {
	client Client
	bucket string
	prefix string
	logger *slog.Logger
}

var _ backend.Driver = (*Driver)(nil)

// NewDriver creates a driver over bucket.
//
// Example usage:
//
//	client := s3.NewClient(s3.ClientConfig{Region: "eu-west-1"})
//	drv := s3.NewDriver(client, "my-bucket", s3.WithPrefix("rxstore/"))
//	store := idb.New("settings", "app", idb.WithDriver(drv))
func NewDriver(client Client, bucket string, opts ...Option) *Driver {
	d := &Driver{
		client: client,
		bucket: bucket,
		logger: slog.Default().With("component", "rxstore.s3"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name implements backend.Driver.
func (d *Driver) Name() string {
	return "s3"
}

// OpenTable implements backend.Driver. Tables need no setup; the bucket
// must exist.
func (d *Driver) OpenTable(ctx context.Context, database, table string) (backend.Table, error) {
	if d.bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	return &Table{
		driver: d,
		prefix: d.prefix + url.PathEscape(database) + "/" + url.PathEscape(table) + "/",
	}, nil
}

// Table is one logical table: every object under its prefix.
type Table struct {
	driver *Driver
	prefix string
	closed atomic.Bool
}

var _ backend.Table = (*Table)(nil)

func (t *Table) object(key string) *string {
	return aws.String(t.prefix + key)
}

func (t *Table) check() error {
	if t.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Get implements backend.Table. A missing object is absent.
func (t *Table) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := t.check(); err != nil {
		return nil, false, err
	}

	out, err := t.driver.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(t.driver.bucket),
		Key:    t.object(key),
	})
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("s3 get %q: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("s3 read %q: %w", key, err)
	}
	return data, true, nil
}

// Set implements backend.Table.
func (t *Table) Set(ctx context.Context, key string, value []byte) error {
	if err := t.check(); err != nil {
		return err
	}

	_, err := t.driver.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(t.driver.bucket),
		Key:         t.object(key),
		Body:        bytes.NewReader(value),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %q: %w", key, err)
	}
	return nil
}

// Remove implements backend.Table.
func (t *Table) Remove(ctx context.Context, key string) error {
	if err := t.check(); err != nil {
		return err
	}

	_, err := t.driver.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(t.driver.bucket),
		Key:    t.object(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("s3 delete %q: %w", key, err)
	}
	return nil
}

// Keys implements backend.Table. Keys are sorted.
func (t *Table) Keys(ctx context.Context) ([]string, error) {
	if err := t.check(); err != nil {
		return nil, err
	}

	keys := []string{}
	err := t.eachPage(ctx, func(objects []types.Object) error {
		for _, obj := range objects {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), t.prefix))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear implements backend.Table. Objects are deleted one listing page at a
// time.
func (t *Table) Clear(ctx context.Context) error {
	if err := t.check(); err != nil {
		return err
	}

	return t.eachPage(ctx, func(objects []types.Object) error {
		if len(objects) == 0 {
			return nil
		}
		ids := make([]types.ObjectIdentifier, 0, len(objects))
		for _, obj := range objects {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}

		out, err := t.driver.client.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
			Bucket: aws.String(t.driver.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("s3 clear: %w", err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("s3 clear %q: %s: %s", aws.ToString(e.Key), aws.ToString(e.Code), aws.ToString(e.Message))
		}
		return nil
	})
}

func (t *Table) eachPage(ctx context.Context, fn func([]types.Object) error) error {
	paginator := awss3.NewListObjectsV2Paginator(t.driver.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(t.driver.bucket),
		Prefix: aws.String(t.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("s3 list: %w", err)
		}
		if err := fn(page.Contents); err != nil {
			return err
		}
	}
	return nil
}

// Close implements backend.Table.
func (t *Table) Close() error {
	t.closed.Store(true)
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}
