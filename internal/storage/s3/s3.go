// Package s3 provides an S3-compatible storage disk with metrics.
//
// Object stores have no directories: a directory is a zero-byte marker
// object whose key ends in "/", and any key prefix with objects under it
// is treated as an existing directory.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/fruitsalade/filemanager/internal/logging"
	"github.com/fruitsalade/filemanager/internal/metrics"
	"github.com/fruitsalade/filemanager/internal/storage"
)

const allUsersURI = "http://acs.amazonaws.com/groups/global/AllUsers"

// deleteBatch is the S3 DeleteObjects limit.
const deleteBatch = 1000

// BackendConfig is a JSON-serializable config for S3 disks.
type BackendConfig struct {
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Region    string `json:"region"`
	UseSSL    bool   `json:"use_ssl"`
	Prefix    string `json:"prefix"`
}

// S3Disk implements storage.Disk using S3/MinIO.
type S3Disk struct {
	client *s3.Client
	bucket string
	prefix string
}

// New creates a new S3 disk from a BackendConfig.
func New(ctx context.Context, cfg BackendConfig) (*S3Disk, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = true
	})

	disk := &S3Disk{
		client: client,
		bucket: cfg.Bucket,
		prefix: storage.Clean(cfg.Prefix),
	}

	// Verify bucket exists
	if err := disk.ensureBucket(ctx); err != nil {
		logging.Error("bucket check failed", zap.Error(err))
	}

	return disk, nil
}

// NewFromJSON creates an S3Disk from raw JSON config.
func NewFromJSON(ctx context.Context, raw json.RawMessage) (*S3Disk, error) {
	var cfg BackendConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse s3 config: %w", err)
	}
	return New(ctx, cfg)
}

func endpointURL(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

func (d *S3Disk) ensureBucket(ctx context.Context) error {
	start := time.Now()
	_, err := d.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(d.bucket),
	})
	if err != nil {
		_, createErr := d.client.CreateBucket(ctx, &s3.CreateBucketInput{
			Bucket: aws.String(d.bucket),
		})
		if createErr != nil {
			d.record("create_bucket", start, createErr)
			return fmt.Errorf("bucket %s does not exist and cannot create: %w", d.bucket, createErr)
		}
		d.record("create_bucket", start, nil)
		logging.Info("created S3 bucket", zap.String("bucket", d.bucket))
	}
	return nil
}

func (d *S3Disk) record(op string, start time.Time, err error) {
	metrics.RecordStorageOperation(d.Type(), op, time.Since(start), err == nil)
}

// objectKey maps a disk path to its object key.
func (d *S3Disk) objectKey(p string) string {
	return storage.Join(d.prefix, p)
}

// dirKey maps a disk path to its directory marker / listing prefix.
func (d *S3Disk) dirKey(p string) string {
	k := d.objectKey(p)
	if k == "" {
		return ""
	}
	return k + "/"
}

// diskPath maps an object key back to a disk path.
func (d *S3Disk) diskPath(key string) string {
	if d.prefix != "" {
		key = strings.TrimPrefix(key, d.prefix+"/")
	}
	return storage.Clean(key)
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

// Exists checks for an object or a directory prefix.
func (d *S3Disk) Exists(ctx context.Context, p string) (bool, error) {
	ok, err := d.FileExists(ctx, p)
	if err != nil || ok {
		return ok, err
	}
	return d.DirectoryExists(ctx, p)
}

// DirectoryExists checks whether any object lives under the directory prefix.
func (d *S3Disk) DirectoryExists(ctx context.Context, p string) (bool, error) {
	if storage.Clean(p) == "" {
		return true, nil
	}
	start := time.Now()
	out, err := d.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(d.bucket),
		Prefix:  aws.String(d.dirKey(p)),
		MaxKeys: aws.Int32(1),
	})
	d.record("list_objects", start, err)
	if err != nil {
		return false, fmt.Errorf("list %s: %w", p, err)
	}
	return len(out.Contents) > 0, nil
}

// FileExists checks if an object exists in S3.
func (d *S3Disk) FileExists(ctx context.Context, p string) (bool, error) {
	if storage.Clean(p) == "" {
		return false, nil
	}
	start := time.Now()
	_, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(p)),
	})
	if err != nil {
		if isNotFound(err) {
			d.record("head_object", start, nil)
			return false, nil
		}
		d.record("head_object", start, err)
		return false, fmt.Errorf("head %s: %w", p, err)
	}
	d.record("head_object", start, nil)
	return true, nil
}

// listing collects object keys and common prefixes under a directory.
func (d *S3Disk) listing(ctx context.Context, dir string, recursive bool) (keys, prefixes []string, err error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(d.dirKey(dir)),
	}
	if !recursive {
		input.Delimiter = aws.String("/")
	}

	paginator := s3.NewListObjectsV2Paginator(d.client, input)
	for paginator.HasMorePages() {
		start := time.Now()
		page, err := paginator.NextPage(ctx)
		d.record("list_objects", start, err)
		if err != nil {
			return nil, nil, fmt.Errorf("list %s: %w", dir, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		for _, cp := range page.CommonPrefixes {
			prefixes = append(prefixes, aws.ToString(cp.Prefix))
		}
	}
	return keys, prefixes, nil
}

// Files lists objects under dir, skipping directory markers.
func (d *S3Disk) Files(ctx context.Context, dir string, recursive bool) ([]string, error) {
	keys, _, err := d.listing(ctx, dir, recursive)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range keys {
		if strings.HasSuffix(k, "/") {
			continue
		}
		out = append(out, d.diskPath(k))
	}
	sort.Strings(out)
	return out, nil
}

// Directories lists directory prefixes under dir. Recursive listings
// include directories implied by nested object keys.
func (d *S3Disk) Directories(ctx context.Context, dir string, recursive bool) ([]string, error) {
	keys, prefixes, err := d.listing(ctx, dir, recursive)
	if err != nil {
		return nil, err
	}
	base := storage.Clean(dir)
	seen := make(map[string]struct{})

	for _, pfx := range prefixes {
		seen[d.diskPath(pfx)] = struct{}{}
	}
	if recursive {
		for _, k := range keys {
			p := d.diskPath(k)
			if !strings.HasSuffix(k, "/") {
				p = storage.Parent(p)
			}
			for p != "" && p != base && storage.IsWithin(p, base) {
				seen[p] = struct{}{}
				p = storage.Parent(p)
			}
		}
	}
	delete(seen, base)

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// MakeDirectory writes a zero-byte directory marker.
func (d *S3Disk) MakeDirectory(ctx context.Context, p string) error {
	if storage.Clean(p) == "" {
		return nil
	}
	start := time.Now()
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(d.dirKey(p)),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	d.record("put_object", start, err)
	if err != nil {
		return fmt.Errorf("mkdir %s: %w", p, err)
	}
	return nil
}

// DeleteDirectory removes every object under the directory prefix.
func (d *S3Disk) DeleteDirectory(ctx context.Context, p string) error {
	if storage.Clean(p) == "" {
		return fmt.Errorf("delete directory: refusing to remove disk root")
	}
	keys, _, err := d.listing(ctx, p, true)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("delete directory %s: %w", p, storage.ErrNotExist)
	}

	for i := 0; i < len(keys); i += deleteBatch {
		end := min(i+deleteBatch, len(keys))
		ids := make([]types.ObjectIdentifier, 0, end-i)
		for _, k := range keys[i:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}

		start := time.Now()
		out, err := d.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(d.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		d.record("delete_objects", start, err)
		if err != nil {
			return fmt.Errorf("delete directory %s: %w", p, err)
		}
		if len(out.Errors) > 0 {
			return fmt.Errorf("delete directory %s: %d objects not deleted (first: %s)",
				p, len(out.Errors), aws.ToString(out.Errors[0].Key))
		}
	}

	logging.Debug("S3 delete directory", zap.String("prefix", d.dirKey(p)), zap.Int("objects", len(keys)))
	return nil
}

// Delete removes an object from S3.
func (d *S3Disk) Delete(ctx context.Context, p string) error {
	ok, err := d.FileExists(ctx, p)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("delete %s: %w", p, storage.ErrNotExist)
	}

	start := time.Now()
	_, err = d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(p)),
	})
	d.record("delete_object", start, err)
	if err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}

	logging.Debug("S3 delete object", zap.String("key", d.objectKey(p)))
	return nil
}

// Copy copies an S3 object server-side.
func (d *S3Disk) Copy(ctx context.Context, src, dst string) error {
	start := time.Now()
	_, err := d.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(d.bucket),
		Key:        aws.String(d.objectKey(dst)),
		CopySource: aws.String(d.copySource(src)),
	})
	d.record("copy_object", start, err)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("copy %s: %w", src, storage.ErrNotExist)
		}
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}

	logging.Debug("S3 copy object", zap.String("src", src), zap.String("dst", dst))
	return nil
}

// copySource is the URL-encoded "bucket/key" CopyObject expects.
func (d *S3Disk) copySource(p string) string {
	segs := strings.Split(d.objectKey(p), "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return d.bucket + "/" + strings.Join(segs, "/")
}

// Move copies then deletes; S3 has no rename.
func (d *S3Disk) Move(ctx context.Context, src, dst string) error {
	if err := d.Copy(ctx, src, dst); err != nil {
		return err
	}
	return d.Delete(ctx, src)
}

// PutFileAs uploads content to dir/name.
func (d *S3Disk) PutFileAs(ctx context.Context, dir string, body io.Reader, size int64, name string) (string, error) {
	p := storage.Join(dir, name)
	input := &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(p)),
		Body:   body,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		input.ContentType = aws.String(ct)
	}

	start := time.Now()
	_, err := d.client.PutObject(ctx, input)
	d.record("put_object", start, err)
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", p, err)
	}

	logging.Debug("S3 put object", zap.String("key", d.objectKey(p)), zap.Int64("size", size))
	return p, nil
}

// SetVisibility applies a canned ACL to the object.
func (d *S3Disk) SetVisibility(ctx context.Context, p string, v storage.Visibility) error {
	acl := types.ObjectCannedACLPrivate
	if v == storage.VisibilityPublic {
		acl = types.ObjectCannedACLPublicRead
	}

	start := time.Now()
	_, err := d.client.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(p)),
		ACL:    acl,
	})
	d.record("put_object_acl", start, err)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("set visibility %s: %w", p, storage.ErrNotExist)
		}
		return fmt.Errorf("set visibility %s: %w", p, err)
	}
	return nil
}

// Visibility reports public when AllUsers holds a READ grant.
func (d *S3Disk) Visibility(ctx context.Context, p string) (storage.Visibility, error) {
	start := time.Now()
	out, err := d.client.GetObjectAcl(ctx, &s3.GetObjectAclInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(p)),
	})
	d.record("get_object_acl", start, err)
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("visibility %s: %w", p, storage.ErrNotExist)
		}
		return "", fmt.Errorf("visibility %s: %w", p, err)
	}

	for _, g := range out.Grants {
		if g.Grantee != nil && aws.ToString(g.Grantee.URI) == allUsersURI &&
			(g.Permission == types.PermissionRead || g.Permission == types.PermissionFullControl) {
			return storage.VisibilityPublic, nil
		}
	}
	return storage.VisibilityPrivate, nil
}

// Stat heads the object, falling back to a directory check.
func (d *S3Disk) Stat(ctx context.Context, p string) (storage.Entry, error) {
	p = storage.Clean(p)
	if p != "" {
		start := time.Now()
		out, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(d.bucket),
			Key:    aws.String(d.objectKey(p)),
		})
		if err == nil {
			d.record("head_object", start, nil)
			return storage.Entry{
				Path:    p,
				Size:    aws.ToInt64(out.ContentLength),
				ModTime: aws.ToTime(out.LastModified),
			}, nil
		}
		if !isNotFound(err) {
			d.record("head_object", start, err)
			return storage.Entry{}, fmt.Errorf("stat %s: %w", p, err)
		}
		d.record("head_object", start, nil)
	}

	ok, err := d.DirectoryExists(ctx, p)
	if err != nil {
		return storage.Entry{}, err
	}
	if !ok {
		return storage.Entry{}, fmt.Errorf("stat %s: %w", p, storage.ErrNotExist)
	}
	return storage.Entry{Path: p, IsDir: true}, nil
}

// Download streams an object from S3.
func (d *S3Disk) Download(ctx context.Context, p string) (io.ReadCloser, error) {
	start := time.Now()
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(p)),
	})
	d.record("get_object", start, err)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("get object %s: %w", p, storage.ErrNotExist)
		}
		return nil, fmt.Errorf("get object %s: %w", p, err)
	}
	return out.Body, nil
}

// Type returns "s3".
func (d *S3Disk) Type() string { return "s3" }

// Close is a no-op for S3 disks.
func (d *S3Disk) Close() error { return nil }
