package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"drivesync/internal/ds"
)

// S3Options configures an S3Store.
type S3Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	RootID          string
	PartSize        int64
}

// S3Store implements ds.RemoteStore on an S3 bucket. Item IDs are object
// keys relative to the prefix. Folders are keys ending in "/", backed by an
// empty marker object when created through CreateFolder. The configured
// root ID stands for the prefix itself.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	rootID   string
}

// NewS3Store loads AWS configuration and creates the store.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 store requires a bucket")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMaxAttempts(3),
		awsconfig.WithRetryMode(aws.RetryModeStandard),
	}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3StoreFromClient(client, opts), nil
}

// NewS3StoreFromClient wraps an existing client.
func NewS3StoreFromClient(client *s3.Client, opts S3Options) *S3Store {
	partSize := opts.PartSize
	if partSize < manager.MinUploadPartSize {
		partSize = manager.MinUploadPartSize
	}
	rootID := opts.RootID
	if rootID == "" {
		rootID = MemoryRootID
	}
	return &S3Store{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = partSize
		}),
		bucket: opts.Bucket,
		prefix: normalizePrefix(opts.Prefix),
		rootID: rootID,
	}
}

func (s *S3Store) ListChildren(ctx context.Context, folderID string) ([]*ds.RemoteItem, error) {
	dir, err := s.folderKey(folderID)
	if err != nil {
		return nil, err
	}
	listPrefix := s.prefix + dir

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(listPrefix),
		Delimiter: aws.String("/"),
	})

	var items []*ds.RemoteItem
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyS3(fmt.Errorf("listing %s: %w", listPrefix, err))
		}
		for _, cp := range page.CommonPrefixes {
			id := strings.TrimPrefix(aws.ToString(cp.Prefix), s.prefix)
			items = append(items, &ds.RemoteItem{
				ID:       id,
				Name:     path.Base(id),
				Kind:     ds.KindFolder,
				MimeType: ds.FolderMimeType,
				ParentID: folderID,
			})
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == listPrefix {
				continue
			}
			id := strings.TrimPrefix(key, s.prefix)
			items = append(items, &ds.RemoteItem{
				ID:         id,
				Name:       path.Base(id),
				Kind:       ds.KindFile,
				MimeType:   ds.DetectMimeType(id),
				ModifiedAt: aws.ToTime(obj.LastModified).UTC(),
				Checksum:   strings.Trim(aws.ToString(obj.ETag), `"`),
				Size:       aws.ToInt64(obj.Size),
				ParentID:   folderID,
			})
		}
	}
	return items, nil
}

func (s *S3Store) GetMedia(ctx context.Context, id string, offset int64) (*ds.MediaStream, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + id),
	}
	if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}

	out, err := s.client.GetObject(ctx, input)
	if err != nil {
		return nil, classifyS3(fmt.Errorf("downloading %s: %w", id, err))
	}
	length := int64(-1)
	if out.ContentLength != nil {
		length = *out.ContentLength
	}
	return &ds.MediaStream{ReadCloser: out.Body, Length: length}, nil
}

// ExportMedia always fails: buckets hold no native documents.
func (s *S3Store) ExportMedia(ctx context.Context, id string, mimeType string) (*ds.MediaStream, error) {
	return nil, fmt.Errorf("export of %s not supported by s3 store", id)
}

func (s *S3Store) CreateFolder(ctx context.Context, name string, parentID string) (string, error) {
	dir, err := s.folderKey(parentID)
	if err != nil {
		return "", err
	}
	id := dir + name + "/"

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + id),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return "", classifyS3(fmt.Errorf("creating folder %s: %w", id, err))
	}
	return id, nil
}

func (s *S3Store) CreateFile(ctx context.Context, name string, parentID string, mimeType string, content io.Reader, size int64) (*ds.RemoteItem, error) {
	dir, err := s.folderKey(parentID)
	if err != nil {
		return nil, err
	}
	return s.put(ctx, dir+name, mimeType, content)
}

func (s *S3Store) UpdateFile(ctx context.Context, id string, mimeType string, content io.Reader, size int64) (*ds.RemoteItem, error) {
	if strings.HasSuffix(id, "/") || id == s.rootID {
		return nil, fmt.Errorf("%s is a folder", id)
	}
	return s.put(ctx, id, mimeType, content)
}

// put streams content through the multipart uploader and reads back the
// stored object's metadata.
func (s *S3Store) put(ctx context.Context, id string, mimeType string, content io.Reader) (*ds.RemoteItem, error) {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.prefix + id),
		Body:        content,
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return nil, classifyS3(fmt.Errorf("uploading %s: %w", id, err))
	}
	return s.GetItem(ctx, id)
}

func (s *S3Store) GetItem(ctx context.Context, id string) (*ds.RemoteItem, error) {
	if id == s.rootID || id == "" {
		return &ds.RemoteItem{ID: s.rootID, Name: s.bucket, Kind: ds.KindFolder, MimeType: ds.FolderMimeType}, nil
	}

	parentID := s.parentOf(id)
	if strings.HasSuffix(id, "/") {
		return &ds.RemoteItem{
			ID:       id,
			Name:     path.Base(id),
			Kind:     ds.KindFolder,
			MimeType: ds.FolderMimeType,
			ParentID: parentID,
		}, nil
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + id),
	})
	if err != nil {
		return nil, classifyS3(fmt.Errorf("getting %s: %w", id, err))
	}
	mimeType := aws.ToString(out.ContentType)
	if mimeType == "" {
		mimeType = ds.DetectMimeType(id)
	}
	return &ds.RemoteItem{
		ID:         id,
		Name:       path.Base(id),
		Kind:       ds.KindFile,
		MimeType:   mimeType,
		ModifiedAt: aws.ToTime(out.LastModified).UTC(),
		Checksum:   strings.Trim(aws.ToString(out.ETag), `"`),
		Size:       aws.ToInt64(out.ContentLength),
		ParentID:   parentID,
	}, nil
}

// folderKey returns the key prefix, relative to s.prefix, under which the
// children of folderID live.
func (s *S3Store) folderKey(folderID string) (string, error) {
	if folderID == s.rootID || folderID == "" {
		return "", nil
	}
	if !strings.HasSuffix(folderID, "/") {
		return "", fmt.Errorf("%s is not a folder", folderID)
	}
	return folderID, nil
}

func (s *S3Store) parentOf(id string) string {
	trimmed := strings.TrimSuffix(id, "/")
	i := strings.LastIndex(trimmed, "/")
	if i < 0 {
		return s.rootID
	}
	return trimmed[:i+1]
}

func normalizePrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// classifyS3 marks credential failures as fatal.
func classifyS3(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "AccessDenied", "NoSuchBucket":
			return ds.Fatal(err)
		}
	}
	var noBucket *s3types.NoSuchBucket
	if errors.As(err, &noBucket) {
		return ds.Fatal(err)
	}
	return err
}

// Compile-time check that S3Store implements ds.RemoteStore interface
var _ ds.RemoteStore = (*S3Store)(nil)
