// Package s3blob is an alternate blobstore.Store backed by Amazon S3,
// demonstrating that the remote-helper core is agnostic to which cloud
// store sits behind the Store contract. CAS semantics are mapped onto S3's
// conditional-write headers, using the real AWS SDK the pack carries
// (antgroup-hugescm's go.mod).
package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/anishathalye/git-remote-dropbox/internal/blobstore"
)

// ChunkSize is the threshold above which Upload switches from a single
// PutObject call to a multipart upload (create/upload-part/complete), the
// same chunked-upload shape internal/dropboxapi uses above its own
// ChunkSize, mirrored here since S3 multipart parts must each be at least
// 5 MiB (except the last).
const ChunkSize = 50 * 1024 * 1024

// Store is a blobstore.Store backed by one S3 bucket. Revisions are the
// ETag S3 assigns each object version; conditional writes use the
// If-Match/If-None-Match request headers S3 supports on PutObject.
type Store struct {
	client *s3.Client
	bucket string
}

// New builds a Store for bucket, using ak/sk as static credentials unless
// both are empty, in which case the default AWS credential chain is used.
func New(ctx context.Context, bucket, region, ak, sk string) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if ak != "" || sk != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(ak, sk, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Store{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %v", blobstore.ErrNotFound, err)
		case "PreconditionFailed":
			return fmt.Errorf("%w: %v", blobstore.ErrConflict, err)
		case "SlowDown", "InternalError", "ServiceUnavailable":
			return fmt.Errorf("%w: %v", blobstore.ErrTransient, err)
		}
	}
	return err
}

// Download returns the current ETag and content of path.
func (s *Store) Download(ctx context.Context, path string) (string, []byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return "", nil, classify(err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", nil, err
	}
	return strings.Trim(aws.ToString(out.ETag), `"`), data, nil
}

// Upload writes data to path under the given conditional-write mode,
// mapping Add onto If-None-Match: * and Update onto If-Match: <rev>.
// Payloads larger than ChunkSize are uploaded as a multipart upload.
func (s *Store) Upload(ctx context.Context, path string, data []byte, mode blobstore.WriteModeSpec) (string, error) {
	if len(data) <= ChunkSize {
		return s.uploadSingleShot(ctx, path, data, mode)
	}
	return s.uploadMultipart(ctx, path, data, mode)
}

func (s *Store) uploadSingleShot(ctx context.Context, path string, data []byte, mode blobstore.WriteModeSpec) (string, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
		Body:   bytes.NewReader(data),
	}
	switch mode.Mode {
	case blobstore.Add:
		in.IfNoneMatch = aws.String("*")
	case blobstore.Update:
		in.IfMatch = aws.String(mode.Rev)
	case blobstore.Overwrite:
		// unconditional
	}

	out, err := s.client.PutObject(ctx, in)
	if err != nil {
		return "", classify(err)
	}
	return strings.Trim(aws.ToString(out.ETag), `"`), nil
}

// uploadMultipart uploads data (known to be larger than ChunkSize) as a
// sequence of ChunkSize-sized parts, applying mode's conditional-write
// precondition at the final CompleteMultipartUpload call the same way
// uploadSingleShot applies it to PutObject. Any failure aborts the
// in-progress upload so S3 doesn't keep billing for the orphaned parts.
func (s *Store) uploadMultipart(ctx context.Context, path string, data []byte, mode blobstore.WriteModeSpec) (string, error) {
	created, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return "", classify(err)
	}
	uploadID := created.UploadId

	abort := func() {
		_, _ = s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket: aws.String(s.bucket), Key: aws.String(path), UploadId: uploadID,
		})
	}

	var parts []types.CompletedPart
	var partNumber int32 = 1
	for offset := 0; offset < len(data); offset += ChunkSize {
		end := offset + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		partOut, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(s.bucket),
			Key:        aws.String(path),
			UploadId:   uploadID,
			PartNumber: aws.Int32(partNumber),
			Body:       bytes.NewReader(data[offset:end]),
		})
		if err != nil {
			abort()
			return "", classify(err)
		}
		parts = append(parts, types.CompletedPart{ETag: partOut.ETag, PartNumber: aws.Int32(partNumber)})
		partNumber++
	}

	complete := &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(path),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	}
	switch mode.Mode {
	case blobstore.Add:
		complete.IfNoneMatch = aws.String("*")
	case blobstore.Update:
		complete.IfMatch = aws.String(mode.Rev)
	case blobstore.Overwrite:
		// unconditional
	}
	out, err := s.client.CompleteMultipartUpload(ctx, complete)
	if err != nil {
		abort()
		return "", classify(err)
	}
	return strings.Trim(aws.ToString(out.ETag), `"`), nil
}

// ListFolder recursively lists every object under path, paginating via the
// continuation token S3's ListObjectsV2 returns.
func (s *Store) ListFolder(ctx context.Context, path string) ([]blobstore.FileInfo, error) {
	prefix := strings.TrimSuffix(path, "/") + "/"
	var out []blobstore.FileInfo
	var token *string
	for {
		resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, classify(err)
		}
		for _, obj := range resp.Contents {
			out = append(out, blobstore.FileInfo{
				Path: aws.ToString(obj.Key),
				Rev:  strings.Trim(aws.ToString(obj.ETag), `"`),
			})
		}
		if !aws.ToBool(resp.IsTruncated) {
			break
		}
		token = resp.NextContinuationToken
	}
	return out, nil
}

// Delete removes path. Deleting an already-absent key is not an error,
// matching S3's own DeleteObject semantics.
func (s *Store) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

var _ blobstore.Store = (*Store)(nil)
