// Package s3test provides an in-memory S3 implementation for tests.
package s3test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Fake stores objects in memory and answers the calls made by the transfer
// managers: ranged GetObject, PutObject, and the multipart upload family.
type Fake struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads map[string]map[int32][]byte
	nextID  int
	gets    int
}

// NewFake creates an empty fake.
func NewFake() *Fake {
	return &Fake{
		objects: make(map[string][]byte),
		uploads: make(map[string]map[int32][]byte),
	}
}

func objectKey(bucket, key *string) string {
	return aws.ToString(bucket) + "/" + aws.ToString(key)
}

// Put stores an object.
func (f *Fake) Put(bucket, key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = slices.Clone(data)
}

// Object returns a stored object.
func (f *Fake) Object(bucket, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket+"/"+key]
	return data, ok
}

// Gets returns the number of GetObject calls served.
func (f *Fake) Gets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

// GetObject serves whole objects or "bytes=a-b" ranges.
func (f *Fake) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++

	data, ok := f.objects[objectKey(in.Bucket, in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key: " + aws.ToString(in.Key))}
	}

	total := int64(len(data))
	if in.Range == nil {
		return &s3.GetObjectOutput{
			Body:          io.NopCloser(bytes.NewReader(data)),
			ContentLength: aws.Int64(total),
		}, nil
	}

	start, end, err := parseRange(aws.ToString(in.Range))
	if err != nil {
		return nil, err
	}
	if start >= total {
		return nil, fmt.Errorf("range %q not satisfiable for %d bytes", aws.ToString(in.Range), total)
	}
	end = min(end, total-1)
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data[start : end+1])),
		ContentLength: aws.Int64(end - start + 1),
		ContentRange:  aws.String(fmt.Sprintf("bytes %d-%d/%d", start, end, total)),
	}, nil
}

func parseRange(r string) (start, end int64, err error) {
	spec, ok := strings.CutPrefix(r, "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("unsupported range %q", r)
	}
	a, b, _ := strings.Cut(spec, "-")
	if start, err = strconv.ParseInt(a, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("parse range %q: %w", r, err)
	}
	if end, err = strconv.ParseInt(b, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("parse range %q: %w", r, err)
	}
	return start, end, nil
}

// PutObject stores the request body.
func (f *Fake) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[objectKey(in.Bucket, in.Key)] = data
	return &s3.PutObjectOutput{ETag: aws.String(`"fake"`)}, nil
}

// CreateMultipartUpload starts a multipart upload.
func (f *Fake) CreateMultipartUpload(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := strconv.Itoa(f.nextID)
	f.uploads[id] = make(map[int32][]byte)
	return &s3.CreateMultipartUploadOutput{Bucket: in.Bucket, Key: in.Key, UploadId: aws.String(id)}, nil
}

// UploadPart stores one part.
func (f *Fake) UploadPart(_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	parts, ok := f.uploads[aws.ToString(in.UploadId)]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}
	n := aws.ToInt32(in.PartNumber)
	parts[n] = data
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf(`"part-%d"`, n))}, nil
}

// CompleteMultipartUpload concatenates the listed parts.
func (f *Fake) CompleteMultipartUpload(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := aws.ToString(in.UploadId)
	parts, ok := f.uploads[id]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}

	var buf bytes.Buffer
	if in.MultipartUpload != nil {
		completed := slices.Clone(in.MultipartUpload.Parts)
		slices.SortFunc(completed, func(a, b types.CompletedPart) int {
			return int(aws.ToInt32(a.PartNumber) - aws.ToInt32(b.PartNumber))
		})
		for _, p := range completed {
			buf.Write(parts[aws.ToInt32(p.PartNumber)])
		}
	}
	f.objects[objectKey(in.Bucket, in.Key)] = buf.Bytes()
	delete(f.uploads, id)
	return &s3.CompleteMultipartUploadOutput{Bucket: in.Bucket, Key: in.Key}, nil
}

// AbortMultipartUpload discards a multipart upload.
func (f *Fake) AbortMultipartUpload(_ context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.uploads, aws.ToString(in.UploadId))
	return &s3.AbortMultipartUploadOutput{}, nil
}
