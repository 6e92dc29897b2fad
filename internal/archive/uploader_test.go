package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whisper-desk/internal/domain"
)

type fakePutter struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
	err     error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = map[string]string{}
		f.types = map[string]string{}
	}
	key := aws.ToString(in.Key)
	f.objects[key] = string(body)
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func sampleJob(t *testing.T) (*domain.JobRecord, string) {
	t.Helper()
	dir := t.TempDir()
	meta := filepath.Join(dir, "metadata.json")
	srt := filepath.Join(dir, "files", "result.srt")
	require.NoError(t, os.MkdirAll(filepath.Dir(srt), 0o755))
	require.NoError(t, os.WriteFile(meta, []byte(`{"id":"job-1"}`), 0o644))
	require.NoError(t, os.WriteFile(srt, []byte("1\n"), 0o644))

	return &domain.JobRecord{
		ID:      "job-1",
		Results: []domain.ResultEntry{{FilePath: srt, Format: "srt", FileSize: 2}},
	}, meta
}

// TestUploadJobWritesAllObjects verifies metadata and results land under the job prefix.
func TestUploadJobWritesAllObjects(t *testing.T) {
	putter := &fakePutter{}
	u := newUploader(putter, Config{Bucket: "archive", Prefix: "/desk/"}, nil)
	rec, meta := sampleJob(t)

	out, err := u.UploadJob(context.Background(), rec, meta)
	require.NoError(t, err)
	assert.Equal(t, []string{"desk/job-1/metadata.json", "desk/job-1/result.srt"}, out.Keys)
	assert.Equal(t, `{"id":"job-1"}`, putter.objects["desk/job-1/metadata.json"])
	assert.Equal(t, "application/json", putter.types["desk/job-1/metadata.json"])
	assert.Equal(t, "1\n", putter.objects["desk/job-1/result.srt"])
}

// TestUploadJobClassifiesAPIErrors verifies smithy codes map to error kinds.
func TestUploadJobClassifiesAPIErrors(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{code: "NoSuchBucket", want: ErrBucketNotFound},
		{code: "AccessDenied", want: ErrAccessDenied},
		{code: "SignatureDoesNotMatch", want: ErrInvalidCredentials},
		{code: "SlowDown", want: ErrThrottled},
		{code: "InternalError", want: ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			apiErr := &smithy.GenericAPIError{Code: tt.code, Message: "nope"}
			u := newUploader(&fakePutter{err: apiErr}, Config{Bucket: "archive"}, nil)
			rec, meta := sampleJob(t)

			out, err := u.UploadJob(context.Background(), rec, meta)
			require.ErrorIs(t, err, tt.want)
			require.ErrorAs(t, err, new(smithy.APIError))
			assert.Empty(t, out.Keys)
		})
	}
}

// TestUploadJobMissingFile verifies local read failures are I/O errors.
func TestUploadJobMissingFile(t *testing.T) {
	u := newUploader(&fakePutter{}, Config{Bucket: "archive"}, nil)
	rec, meta := sampleJob(t)
	rec.Results[0].FilePath = filepath.Join(t.TempDir(), "gone.srt")

	out, err := u.UploadJob(context.Background(), rec, meta)
	require.ErrorIs(t, err, domain.ErrIO)
	assert.Equal(t, []string{"job-1/metadata.json"}, out.Keys)
}

// TestConfigValidate verifies bucket and credential pairing rules.
func TestConfigValidate(t *testing.T) {
	require.ErrorIs(t, Config{}.Validate(), domain.ErrInvalidInput)
	require.ErrorIs(t, Config{Bucket: "b", AccessKeyID: "id"}.Validate(), domain.ErrInvalidInput)
	require.NoError(t, Config{Bucket: "b", AccessKeyID: "id", SecretAccessKey: "s"}.Validate())
}
