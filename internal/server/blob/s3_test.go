package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte

	puts      []*s3.PutObjectInput
	parts     []int
	partSizes []int
	completes []*s3.CompleteMultipartUploadInput
	aborts    int
	deletes   []*s3.DeleteObjectsInput

	partErr   []error
	deleteOut *s3.DeleteObjectsOutput
	deleteErr error
	headErr   error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	key := aws.ToString(in.Key)
	if _, ok := f.objects[key]; ok && aws.ToString(in.IfNoneMatch) == "*" {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	}
	b, _ := io.ReadAll(in.Body)
	f.objects[key] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if _, ok := f.objects[aws.ToString(in.Key)]; ok {
		return &s3.HeadObjectOutput{}, nil
	}
	return nil, &types.NotFound{}
}

func (f *fakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.deletes = append(f.deletes, in)
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	if f.deleteOut != nil {
		return f.deleteOut, nil
	}
	for _, o := range in.Delete.Objects {
		delete(f.objects, aws.ToString(o.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) CreateMultipartUpload(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String("mpu-1")}, nil
}

func (f *fakeS3) UploadPart(_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.partErr) > 0 {
		err := f.partErr[0]
		f.partErr = f.partErr[1:]
		if err != nil {
			return nil, err
		}
	}
	b, _ := io.ReadAll(in.Body)
	f.parts = append(f.parts, int(aws.ToInt32(in.PartNumber)))
	f.partSizes = append(f.partSizes, len(b))
	return &s3.UploadPartOutput{ETag: aws.String("etag")}, nil
}

func (f *fakeS3) CompleteMultipartUpload(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes = append(f.completes, in)
	f.objects[aws.ToString(in.Key)] = []byte("assembled")
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.aborts++
	return &s3.AbortMultipartUploadOutput{}, nil
}

type fakePresigner struct {
	in      *s3.GetObjectInput
	expires time.Duration
	err     error
}

func (p *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if p.err != nil {
		return nil, p.err
	}
	var o s3.PresignOptions
	for _, fn := range optFns {
		fn(&o)
	}
	p.in, p.expires = in, o.Expires
	return &v4.PresignedHTTPRequest{URL: "https://bucket.example/" + aws.ToString(in.Key) + "?X-Amz-Signature=abc"}, nil
}

func newS3(t *testing.T) (*S3Store, *fakeS3, *fakePresigner) {
	t.Helper()
	api, p := newFakeS3(), &fakePresigner{}
	return &S3Store{api: api, presign: p, bucket: "attachments"}, api, p
}

func TestS3Store_PutConditional(t *testing.T) {
	s, api, _ := newS3(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "u1/1_a.pdf", []byte("x"), false))
	assert.Equal(t, "*", aws.ToString(api.puts[0].IfNoneMatch))
	assert.Equal(t, "attachments", aws.ToString(api.puts[0].Bucket))

	err := s.Put(ctx, "u1/1_a.pdf", []byte("y"), false)
	assert.ErrorIs(t, err, common.ErrAlreadyExists)

	require.NoError(t, s.Put(ctx, "u1/1_a.pdf", []byte("z"), true))
	assert.Nil(t, api.puts[2].IfNoneMatch)
	assert.Equal(t, []byte("z"), api.objects["u1/1_a.pdf"])
}

func TestS3Store_ChunkSessionBuffersToMinPartSize(t *testing.T) {
	s, api, _ := newS3(t)
	ctx := context.Background()
	chunk := bytes.Repeat([]byte{1}, 2*common.MiB)

	w, err := s.BeginChunked(ctx, "u1/big.zip", 7*common.MiB)
	require.NoError(t, err)

	require.NoError(t, w.WriteChunk(ctx, 0, chunk))
	require.NoError(t, w.WriteChunk(ctx, 1, chunk))
	assert.Empty(t, api.parts, "4 MiB is below the part minimum")
	require.NoError(t, w.WriteChunk(ctx, 2, chunk))
	assert.Equal(t, []int{1}, api.parts)
	assert.Equal(t, []int{6 * common.MiB}, api.partSizes)

	require.NoError(t, w.WriteChunk(ctx, 3, chunk[:common.MiB]))
	require.NoError(t, w.Complete(ctx))

	assert.Equal(t, []int{1, 2}, api.parts)
	assert.Equal(t, []int{6 * common.MiB, common.MiB}, api.partSizes)
	require.Len(t, api.completes, 1)
	assert.Equal(t, "*", aws.ToString(api.completes[0].IfNoneMatch))
	assert.Len(t, api.completes[0].MultipartUpload.Parts, 2)
}

func TestS3Store_FailedPartCanBeResent(t *testing.T) {
	s, api, _ := newS3(t)
	ctx := context.Background()
	chunk := bytes.Repeat([]byte{1}, 3*common.MiB)
	api.partErr = []error{errors.New("slow down")}

	w, err := s.BeginChunked(ctx, "k", 6*common.MiB)
	require.NoError(t, err)
	require.NoError(t, w.WriteChunk(ctx, 0, chunk))
	require.Error(t, w.WriteChunk(ctx, 1, chunk))
	require.NoError(t, w.WriteChunk(ctx, 1, chunk))
	require.NoError(t, w.WriteChunk(ctx, 1, chunk), "acknowledged repeat")
	require.NoError(t, w.Complete(ctx))

	assert.Equal(t, []int{6 * common.MiB}, api.partSizes, "no duplicated bytes after the retry")
}

func TestS3Store_ConcurrentRepeatUploadsOnePart(t *testing.T) {
	s, api, _ := newS3(t)
	ctx := context.Background()
	chunk := bytes.Repeat([]byte{7}, MinPartSize)

	w, err := s.BeginChunked(ctx, "k", int64(MinPartSize))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = w.WriteChunk(ctx, 0, chunk)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	require.NoError(t, w.Complete(ctx))
	assert.Equal(t, []int{1}, api.parts)
	assert.Equal(t, []int{MinPartSize}, api.partSizes)
	require.Len(t, api.completes, 1)
	assert.Len(t, api.completes[0].MultipartUpload.Parts, 1)
}

func TestS3Store_BeginChunkedRefusesExistingKey(t *testing.T) {
	s, api, _ := newS3(t)
	api.objects["k"] = []byte("old")

	_, err := s.BeginChunked(context.Background(), "k", 1)
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
}

func TestS3Store_Abort(t *testing.T) {
	s, api, _ := newS3(t)
	ctx := context.Background()

	w, err := s.BeginChunked(ctx, "k", 1)
	require.NoError(t, err)
	require.NoError(t, w.Abort(ctx))
	assert.Equal(t, 1, api.aborts)
	assert.ErrorIs(t, w.WriteChunk(ctx, 0, []byte("x")), ErrSessionClosed)
}

func TestS3Store_Remove(t *testing.T) {
	s, api, _ := newS3(t)
	ctx := context.Background()
	api.objects["a"], api.objects["b"] = []byte("a"), []byte("b")

	require.NoError(t, s.Remove(ctx))
	assert.Empty(t, api.deletes)

	require.NoError(t, s.Remove(ctx, "a", "b"))
	assert.Empty(t, api.objects)
	assert.True(t, aws.ToBool(api.deletes[0].Delete.Quiet))

	api.deleteOut = &s3.DeleteObjectsOutput{Errors: []types.Error{{Key: aws.String("c"), Code: aws.String("AccessDenied"), Message: aws.String("denied")}}}
	err := s.Remove(ctx, "c", "d")
	var re *RemoveError
	require.ErrorAs(t, err, &re)
	assert.True(t, re.FailedKey("c"))
	assert.False(t, re.FailedKey("d"))
	assert.Contains(t, re.Error(), "c: AccessDenied: denied")

	api.deleteOut, api.deleteErr = nil, errors.New("network")
	err = s.Remove(ctx, "e")
	require.ErrorAs(t, err, &re)
	assert.True(t, re.FailedKey("e"))
}

func TestS3Store_Exists(t *testing.T) {
	s, api, _ := newS3(t)
	api.objects["k"] = nil

	ok, err := s.Exists(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	api.headErr = errors.New("forbidden")
	_, err = s.Exists(context.Background(), "k")
	assert.Error(t, err)
}

func TestS3Store_SignedURL(t *testing.T) {
	s, _, p := newS3(t)

	u, err := s.SignedURL(context.Background(), "u1/r1/1_a.pdf", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, u, "u1/r1/1_a.pdf")
	assert.Equal(t, time.Hour, p.expires)
	assert.Equal(t, "attachments", aws.ToString(p.in.Bucket))

	p.err = errors.New("no creds")
	_, err = s.SignedURL(context.Background(), "k", time.Hour)
	assert.Error(t, err)
}

func TestNewS3Store_UsesSeams(t *testing.T) {
	origLoad, origClient := loadDefaultAWSConfig, newS3ClientFromConfig
	t.Cleanup(func() { loadDefaultAWSConfig, newS3ClientFromConfig = origLoad, origClient })

	var opts s3.Options
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
		var lo config.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "ap-northeast-2", lo.Region)
		return aws.Config{Region: lo.Region}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return s3.NewFromConfig(cfg, optFns...)
	}

	st, err := NewS3Store(context.Background(), S3Config{
		Region: "ap-northeast-2", Endpoint: "http://minio:9000", AccessKey: "k", SecretKey: "s",
		Bucket: "attachments", UsePathStyle: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "attachments", st.bucket)
	assert.Equal(t, "http://minio:9000", aws.ToString(opts.BaseEndpoint))
	assert.True(t, opts.UsePathStyle)

	loadDefaultAWSConfig = func(context.Context, ...func(*config.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no profile")
	}
	_, err = NewS3Store(context.Background(), S3Config{})
	assert.ErrorContains(t, err, "failed to load AWS config")
}
