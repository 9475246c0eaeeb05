package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upload struct {
	bucket, key, body string
}

type fakeUploader struct {
	uploads []upload
	err     error
}

func (f *fakeUploader) Upload(in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return f.UploadWithContext(context.Background(), in, opts...)
}

func (f *fakeUploader) UploadWithContext(ctx aws.Context, in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	bs, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.uploads = append(f.uploads, upload{aws.StringValue(in.Bucket), aws.StringValue(in.Key), string(bs)})
	return &s3manager.UploadOutput{}, nil
}

func TestWrite(t *testing.T) {
	ctx := context.Background()
	u := &fakeUploader{}
	r, err := New(WithBucket("exports"), WithPrefix("runs/abc"), WithUploader(u))
	require.NoError(t, err)
	assert.Equal(t, "s3://exports/runs/abc", r.Location())

	require.NoError(t, r.Write(ctx, "items/part-00000.parquet", strings.NewReader("PAR1")))
	assert.Equal(t, []upload{{"exports", "runs/abc/items/part-00000.parquet", "PAR1"}}, u.uploads)

	assert.Error(t, r.Write(ctx, "../other/file", strings.NewReader("x")))
	assert.Error(t, r.Write(ctx, "/etc/passwd", strings.NewReader("x")))
	assert.Len(t, u.uploads, 1)

	u.err = errors.New("access denied")
	assert.ErrorIs(t, r.Write(ctx, "items/catalog.json", strings.NewReader("{}")), u.err)
}

func TestNew(t *testing.T) {
	_, err := New(WithRegion("us-east-1"))
	assert.Error(t, err)

	r, err := New(
		WithBucket("exports"),
		WithRegion("us-east-1"),
		WithEndpoint("http://localhost:9000"),
		WithForcePathStyle(true),
	)
	require.NoError(t, err)
	assert.NotNil(t, r.uploader)
}
