package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"

	"github.com/izavyalov-dev/diffbase/internal/observability"
	"github.com/izavyalov-dev/diffbase/protocol"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, params)
	f.bodies = append(f.bodies, body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestPublishWritesRecord(t *testing.T) {
	putter := &fakePutter{}
	publisher := newS3Publisher(putter, S3Config{Bucket: "baselines", Prefix: "/ci/web/"}, observability.Discard())
	base := protocol.NewPublicURL("https://example.com/golden.json")

	uri, err := publisher.Publish(context.Background(), "golden", base)
	require.NoError(t, err)
	require.Equal(t, "s3://baselines/ci/web/diff-bases/golden.json", uri)

	require.Len(t, putter.inputs, 1)
	require.Equal(t, "baselines", *putter.inputs[0].Bucket)
	require.Equal(t, "ci/web/diff-bases/golden.json", *putter.inputs[0].Key)
	require.Equal(t, "application/json", *putter.inputs[0].ContentType)

	var decoded protocol.DiffBase
	require.NoError(t, json.Unmarshal(putter.bodies[0], &decoded))
	require.Equal(t, base, decoded)
}

func TestRecordWithoutPrefix(t *testing.T) {
	putter := &fakePutter{}
	publisher := newS3Publisher(putter, S3Config{Bucket: "baselines"}, observability.Discard())

	require.NoError(t, publisher.Record(context.Background(), "master", protocol.NewPublicURL("https://x")))
	require.Equal(t, "diff-bases/master.json", *putter.inputs[0].Key)
}

func TestPublishPropagatesError(t *testing.T) {
	putter := &fakePutter{err: errors.New("access denied")}
	publisher := newS3Publisher(putter, S3Config{Bucket: "baselines"}, observability.Discard())

	_, err := publisher.Publish(context.Background(), "ref", protocol.NewPublicURL("https://x"))
	require.ErrorIs(t, err, putter.err)
}

func TestNewS3PublisherRequiresBucket(t *testing.T) {
	_, err := NewS3Publisher(context.Background(), S3Config{}, nil)
	require.Error(t, err)
}
