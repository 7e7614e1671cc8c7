package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afterhours/nightlife-core/internal/domain/flexcard"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/pkg/retry"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	errs   []error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.inputs = append(f.inputs, in)
	b, _ := io.ReadAll(in.Body)
	f.bodies = append(f.bodies, b)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &s3.PutObjectOutput{}, nil
}

func testStore(p *fakePutter) *Store {
	s := newStore(p, Config{Bucket: "cards", PublicBaseURL: "https://cdn.example.com/", Prefix: "/prod/"}, nil)
	s.retrier = retry.New(retry.WithMaxAttempts(3), retry.WithInitialDelay(1), retry.WithJitter(0))
	return s
}

func TestConfig_Validate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{Bucket: "b", PublicBaseURL: "u", AccessKeyID: "id"}.Validate())
	assert.NoError(t, Config{Bucket: "b", PublicBaseURL: "u"}.Validate())
}

func TestExportCard_UploadsJSON(t *testing.T) {
	p := &fakePutter{}
	s := testStore(p)

	url, err := s.ExportCard(context.Background(), flexcard.PublicView{
		CardType:  flexcard.TypeStreak,
		Title:     "3-Week Streak",
		ShareCode: "3-week-streak-1a2b3c4d",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/prod/flex/3-week-streak-1a2b3c4d.json", url)

	require.Len(t, p.inputs, 1)
	in := p.inputs[0]
	assert.Equal(t, "cards", aws.ToString(in.Bucket))
	assert.Equal(t, "prod/flex/3-week-streak-1a2b3c4d.json", aws.ToString(in.Key))
	assert.Equal(t, "application/json", aws.ToString(in.ContentType))

	var got flexcard.PublicView
	require.NoError(t, json.Unmarshal(p.bodies[0], &got))
	assert.Equal(t, "3-Week Streak", got.Title)
}

func TestExportCard_RetriesTransientFailures(t *testing.T) {
	p := &fakePutter{errs: []error{errors.New("503"), nil}}
	s := testStore(p)

	_, err := s.ExportCard(context.Background(), flexcard.PublicView{ShareCode: "abc"})
	require.NoError(t, err)
	assert.Len(t, p.inputs, 2)
}

func TestExportCard_Failure(t *testing.T) {
	boom := errors.New("503")
	p := &fakePutter{errs: []error{boom, boom, boom}}
	s := testStore(p)

	_, err := s.ExportCard(context.Background(), flexcard.PublicView{ShareCode: "abc"})
	require.Error(t, err)
	assert.True(t, shared.IsExternalService(err))
	assert.Len(t, p.inputs, 3)

	_, err = s.ExportCard(context.Background(), flexcard.PublicView{})
	assert.Error(t, err)
}
