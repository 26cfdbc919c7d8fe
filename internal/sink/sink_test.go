package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/scrapenet/internal/model"
)

func sampleReport(id string, platform model.Platform, block uint64, at time.Time) *model.RoundReport {
	m := model.NewScoringMetrics(2)
	m.NormalizedScores[0] = 1
	return &model.RoundReport{
		RoundID:   id,
		Platform:  platform,
		Profile:   "oracle",
		SearchKey: "tao",
		UIDs:      []int{3, 8},
		Block:     block,
		CreatedAt: at,
		Metrics:   m,
	}
}

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestObjectKey(t *testing.T) {
	r := sampleReport("abc", model.PlatformReddit, 1234, baseTime)
	assert.Equal(t, "reddit/000001234_abc.json", ObjectKey(r))
}

func TestJSONDir_WritesRecordWithResponses(t *testing.T) {
	dir := t.TempDir()
	s := NewJSONDir(dir)
	r := sampleReport("r1", model.PlatformTwitter, 7, baseTime)

	err := s.Store(context.Background(), r, []json.RawMessage{json.RawMessage(`[{"id":"1"}]`), nil, json.RawMessage(`{broken`)})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "twitter", "000000007_r1.json"))
	require.NoError(t, err)

	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "r1", rec.Report.RoundID)
	require.Len(t, rec.Responses, 3)
	assert.JSONEq(t, `[{"id":"1"}]`, string(rec.Responses[0]))
	assert.Equal(t, "null", string(rec.Responses[1]))
	assert.Equal(t, "null", string(rec.Responses[2]), "Expected invalid JSON replaced")
}

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, b)
	return &s3.PutObjectOutput{}, nil
}

func TestS3_UploadsUnderScoringKey(t *testing.T) {
	fp := &fakePutter{}
	s := &S3{client: fp, bucket: "scoring"}
	r := sampleReport("r2", model.PlatformReddit, 42, baseTime)

	require.NoError(t, s.Store(context.Background(), r, []json.RawMessage{json.RawMessage(`[]`)}))
	require.Len(t, fp.inputs, 1)
	assert.Equal(t, "scoring", *fp.inputs[0].Bucket)
	assert.Equal(t, "reddit/000000042_r2.json", *fp.inputs[0].Key)

	var rec Record
	require.NoError(t, json.Unmarshal(fp.bodies[0], &rec))
	assert.Nil(t, rec.Responses, "Expected raw responses kept out of the bucket")

	fp.err = errors.New("access denied")
	assert.Error(t, s.Store(context.Background(), r, nil))
}

func TestKafka_PublishesRecord(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var rec Record
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		if rec.Report.RoundID != "r3" {
			return errors.New("unexpected round id")
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	k := NewKafkaWithProducer(producer, "scoring-rounds")
	r := sampleReport("r3", model.PlatformTwitter, 1, baseTime)

	assert.NoError(t, k.Store(context.Background(), r, nil))
	assert.Error(t, k.Store(context.Background(), r, nil))
	assert.NoError(t, k.Close())
}

func TestNewKafka_RequiresBrokers(t *testing.T) {
	_, err := NewKafka(model.KafkaSinkConfig{Topic: "x"})
	assert.Error(t, err)
}

func TestSQLite_StoreRecentGet(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "rounds.db"))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.Store(ctx, sampleReport("old", model.PlatformReddit, 10, baseTime), nil))
	require.NoError(t, db.Store(ctx, sampleReport("new", model.PlatformReddit, 20, baseTime.Add(time.Minute)), nil))
	require.NoError(t, db.Store(ctx, sampleReport("tw", model.PlatformTwitter, 30, baseTime.Add(2*time.Minute)), nil))

	all, err := db.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "tw", all[0].RoundID)

	reddit, err := db.Recent(ctx, model.PlatformReddit, 1)
	require.NoError(t, err)
	require.Len(t, reddit, 1)
	assert.Equal(t, "new", reddit[0].RoundID)

	got, err := db.Get(ctx, "old")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(10), got.Block)
	assert.Equal(t, 1.0, got.Metrics.NormalizedScores[0])

	missing, err := db.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// Re-storing a round replaces it
	require.NoError(t, db.Store(ctx, sampleReport("old", model.PlatformReddit, 11, baseTime), nil))
	got, _ = db.Get(ctx, "old")
	assert.Equal(t, uint64(11), got.Block)
}

type stubSink struct {
	stored int
	err    error
	closed bool
}

func (s *stubSink) Store(ctx context.Context, r *model.RoundReport, responses []json.RawMessage) error {
	s.stored++
	return s.err
}

func (s *stubSink) Close() error {
	s.closed = true
	return nil
}

func TestMulti_ContinuesPastFailures(t *testing.T) {
	bad := &stubSink{err: errors.New("disk full")}
	good := &stubSink{}
	m := NewMulti()
	m.Add("bad", bad)
	m.Add("good", good)

	err := m.Store(context.Background(), sampleReport("r", model.PlatformReddit, 1, baseTime), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Equal(t, 1, good.stored)

	require.NoError(t, m.Close())
	assert.True(t, bad.closed && good.closed)
}

func TestNew_OpensEnabledSinks(t *testing.T) {
	dir := t.TempDir()
	m, err := New(context.Background(), model.SinksConfig{
		JSONDir: model.JSONDirSinkConfig{Enabled: true, Dir: dir},
		SQLite:  model.SQLiteSinkConfig{Enabled: true, Path: filepath.Join(dir, "rounds.db")},
	})
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, 2, m.Len())
	assert.NotNil(t, m.Archive())

	_, err = New(context.Background(), model.SinksConfig{Kafka: model.KafkaSinkConfig{Enabled: true}})
	assert.Error(t, err)
}
