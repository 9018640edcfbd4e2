package kafka

import (
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/radar-merge-service/internal/domain"
)

func TestMapMessageToRawEvent(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("job-1"),
		Value:     []byte(`{"id":"job-1","archives":["CASET_201706141400_Surveillance_vol.tar.gz"]}`),
		Topic:     "rb5-archive-jobs",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("ftp-ingest")},
		},
	}

	raw := mapMessageToRawEvent(msg)

	assert.Equal(t, []byte("job-1"), raw.Key)
	assert.JSONEq(t, `{"id":"job-1","archives":["CASET_201706141400_Surveillance_vol.tar.gz"]}`, string(raw.Value))
	assert.Equal(t, "rb5-archive-jobs", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "ftp-ingest", raw.Headers["source"])
	assert.Nil(t, raw.Commit)
}

func TestToMessage(t *testing.T) {
	now := time.Date(2017, time.June, 14, 14, 7, 30, 0, time.UTC)
	out, err := domain.SerializeProductEvent(domain.ProductEvent{
		RunID:       "run-1",
		JobID:       "job-1",
		Kind:        domain.KindVolume,
		Output:      "/srv/odim/CASET/2017-06-14/Surveillance_vol/CASET.2017-06-14_1400Z.Surveillance_vol.h5",
		Sweeps:      10,
		Quantities:  []string{"DBZH"},
		ProcessedAt: now,
	})
	require.NoError(t, err)

	msg := toMessage(out)

	assert.Equal(t, []byte("job-1"), msg.Key)
	assert.Contains(t, string(msg.Value), `"kind":"PVOL"`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "kind", msg.Headers[0].Key)
	assert.Equal(t, []byte("PVOL"), msg.Headers[0].Value)
	assert.Equal(t, "processed_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}

func TestToMessage_NoHeaders(t *testing.T) {
	msg := toMessage(domain.OutputEvent{Key: []byte("k"), Value: []byte("{}")})
	assert.Empty(t, msg.Headers)
}
