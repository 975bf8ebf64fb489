package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonet-social/search-service/internal/model"
)

func TestDecodeNoteCreatedBuildsCreateTask(t *testing.T) {
	payload := []byte(`{"id":"n1","text":"hello","user_id":"u1"}`)
	task, err := Decode(TopicNoteCreated, payload)
	require.NoError(t, err)
	assert.Equal(t, model.OpCreate, task.Op)
	assert.Equal(t, model.DocumentNote, task.DocType)
	assert.Equal(t, "n1", task.DocID())
}

func TestDecodeNoteUpdatedBuildsUpdateTask(t *testing.T) {
	payload := []byte(`{"id":"n2","text":"edited"}`)
	task, err := Decode(TopicNoteUpdated, payload)
	require.NoError(t, err)
	assert.Equal(t, model.OpUpdate, task.Op)
}

func TestDecodeNoteDeletedBuildsDeleteTask(t *testing.T) {
	payload := []byte(`{"id":"n3"}`)
	task, err := Decode(TopicNoteDeleted, payload)
	require.NoError(t, err)
	assert.Equal(t, model.OpDelete, task.Op)
	assert.Equal(t, "n3", task.DocID())
}

func TestDecodeNoteMetricsPopulatesCounters(t *testing.T) {
	payload := []byte(`{"id":"n4","likes":10,"reposts":2,"replies":1,"views":500}`)
	task, err := Decode(TopicNoteMetrics, payload)
	require.NoError(t, err)
	assert.Equal(t, model.OpUpdateMetrics, task.Op)
	assert.Equal(t, int64(10), task.Note.Metrics.Likes)
	assert.Equal(t, int64(500), task.Note.Metrics.Views)
}

func TestDecodeUserCreatedBuildsCreateTask(t *testing.T) {
	payload := []byte(`{"id":"u1","username":"alice"}`)
	task, err := Decode(TopicUserCreated, payload)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentUser, task.DocType)
	assert.Equal(t, model.OpCreate, task.Op)
}

func TestDecodeUserMetricsPopulatesCounters(t *testing.T) {
	payload := []byte(`{"id":"u2","followers":900,"following":50,"notes_count":120}`)
	task, err := Decode(TopicUserMetrics, payload)
	require.NoError(t, err)
	assert.Equal(t, int64(900), task.User.FollowersCount)
	assert.Equal(t, int64(120), task.User.NotesCount)
}

func TestDecodeUnknownTopicErrors(t *testing.T) {
	_, err := Decode("something.else", []byte(`{}`))
	assert.Error(t, err)
}

func TestDecodeMalformedPayloadErrors(t *testing.T) {
	_, err := Decode(TopicNoteCreated, []byte(`not json`))
	assert.Error(t, err)
}

type fakeSink struct {
	accepted []*model.IndexingTask
	reject   bool
}

func (f *fakeSink) Enqueue(task *model.IndexingTask) bool {
	if f.reject {
		return false
	}
	f.accepted = append(f.accepted, task)
	return true
}

func TestSinkForRoutesNoteAndUserTopicsIndependently(t *testing.T) {
	notes := &fakeSink{}
	users := &fakeSink{}
	s := &Subscriber{notesSink: notes, usersSink: users}

	assert.Same(t, Sink(notes), s.sinkFor(TopicNoteCreated))
	assert.Same(t, Sink(users), s.sinkFor(TopicUserDeleted))
	assert.Nil(t, s.sinkFor("unknown"))
}
