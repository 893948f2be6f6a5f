package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	id, ch := b.Subscribe(1)

	b.PublishNew(WorkflowCompleted, "u_p_1", "完成", map[string]string{"user_id": "u"})
	ev := <-ch
	require.NotNil(t, ev)
	assert.Equal(t, WorkflowCompleted, ev.Type)
	assert.Equal(t, "u_p_1", ev.ResourceID)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "u", ev.Metadata["user_id"])

	// Full buffers drop instead of blocking.
	b.PublishNew(WorkflowFailed, "a", "", nil)
	b.PublishNew(WorkflowFailed, "b", "", nil)
	assert.Equal(t, "a", (<-ch).ResourceID)

	b.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)
	b.Unsubscribe(id)
}
