package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue_PushDrain(t *testing.T) {
	q := NewQueue[int]("test")
	q.Push(1)
	q.Push(2)
	assert.Equal(t, 2, q.Len())

	got := q.DrainAll()
	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.DrainAll())
}

func TestQueue_RequeuePutsBatchFirst(t *testing.T) {
	q := NewQueue[int]("test")
	batch := q.DrainAll()
	q.Push(3)
	q.Requeue(append(batch, 1, 2))

	assert.Equal(t, []int{1, 2, 3}, q.DrainAll())
}

func TestQueue_RedeliveryCeilingDropsBatch(t *testing.T) {
	q := NewQueue[int]("test")

	batch := []int{1, 2, 3}
	for i := 0; i < defaultMaxRedeliveries; i++ {
		q.Requeue(batch)
		batch = q.DrainAll()
		assert.Len(t, batch, 3)
	}
	// One more failed redelivery exceeds the ceiling and drops the batch.
	q.Requeue(batch)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_DeliveredResetsFailures(t *testing.T) {
	q := NewQueue[int]("test")
	for i := 0; i < defaultMaxRedeliveries; i++ {
		q.Requeue([]int{1})
		q.DrainAll()
	}
	q.Delivered()

	q.Requeue([]int{1})
	assert.Equal(t, 1, q.Len())
}
