package service

import (
	"testing"

	"contestjudge/internal/standings/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDropsStaleUpdates(t *testing.T) {
	h := newHub()
	ch, cancel := h.subscribe("c1", model.Update{ContestID: "c1", Version: 5})
	defer cancel()

	h.broadcast(model.Update{ContestID: "c1", Version: 4})
	h.broadcast(model.Update{ContestID: "c1", Version: 7})
	h.broadcast(model.Update{ContestID: "c1", Version: 6})
	h.broadcast(model.Update{ContestID: "c1", Version: 7})

	var versions []uint64
	for len(ch) > 0 {
		versions = append(versions, (<-ch).Version)
	}
	assert.Equal(t, []uint64{5, 7}, versions)
}

func TestHubOtherContestNotNotified(t *testing.T) {
	h := newHub()
	ch, cancel := h.subscribe("c1", model.Update{ContestID: "c1"})
	defer cancel()
	<-ch

	h.broadcast(model.Update{ContestID: "c2", Version: 1})
	require.Equal(t, 0, len(ch))
	assert.Equal(t, 0, h.count("c2"))
	assert.Equal(t, 1, h.count("c1"))
}
