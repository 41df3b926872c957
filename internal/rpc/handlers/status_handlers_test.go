package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/6529-Collections/netflow/pkg/netflow/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProgress struct {
	head, finalized       models.BlockRef
	hasHead, hasFinalized bool
	headErr, finalizedErr error
}

func (f fakeProgress) ObservedHead() (models.BlockRef, bool, error) {
	return f.head, f.hasHead, f.headErr
}

func (f fakeProgress) Finalized() (models.BlockRef, bool, error) {
	return f.finalized, f.hasFinalized, f.finalizedErr
}

func TestStatusGetHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)

	t.Run("no tracker", func(t *testing.T) {
		resp, err := StatusGetHandler(req, nil)
		require.NoError(t, err)
		assert.Equal(t, "OK", resp.Status)
		assert.Nil(t, resp.ObservedHead)
		assert.Nil(t, resp.FinalizedBlock)
	})

	t.Run("fresh tracker", func(t *testing.T) {
		resp, err := StatusGetHandler(req, fakeProgress{})
		require.NoError(t, err)
		assert.Nil(t, resp.ObservedHead)
		assert.Nil(t, resp.FinalizedBlock)
	})

	t.Run("progress reported", func(t *testing.T) {
		resp, err := StatusGetHandler(req, fakeProgress{
			head:         models.BlockRef{Number: 13},
			hasHead:      true,
			finalized:    models.BlockRef{Number: 11},
			hasFinalized: true,
		})
		require.NoError(t, err)
		require.NotNil(t, resp.ObservedHead)
		require.NotNil(t, resp.FinalizedBlock)
		assert.Equal(t, uint64(13), *resp.ObservedHead)
		assert.Equal(t, uint64(11), *resp.FinalizedBlock)
	})

	t.Run("tracker error", func(t *testing.T) {
		_, err := StatusGetHandler(req, fakeProgress{finalizedErr: errors.New("badger closed")})
		assert.EqualError(t, err, "badger closed")
	})
}
