package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/uiflow/internal/models"
)

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	client := NewDefaultHTTPClient(2 * time.Second)

	assert.NoError(t, Probe(context.Background(), client, srv.URL+"/"))

	addr := srv.URL
	srv.Close()
	err := Probe(context.Background(), client, addr)
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindEnvironment, models.KindOf(err))

	err = Probe(context.Background(), client, "not a url")
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindEnvironment, models.KindOf(err))
}
