package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

type capture struct {
	mu     sync.Mutex
	bodies []string
	method string
}

func (c *capture) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.bodies = append(c.bodies, string(body))
	c.method = r.Method
	c.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func records() []*models.Record {
	a := models.NewRecord(2)
	a.SetData("id", 1)
	a.SetData("name", "a")
	b := models.NewRecord(2)
	b.SetData("id", 2)
	b.SetData("name", "b")
	return []*models.Record{a, b}
}

func TestWriteBatch(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(c.handler))
	defer srv.Close()

	err := NewWebhookDestination().Write(context.Background(), models.DataSourceConfig{ConnectionString: srv.URL}, records())
	require.NoError(t, err)
	require.Len(t, c.bodies, 1)
	assert.Equal(t, `[{"id":1,"name":"a"},{"id":2,"name":"b"}]`, c.bodies[0])
	assert.Equal(t, http.MethodPost, c.method)
}

func TestWritePerRecord(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(c.handler))
	defer srv.Close()

	cfg := models.DataSourceConfig{
		ConnectionString: srv.URL,
		Parameters:       map[string]string{"mode": "record", "method": "put"},
	}
	require.NoError(t, NewWebhookDestination().Write(context.Background(), cfg, records()))
	assert.Equal(t, []string{`{"id":1,"name":"a"}`, `{"id":2,"name":"b"}`}, c.bodies)
	assert.Equal(t, http.MethodPut, c.method)
}

func TestWriteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rejected", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	err := NewWebhookDestination().Write(context.Background(), models.DataSourceConfig{ConnectionString: srv.URL}, records())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}
