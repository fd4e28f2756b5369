package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itskum47/monforge/monapi/collect"
)

func TestClient_Collects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/collects", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("nid"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"dat":[{"id":1,"nid":7,"name":"nginx","collect_type":"proc","step":10,"proc":{"collect_method":"name","target":"nginx"}}],"err":""}`))
	}))
	defer srv.Close()

	c := NewClient(&Config{ServerURL: srv.URL, Token: "tok"})
	list, err := c.Collects(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, collect.TypeProc, list[0].CollectType)
	require.NotNil(t, list[0].Proc)
	assert.Equal(t, "nginx", list[0].Proc.Target)
}

func TestClient_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"dat":null,"err":"unauthorized"}`))
	}))
	defer srv.Close()

	c := NewClient(&Config{ServerURL: srv.URL})
	_, err := c.Collects(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "unauthorized")
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(&Config{ServerURL: url})
	_, err := c.Collects(context.Background(), 1)
	assert.ErrorContains(t, err, "request failed")
}
