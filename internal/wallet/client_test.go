package wallet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestNewClientRequiresBridgeURL(t *testing.T) {
	_, err := NewClient(&ClientConfig{}, newTestLogger())
	require.Error(t, err)

	_, err = NewClient(nil, newTestLogger())
	require.Error(t, err)
}

func TestRequestPermissionsWaitsBeyondTimeout(t *testing.T) {
	// 桥接侧模拟用户在钱包中长时间思考后才授权
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/permissions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		time.Sleep(150 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"address":"tz1KqTpEZ7Yob7QbPE4Hy4Wo8fHG8LhKxZSx"}`))
	}))
	defer server.Close()

	// 配置超时远小于用户的响应时间
	client, err := NewClient(&ClientConfig{
		BridgeURL: server.URL,
		Timeout:   20 * time.Millisecond,
	}, newTestLogger())
	require.NoError(t, err)

	addr, err := client.RequestPermissions(context.Background(), "ghostnet")
	require.NoError(t, err)
	assert.Equal(t, "tz1KqTpEZ7Yob7QbPE4Hy4Wo8fHG8LhKxZSx", addr)
}

func TestActiveAddressHonorsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"address":"tz1KqTpEZ7Yob7QbPE4Hy4Wo8fHG8LhKxZSx"}`))
	}))
	defer server.Close()

	client, err := NewClient(&ClientConfig{
		BridgeURL: server.URL,
		Timeout:   20 * time.Millisecond,
	}, newTestLogger())
	require.NoError(t, err)

	// 非授权请求仍受配置超时约束
	_, err = client.ActiveAddress(context.Background())
	require.Error(t, err)
}

func TestRequestPermissionsDenied(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client, err := NewClient(&ClientConfig{BridgeURL: server.URL}, newTestLogger())
	require.NoError(t, err)

	_, err = client.RequestPermissions(context.Background(), "ghostnet")
	require.Error(t, err)
}
