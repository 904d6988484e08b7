package redisstore

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	testRedisClient    *redis.Client
	testRedisContainer testcontainers.Container
	skipIntegration    bool
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		req := testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		}
		testRedisContainer, containerErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	}()

	if containerErr != nil {
		fmt.Printf("Docker not available, integration tests will be skipped: %v\n", containerErr)
		skipIntegration = true
	} else {
		host, err := testRedisContainer.Host(ctx)
		if err != nil {
			skipIntegration = true
		} else {
			port, err := testRedisContainer.MappedPort(ctx, "6379")
			if err != nil {
				skipIntegration = true
			} else {
				testRedisClient = redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
				if err := testRedisClient.Ping(ctx).Err(); err != nil {
					skipIntegration = true
				}
			}
		}
	}

	code := m.Run()

	if testRedisClient != nil {
		_ = testRedisClient.Close()
	}
	if testRedisContainer != nil {
		_ = testRedisContainer.Terminate(ctx)
	}
	os.Exit(code)
}

func getRedis(t *testing.T) *redis.Client {
	t.Helper()
	if skipIntegration {
		t.Skip("Docker not available, skipping integration test")
	}
	require.NoError(t, testRedisClient.FlushDB(context.Background()).Err())
	return testRedisClient
}

func TestStore_PutBytesGetBytesRoundTrip(t *testing.T) {
	rdb := getRedis(t)
	s, err := New(Options{Client: rdb, KeyPrefix: "test:" + t.Name() + ":"})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.PutBytes(ctx, "reports/run-1", []byte(`{"status":"fail"}`)))
	got, err := s.GetBytes(ctx, "reports/run-1")
	require.NoError(t, err)
	assert.Equal(t, `{"status":"fail"}`, string(got))
}

func TestStore_PutBytesCompressesLargePayloads(t *testing.T) {
	rdb := getRedis(t)
	s, err := New(Options{Client: rdb, KeyPrefix: "test:" + t.Name() + ":"})
	require.NoError(t, err)
	ctx := context.Background()

	large := make([]byte, compressionThreshold*2)
	for i := range large {
		large[i] = byte('a' + i%26)
	}
	require.NoError(t, s.PutBytes(ctx, "big", large))
	got, err := s.GetBytes(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, large, got)
}

func TestStore_GetBytesMissingReturnsError(t *testing.T) {
	rdb := getRedis(t)
	s, err := New(Options{Client: rdb, KeyPrefix: "test:" + t.Name() + ":"})
	require.NoError(t, err)

	_, err = s.GetBytes(context.Background(), "nonexistent")
	assert.Error(t, err)
}

func TestEncodeDecode_RoundTripsBelowAndAboveThreshold(t *testing.T) {
	small := []byte("hello")
	enc, err := encode(small)
	require.NoError(t, err)
	dec, err := decode(enc)
	require.NoError(t, err)
	assert.Equal(t, small, dec)

	large := make([]byte, compressionThreshold+1)
	enc, err = encode(large)
	require.NoError(t, err)
	dec, err = decode(enc)
	require.NoError(t, err)
	assert.Equal(t, large, dec)
}
