package natsclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bridgeerrors "github.com/c360/omprogbridge/errors"
	"github.com/c360/omprogbridge/metric"
)

func TestNewClient(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	assert.NoError(t, err)

	assert.NotNil(t, client)
	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
	assert.Equal(t, 4096, client.MaxPending())
}

func TestNewClient_InvalidOption(t *testing.T) {
	_, err := NewClient("nats://localhost:4222", WithPublishAsyncMaxPending(0))
	require.Error(t, err)
	assert.True(t, bridgeerrors.IsInvalid(err))

	_, err = NewClient("nats://localhost:4222", WithTimeout(0))
	require.Error(t, err)
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	client, err := NewClient("nats://invalid:4222")
	assert.NoError(t, err)

	for i := 0; i < 4; i++ {
		client.recordFailure()
	}
	assert.NotEqual(t, StatusCircuitOpen, client.Status())

	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, int32(5), client.Failures())
}

func TestCircuitBreaker_CustomThreshold(t *testing.T) {
	client, err := NewClient("nats://invalid:4222", WithCircuitBreakerThreshold(2))
	require.NoError(t, err)

	client.recordFailure()
	assert.NotEqual(t, StatusCircuitOpen, client.Status())
	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	assert.NoError(t, err)

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, StatusCircuitOpen, client.Status())

	client.resetCircuit()
	assert.Equal(t, int32(0), client.Failures())
	assert.NotEqual(t, StatusCircuitOpen, client.Status())
}

func TestCircuitBreaker_ExponentialBackoff(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	assert.NoError(t, err)

	assert.Equal(t, time.Second, client.Backoff())

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 2*time.Second, client.Backoff())

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 4*time.Second, client.Backoff())

	for i := 0; i < 20; i++ {
		for j := 0; j < 5; j++ {
			client.recordFailure()
		}
	}
	assert.Equal(t, time.Minute, client.Backoff())
}

func TestConnect_CircuitOpenFailsFast(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}

	start := time.Now()
	err = client.Connect(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, err, bridgeerrors.ErrCircuitOpen)
	assert.True(t, bridgeerrors.IsTransient(err))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestConnect_CancelledContext(t *testing.T) {
	client, err := NewClient("nats://127.0.0.1:1", WithTimeout(2*time.Second))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = client.Connect(ctx)
	require.Error(t, err)
	assert.True(t, bridgeerrors.IsTransient(err))
	assert.Equal(t, int32(1), client.Failures())
	assert.Equal(t, StatusDisconnected, client.Status())
}

func TestConnect_AfterClose(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	require.NoError(t, client.Close(context.Background()))
	require.NoError(t, client.Close(context.Background()), "second close is a no-op")

	err = client.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, bridgeerrors.IsFatal(err))
}

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		name           string
		initialStatus  ConnectionStatus
		action         func(*Client)
		expectedStatus ConnectionStatus
	}{
		{
			name:          "disconnected to connecting",
			initialStatus: StatusDisconnected,
			action: func(m *Client) {
				m.setStatus(StatusConnecting)
			},
			expectedStatus: StatusConnecting,
		},
		{
			name:          "connected to reconnecting on disconnect",
			initialStatus: StatusConnected,
			action: func(m *Client) {
				m.handleDisconnect(nil, errors.New("io: read failed"))
			},
			expectedStatus: StatusReconnecting,
		},
		{
			name:          "closed handler disconnects",
			initialStatus: StatusConnected,
			action: func(m *Client) {
				m.handleClosed(nil)
			},
			expectedStatus: StatusDisconnected,
		},
		{
			name:          "any to circuit open",
			initialStatus: StatusConnected,
			action: func(m *Client) {
				for i := 0; i < 5; i++ {
					m.recordFailure()
				}
			},
			expectedStatus: StatusCircuitOpen,
		},
		{
			name:          "circuit test half-opens",
			initialStatus: StatusCircuitOpen,
			action: func(m *Client) {
				m.testCircuit()
			},
			expectedStatus: StatusDisconnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient("nats://localhost:4222")
			assert.NoError(t, err)
			client.setStatus(tt.initialStatus)

			tt.action(client)

			assert.Equal(t, tt.expectedStatus, client.Status())
		})
	}
}

func TestHandleDisconnect_Callbacks(t *testing.T) {
	disconnected := make(chan error, 1)
	health := make(chan bool, 1)

	client, err := NewClient("nats://localhost:4222",
		WithDisconnectCallback(func(err error) { disconnected <- err }),
		WithHealthChangeCallback(func(healthy bool) { health <- healthy }),
	)
	require.NoError(t, err)
	client.setStatus(StatusConnected)

	cause := errors.New("broken")
	client.handleDisconnect(nil, cause)

	select {
	case got := <-disconnected:
		assert.Equal(t, cause, got)
	case <-time.After(time.Second):
		t.Fatal("disconnect callback not called")
	}
	select {
	case healthy := <-health:
		assert.False(t, healthy)
	case <-time.After(time.Second):
		t.Fatal("health callback not called")
	}
}

func TestConcurrentSafety(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	assert.NoError(t, err)

	var wg sync.WaitGroup
	iterations := 100

	wg.Add(5)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			client.setStatus(StatusConnecting)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			client.setStatus(StatusConnected)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			_ = client.Status()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			client.recordFailure()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			client.resetCircuit()
		}
	}()

	wg.Wait()

	assert.Contains(t, []ConnectionStatus{
		StatusDisconnected,
		StatusConnecting,
		StatusConnected,
		StatusReconnecting,
		StatusCircuitOpen,
	}, client.Status())
}

func TestIsHealthy(t *testing.T) {
	tests := []struct {
		name     string
		status   ConnectionStatus
		expected bool
	}{
		{"connected is healthy", StatusConnected, true},
		{"disconnected is not healthy", StatusDisconnected, false},
		{"connecting is not healthy", StatusConnecting, false},
		{"reconnecting is not healthy", StatusReconnecting, false},
		{"circuit open is not healthy", StatusCircuitOpen, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient("nats://localhost:4222")
			assert.NoError(t, err)
			client.setStatus(tt.status)
			assert.Equal(t, tt.expected, client.IsHealthy())
		})
	}
}

func TestJetStream_NotConnected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	_, err = client.JetStream()
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = client.EnsureStream(context.Background(), jetstream.StreamConfig{Name: "LOGS"})
	assert.Equal(t, ErrNotConnected, err)

	_, err = client.RTT()
	assert.Equal(t, ErrNotConnected, err)
}

func TestConnectionOptions(t *testing.T) {
	base, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	withAuth, err := NewClient("nats://localhost:4222",
		WithCredentials("user", "secret"),
		WithToken("tok"),
		WithName("omprog-bridge"),
	)
	require.NoError(t, err)

	assert.Len(t, withAuth.ConnectionOptions(), len(base.ConnectionOptions())+3)
}

func TestGetStatus(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	assert.NoError(t, err)

	for i := 0; i < 3; i++ {
		client.recordFailure()
	}

	status := client.GetStatus()
	assert.Equal(t, int32(3), status.FailureCount)
	assert.Equal(t, StatusDisconnected, status.Status)
	assert.NotZero(t, status.LastFailureTime)
	assert.Zero(t, status.RTT)

	client.resetCircuit()
	assert.Equal(t, int32(0), client.GetStatus().FailureCount)
}

func TestConnectionMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	client, err := NewClient("nats://localhost:4222", WithMetrics(registry))
	require.NoError(t, err)

	client.setStatus(StatusConnected)
	assert.Equal(t, 1.0, gaugeValue(t, registry, "omprog_bridge_nats_connected"))

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 0.0, gaugeValue(t, registry, "omprog_bridge_nats_connected"))
	assert.Equal(t, 1.0, gaugeValue(t, registry, "omprog_bridge_nats_circuit_breaker"))

	_, err = NewClient("nats://localhost:4222", WithMetrics(registry))
	assert.Error(t, err, "metrics register once per registry")
}

func TestIsAlreadyExistsError(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{"already exists", errors.New("stream already exists"), true},
		{"stream name already in use", errors.New("nats: stream name already in use"), true},
		{"typed error", jetstream.ErrStreamNameAlreadyInUse, true},
		{"other error", errors.New("connection failed"), false},
		{"nil error", nil, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, isAlreadyExistsError(tc.err))
		})
	}
}

func gaugeValue(t *testing.T, registry *metric.MetricsRegistry, name string) float64 {
	t.Helper()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	var found *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == name {
			found = mf
			break
		}
	}
	require.NotNil(t, found, "metric %s not registered", name)
	require.NotEmpty(t, found.GetMetric())
	return found.GetMetric()[0].GetGauge().GetValue()
}
