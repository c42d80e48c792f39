package orchestrator_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/config"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(sink string) *config.Config {
	return &config.Config{
		HTTPPort:            "0",
		GRPCPort:            "0",
		StoreBackend:        "memory",
		EventSink:           sink,
		SamplingInterval:    time.Second,
		IngestBudget:        500 * time.Millisecond,
		FinishedCacheSize:   16,
		HealthProbeInterval: time.Second,
		LogLevel:            "info",
		SystemName:          "SecureProctor test",
	}
}

func TestOrchestrator_StartWithoutBus(t *testing.T) {
	for _, sink := range []string{"none", "nats"} {
		t.Run(sink, func(t *testing.T) {
			o := orchestrator.NewOrchestrator(testConfig(sink), nil)
			require.NoError(t, o.Start())
			defer o.Stop()

			require.NotNil(t, o.Manager())

			req := httptest.NewRequest(http.MethodPost, "/api/candidates",
				strings.NewReader(`{"name":"Jane Doe","email":"jane@example.com","position":"SRE"}`))
			rec := httptest.NewRecorder()
			o.Handler().ServeHTTP(rec, req)
			assert.Equal(t, http.StatusCreated, rec.Code)
		})
	}
}

func TestOrchestrator_RunStopsOnCancel(t *testing.T) {
	o := orchestrator.NewOrchestrator(testConfig("none"), nil)
	require.NoError(t, o.Start())
	defer o.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- o.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestOrchestrator_StartFailsOnStore(t *testing.T) {
	cfg := testConfig("none")
	cfg.StoreBackend = "cassandra"

	o := orchestrator.NewOrchestrator(cfg, nil)
	assert.Error(t, o.Start())
}
