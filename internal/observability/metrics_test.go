// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/warden/internal/auth"
)

var _ auth.Recorder = (*Metrics)(nil)

func TestMetrics_RecordOperation(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordOperation("login", "", 10*time.Millisecond)
	m.RecordOperation("login", auth.CodeAlreadyActive, time.Millisecond)
	m.RecordOperation("login", auth.CodeAlreadyActive, time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionOperations.WithLabelValues("login", OutcomeOK)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SessionOperations.WithLabelValues("login", auth.CodeAlreadyActive)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SessionDuration))
}

func TestMetrics_RecordPublishFailure(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordPublishFailure(auth.OpLogout)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.PublishFailures.WithLabelValues("logout")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.PublishFailures.WithLabelValues("login")))
}

func TestNewMetrics_RegistersOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}

func TestNewMetrics_BroadcastCountersArePerInstance(t *testing.T) {
	first := NewMetrics(prometheus.NewRegistry())
	second := NewMetrics(prometheus.NewRegistry())
	require.NotNil(t, first.Broadcast)

	first.Broadcast.Published.WithLabelValues("login").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(first.Broadcast.Published.WithLabelValues("login")))
	assert.Equal(t, float64(0), testutil.ToFloat64(second.Broadcast.Published.WithLabelValues("login")))
}
