//go:build integration

package alerts

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/internal/domain"
	"custodia/pkg/testutil/containers"
)

func TestRealtimePublishesToRedis(t *testing.T) {
	client := containers.NewRedisClient(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, "custodia:alerts")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err, "subscription confirmation")

	detector := &fakeDetector{anomalies: []domain.Anomaly{
		{AnomalyType: domain.AnomalyBulkExport, SubjectID: "U4", Description: "export spike"},
	}}
	svc := New(&fakeReader{}, detector, WithRedis(client))

	alerts, err := svc.Realtime(ctx, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	msgCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(msgCtx)
	require.NoError(t, err)

	var published []domain.Alert
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &published))
	require.Len(t, published, 1)
	assert.Equal(t, domain.AlertTypeBulkExport, published[0].Type)
	assert.Equal(t, "U4", published[0].SubjectID)
}
