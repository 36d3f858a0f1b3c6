package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queue-system/config"
	"queue-system/models"
)

func TestNewSelectsNoopWithoutKeys(t *testing.T) {
	cfg := &config.Config{}

	n := New(cfg)

	assert.IsType(t, Noop{}, n)
}

func TestNewSelectsPubNubWithKeys(t *testing.T) {
	cfg := &config.Config{
		PubNubPublishKey:   "pub-c-demo",
		PubNubSubscribeKey: "sub-c-demo",
	}

	n := New(cfg)

	assert.IsType(t, &PubNub{}, n)
	n.Close()
}

func TestNoopPublishSnapshot(t *testing.T) {
	scope, err := models.NewServiceScope("clinic_a", "desk1")
	require.NoError(t, err)

	err = Noop{}.PublishSnapshot(context.Background(), scope, models.Snapshot{ScopeID: scope.ID()})

	assert.NoError(t, err)
}

func TestChannelFor(t *testing.T) {
	tenantWide, err := models.NewServiceScope("clinic_a", "")
	require.NoError(t, err)
	perDesk, err := models.NewServiceScope("clinic_a", "desk1")
	require.NoError(t, err)

	assert.Equal(t, "queue.clinic_a", ChannelFor(tenantWide))
	assert.Equal(t, "queue.clinic_a.desk1", ChannelFor(perDesk))
}
