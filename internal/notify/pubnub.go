package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	pubnub "github.com/pubnub/go/v7"

	"queue-system/config"
	"queue-system/models"
	"queue-system/utils"
)

// PubNub mirrors snapshots onto one PubNub channel per scope. Publishes run
// behind a circuit breaker so a provider outage degrades to dropped mirror
// frames instead of piling up goroutines.
type PubNub struct {
	client  *pubnub.PubNub
	breaker *utils.CircuitBreaker
}

func NewPubNub(cfg *config.Config) *PubNub {
	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId("queue-engine-" + uuid.NewString()))
	pnCfg.PublishKey = cfg.PubNubPublishKey
	pnCfg.SubscribeKey = cfg.PubNubSubscribeKey
	if cfg.PubNubSecretKey != "" {
		pnCfg.SecretKey = cfg.PubNubSecretKey
	}

	return &PubNub{
		client:  pubnub.NewPubNub(pnCfg),
		breaker: utils.NewCircuitBreaker("pubnub"),
	}
}

func (p *PubNub) PublishSnapshot(ctx context.Context, scope models.ServiceScope, snap models.Snapshot) error {
	_, err := p.breaker.Execute(ctx, func() (any, error) {
		_, _, err := p.client.Publish().
			Channel(ChannelFor(scope)).
			Message(snap).
			Execute()
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("pubnub publish for %s: %w", scope.ID(), err)
	}
	return nil
}

func (p *PubNub) Close() {
	p.client.UnsubscribeAll()
	p.client.Destroy()
}

// ChannelFor names the mirror channel for a scope. PubNub forbids colons in
// channel names, so the scope separator becomes a dot.
func ChannelFor(scope models.ServiceScope) string {
	return "queue." + strings.ReplaceAll(scope.ID(), "::", ".")
}
