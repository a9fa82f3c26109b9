package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/courier"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/webhook"
)

// CreateWebhook persists a new webhook.
func (s *Store) CreateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	if _, err := s.mdb.NewInsert(toWebhookModel(wh)).Exec(ctx); err != nil {
		return fmt.Errorf("courier/mongo: create webhook: %w", err)
	}
	return nil
}

// GetWebhook returns a webhook by ID.
func (s *Store) GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error) {
	var m webhookModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": whID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, courier.ErrWebhookNotFound
		}
		return nil, fmt.Errorf("courier/mongo: get webhook: %w", err)
	}

	return fromWebhookModel(&m)
}

// UpdateWebhook replaces a stored webhook.
func (s *Store) UpdateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	m := toWebhookModel(wh)

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/mongo: update webhook: %w", err)
	}
	if res.MatchedCount() == 0 {
		return courier.ErrWebhookNotFound
	}
	return nil
}

// DeleteWebhook removes the webhook, then every delivery that references it.
// MongoDB offers no cross-collection atomicity without a replica-set
// transaction; a delivery inserted between the two steps is left orphaned and
// its attempts are released by the sweeper.
func (s *Store) DeleteWebhook(ctx context.Context, whID id.ID) error {
	res, err := s.mdb.NewDelete((*webhookModel)(nil)).
		Filter(bson.M{"_id": whID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/mongo: delete webhook: %w", err)
	}
	if res.DeletedCount() == 0 {
		return courier.ErrWebhookNotFound
	}

	if _, err := s.mdb.NewDelete((*deliveryModel)(nil)).
		Many().
		Filter(bson.M{"webhook_id": whID.String()}).
		Exec(ctx); err != nil {
		return fmt.Errorf("courier/mongo: delete deliveries of %s: %w", whID, err)
	}
	return nil
}

// ListWebhooks returns webhooks, newest first.
func (s *Store) ListWebhooks(ctx context.Context, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	var models []webhookModel

	filter := bson.M{}
	if opts.Active != nil {
		filter["is_active"] = *opts.Active
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("courier/mongo: list webhooks: %w", err)
	}
	return fromWebhookModels(models)
}

// ListForEvent returns active webhooks subscribed to eventType. A scalar
// match on an array field tests membership.
func (s *Store) ListForEvent(ctx context.Context, eventType string) ([]*webhook.Webhook, error) {
	var models []webhookModel

	if err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"is_active": true,
			"events":    eventType,
		}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("courier/mongo: list for event: %w", err)
	}
	return fromWebhookModels(models)
}

func fromWebhookModels(models []webhookModel) ([]*webhook.Webhook, error) {
	result := make([]*webhook.Webhook, 0, len(models))
	for i := range models {
		wh, err := fromWebhookModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, wh)
	}
	return result, nil
}
