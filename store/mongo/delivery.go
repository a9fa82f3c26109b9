package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
)

// CreateDelivery persists a new delivery. The owning webhook must exist.
func (s *Store) CreateDelivery(ctx context.Context, d *delivery.Delivery) error {
	n, err := s.mdb.NewFind((*webhookModel)(nil)).
		Filter(bson.M{"_id": d.WebhookID.String()}).
		Count(ctx)
	if err != nil {
		return fmt.Errorf("courier/mongo: create delivery: %w", err)
	}
	if n == 0 {
		return courier.ErrWebhookNotFound
	}

	m, err := toDeliveryModel(d)
	if err != nil {
		return err
	}
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("courier/mongo: create delivery: %w", err)
	}
	return nil
}

// GetDelivery returns a delivery by ID.
func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	var m deliveryModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": delID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, courier.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("courier/mongo: get delivery: %w", err)
	}

	return fromDeliveryModel(&m)
}

// ListByWebhook returns a webhook's deliveries, newest first.
func (s *Store) ListByWebhook(ctx context.Context, whID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel

	filter := bson.M{"webhook_id": whID.String()}
	if opts.Status != nil {
		filter["status"] = string(*opts.Status)
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
		return nil, fmt.Errorf("courier/mongo: list by webhook: %w", err)
	}

	result := make([]*delivery.Delivery, 0, len(models))
	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, nil
}

// ClaimDue leases due deliveries one document at a time, oldest first.
func (s *Store) ClaimDue(ctx context.Context, opts delivery.ClaimOpts) ([]*delivery.Delivery, error) {
	col := s.mdb.Collection(colDeliveries)

	filter := bson.M{
		"$and": bson.A{
			bson.M{"$or": bson.A{
				bson.M{"status": string(delivery.StateRetrying), "next_retry_at": bson.M{"$lte": opts.Now}},
				bson.M{"status": string(delivery.StatePending), "created_at": bson.M{"$lte": opts.StaleBefore}},
			}},
			bson.M{"$or": bson.A{
				bson.M{"claim_token": ""},
				bson.M{"claimed_until": nil},
				bson.M{"claimed_until": bson.M{"$lte": opts.Now}},
			}},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"claim_token":   opts.Token,
			"claimed_until": opts.LeaseUntil,
		},
	}
	findOpts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{{Key: "created_at", Value: 1}})

	next := func() (string, *delivery.Delivery, error) {
		var m deliveryModel
		if err := col.FindOneAndUpdate(ctx, filter, update, findOpts).Decode(&m); err != nil {
			return "", nil, err
		}
		d, err := fromDeliveryModel(&m)
		return m.ID, d, err
	}

	// The claims already made must not outlive a failed call, even when ctx
	// is what failed.
	release := func(ids []string) error {
		_, err := col.UpdateMany(context.WithoutCancel(ctx),
			bson.M{"_id": bson.M{"$in": ids}, "claim_token": opts.Token},
			bson.M{"$set": bson.M{"claim_token": "", "claimed_until": nil}},
		)
		return err
	}

	return claimBatch(opts.Limit, next, release)
}

// claimBatch calls next up to limit times and collects the deliveries it
// claims. next returning mongo.ErrNoDocuments ends the batch. On any other
// error the IDs claimed so far, including one next reports alongside its
// error, are passed to release and nothing is returned.
func claimBatch(
	limit int,
	next func() (string, *delivery.Delivery, error),
	release func(ids []string) error,
) ([]*delivery.Delivery, error) {
	result := make([]*delivery.Delivery, 0, limit)
	ids := make([]string, 0, limit)

	for range limit {
		claimed, d, err := next()
		if claimed != "" {
			ids = append(ids, claimed)
		}
		if err == nil {
			result = append(result, d)
			continue
		}
		if errors.Is(err, mongod.ErrNoDocuments) {
			break
		}

		err = fmt.Errorf("courier/mongo: claim due: %w", err)
		if len(ids) > 0 {
			if relErr := release(ids); relErr != nil {
				err = errors.Join(err, fmt.Errorf("courier/mongo: release partial claim: %w", relErr))
			}
		}
		return nil, err
	}

	return result, nil
}

// CompleteAttempt stores the attempt fields if token still holds the claim.
func (s *Store) CompleteAttempt(ctx context.Context, d *delivery.Delivery, token string) error {
	updatedAt := d.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now()
	}

	res, err := s.mdb.Collection(colDeliveries).UpdateOne(ctx,
		bson.M{"_id": d.ID.String(), "claim_token": token},
		bson.M{"$set": bson.M{
			"status":               string(d.Status),
			"attempt_number":       d.AttemptNumber,
			"response_status_code": d.ResponseStatusCode,
			"response_body":        d.ResponseBody,
			"error_message":        d.ErrorMessage,
			"latency_ms":           d.LatencyMs,
			"delivered_at":         d.DeliveredAt,
			"next_retry_at":        d.NextRetryAt,
			"updated_at":           updatedAt,
			"claim_token":          "",
			"claimed_until":        nil,
		}},
	)
	if err != nil {
		return fmt.Errorf("courier/mongo: complete attempt: %w", err)
	}
	if res.MatchedCount == 0 {
		return delivery.ErrClaimLost
	}
	return nil
}

// ReleaseClaim clears the lease held by token.
func (s *Store) ReleaseClaim(ctx context.Context, delID id.ID, token string) error {
	res, err := s.mdb.Collection(colDeliveries).UpdateOne(ctx,
		bson.M{"_id": delID.String(), "claim_token": token},
		bson.M{"$set": bson.M{"claim_token": "", "claimed_until": nil}},
	)
	if err != nil {
		return fmt.Errorf("courier/mongo: release claim: %w", err)
	}
	if res.MatchedCount == 0 {
		return delivery.ErrClaimLost
	}
	return nil
}

// CountByStatus returns the number of deliveries per status.
func (s *Store) CountByStatus(ctx context.Context) (map[delivery.State]int64, error) {
	counts := make(map[delivery.State]int64, 4)
	for _, st := range []delivery.State{
		delivery.StatePending, delivery.StateRetrying, delivery.StateSuccess, delivery.StateFailed,
	} {
		n, err := s.mdb.NewFind((*deliveryModel)(nil)).
			Filter(bson.M{"status": string(st)}).
			Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("courier/mongo: count %s: %w", st, err)
		}
		counts[st] = n
	}
	return counts, nil
}
