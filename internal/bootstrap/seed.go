package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-faker/faker/v4"
	"github.com/google/uuid"

	"github.com/slapcommerce/backoffice/internal/config"
	"github.com/slapcommerce/backoffice/internal/domain/aggregate"
	"github.com/slapcommerce/backoffice/internal/infra/persistence"
	"github.com/slapcommerce/backoffice/internal/usecase"
)

// Seed builds a faker-generated catalog through the real command path,
// so seeded data carries the same events, snapshots and outbox entries
// as production writes.
func Seed(ctx context.Context, cfg config.Config, collections, productsPer int) error {
	if collections <= 0 {
		collections = 5
	}
	if productsPer <= 0 {
		productsPer = 10
	}

	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}

	conn, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	batcher := newBatcher(conn, log, cfg)
	batcher.Start()
	defer batcher.Stop()

	uow := persistence.NewUnitOfWork(conn, batcher)
	service := usecase.NewService(uow, log)
	dispatcher := service.Dispatcher()

	dispatch := func(commandType string, payload any) (json.RawMessage, error) {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data, err := dispatcher.Dispatch(ctx, usecase.Command{
			Type:          commandType,
			Payload:       raw,
			UserID:        "seed",
			CorrelationID: uuid.NewString(),
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", commandType, err)
		}
		out, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		return out, nil
	}

	kinds := []string{aggregate.KindDropship, aggregate.KindDigital}
	seeded := 0
	for i := 0; i < collections; i++ {
		collectionSlug := seedSlug(fmt.Sprintf("col-%d", i))
		colData, err := dispatch("createCollection", map[string]any{
			"slug":        collectionSlug,
			"title":       fmt.Sprintf("%s collection", faker.Word()),
			"description": faker.Sentence(),
		})
		if err != nil {
			return err
		}
		collectionID, err := probeID(colData)
		if err != nil {
			return err
		}

		for j := 0; j < productsPer; j++ {
			kind := kinds[(i+j)%len(kinds)]
			prodData, err := dispatch("createProduct", map[string]any{
				"kind":        kind,
				"slug":        seedSlug(fmt.Sprintf("prod-%d-%d", i, j)),
				"title":       faker.Word(),
				"description": faker.Paragraph(),
				"tags":        []string{faker.Word(), faker.Word()},
			})
			if err != nil {
				return err
			}
			productID, err := probeID(prodData)
			if err != nil {
				return err
			}

			if _, err := dispatch("assignProductToCollection", map[string]any{
				"id":           productID,
				"collectionId": collectionID,
			}); err != nil {
				return err
			}
			if _, err := dispatch("setProductPosition", map[string]any{
				"collectionId": collectionID,
				"productId":    productID,
				"position":     j,
			}); err != nil {
				return err
			}

			if _, err := dispatch("createVariant", map[string]any{
				"productId": productID,
				"kind":      kind,
				"sku":       fmt.Sprintf("SKU-%d-%d", i, j),
				"title":     "Default",
				"listPrice": int64(1000 + 100*j),
			}); err != nil {
				return err
			}
			seeded++
		}
	}

	log.Infof("bootstrap: seeded %d collections, %d products", collections, seeded)
	return nil
}

// seedSlug keeps seeded slugs unique across runs; the slug registry
// rejects reuse.
func seedSlug(prefix string) string {
	return fmt.Sprintf("%s-%s-%d", prefix, strings.ToLower(faker.Word()), time.Now().UnixNano()%100000)
}

func probeID(data json.RawMessage) (string, error) {
	var probe struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", err
	}
	return probe.ID.String(), nil
}
