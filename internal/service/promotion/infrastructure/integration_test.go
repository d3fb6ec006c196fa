package infrastructure

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-promotion/internal/pkg/bootstrap"
	"nexus-promotion/internal/pkg/redis"
	"nexus-promotion/internal/service/promotion/domain"
)

// 以下测试需要真实的中间件，通过环境变量开启：
//   PROMOTION_TEST_REDIS=localhost:6379
//   PROMOTION_TEST_MYSQL=localhost:3306 (root 用户，nexus_promotion_test 库)

func TestRedisAssignmentStore_Integration(t *testing.T) {
	addr := os.Getenv("PROMOTION_TEST_REDIS")
	if addr == "" {
		t.Skip("PROMOTION_TEST_REDIS not set")
	}
	client, err := redis.NewClient(addr)
	require.NoError(t, err)
	defer client.Close()

	store, err := NewRedisAssignmentStore(client, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()
	exp, id := "exp-"+uuid.NewString(), "user-1"

	_, err = store.GetAssignment(ctx, exp, id)
	assert.ErrorIs(t, err, domain.ErrAssignmentNotFound)

	first, created, err := store.CreateAssignmentIfAbsent(ctx, &domain.Assignment{ID: "a1", ExperimentID: exp, Identifier: id, VariantID: "control"})
	require.NoError(t, err)
	assert.True(t, created)
	second, created, err := store.CreateAssignmentIfAbsent(ctx, &domain.Assignment{ID: "a2", ExperimentID: exp, Identifier: id, VariantID: "treatment"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "control", second.VariantID)
}

func TestGormAssignmentStore_Integration(t *testing.T) {
	addr := os.Getenv("PROMOTION_TEST_MYSQL")
	if addr == "" {
		t.Skip("PROMOTION_TEST_MYSQL not set")
	}
	db, err := OpenMySQL(bootstrap.MySQLConfig{Addr: addr, User: "root", Database: "nexus_promotion_test"})
	require.NoError(t, err)
	defer CloseDB(db)
	require.NoError(t, Migrate(db))

	ctx := context.Background()
	c, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)
	require.NoError(t, ImportCatalog(ctx, db, c))

	offers, err := NewGormOfferRepository(db).ListActiveOffers(ctx, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	ids := make([]string, 0, len(offers))
	for _, o := range offers {
		ids = append(ids, o.ID)
	}
	assert.Contains(t, ids, "summer-10")
	assert.NotContains(t, ids, "draft-offer")

	store := NewGormAssignmentStore(db)
	exp := "exp-" + uuid.NewString()
	_, created, err := store.CreateAssignmentIfAbsent(ctx, &domain.Assignment{ID: uuid.NewString(), ExperimentID: exp, Identifier: "u", VariantID: "control", AssignedAt: time.Now().UTC()})
	require.NoError(t, err)
	assert.True(t, created)
	stored, created, err := store.CreateAssignmentIfAbsent(ctx, &domain.Assignment{ID: uuid.NewString(), ExperimentID: exp, Identifier: "u", VariantID: "treatment", AssignedAt: time.Now().UTC()})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "control", stored.VariantID)

	events := NewGormEventLog(db)
	assert.NoError(t, events.LogExposure(ctx, &domain.ExposureEvent{ID: uuid.NewString(), ExperimentID: exp, VariantID: "control", Identifier: "u", OfferIDs: []string{"summer-10"}, OccurredAt: time.Now().UTC()}))
	assert.NoError(t, events.LogConversion(ctx, &domain.ConversionEvent{ID: uuid.NewString(), ExperimentID: exp, VariantID: "control", Identifier: "u", Revenue: 99.5, OccurredAt: time.Now().UTC()}))
}
