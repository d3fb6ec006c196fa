package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-promotion/internal/pkg/bootstrap"
	"nexus-promotion/internal/service/promotion/domain/conflict"
	"nexus-promotion/internal/service/promotion/infrastructure"
)

func localConfig() *bootstrap.Config {
	cfg := bootstrap.Default()
	cfg.App.Promotion.CatalogPath = "../../configs/catalog.yaml"
	return cfg
}

func TestWire_LocalAdapters(t *testing.T) {
	d, err := wire(localConfig())
	require.NoError(t, err)
	defer d.close(context.Background())

	assert.IsType(t, &infrastructure.MemoryCatalog{}, d.offers)
	assert.IsType(t, &infrastructure.MemoryAssignmentStore{}, d.store)
	assert.IsType(t, infrastructure.LogEventLog{}, d.events)

	exp, err := d.experiments.FindExperiment(context.Background(), "exp-cart-50")
	require.NoError(t, err)
	assert.Len(t, exp.Variants, 2)
}

func TestWire_UnknownAdapter(t *testing.T) {
	cfg := localConfig()
	cfg.App.Promotion.EventSink = "carrier-pigeon"
	_, err := wire(cfg)
	assert.Error(t, err)

	cfg = localConfig()
	cfg.App.Promotion.OfferSource = "ldap"
	_, err = wire(cfg)
	assert.Error(t, err)
}

func TestBudgetFrom(t *testing.T) {
	got := budgetFrom(bootstrap.BudgetConfig{MaxOffers: 2, MaxDiscountPercent: 30, Mode: "clamp"})
	assert.Equal(t, conflict.BudgetOptions{MaxOffers: 2, MaxDiscountPercent: 30, Mode: conflict.BudgetClamp}, got)
}
