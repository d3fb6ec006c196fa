package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-promotion/internal/service/promotion/domain"
)

func TestOfferMapping_PreservesVersionConfiguration(t *testing.T) {
	c, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)
	offer := c.Offers[1]
	offer.Channels = []string{"app", "web"}
	offer.Funding = domain.Funding{Source: "brand", CostSharePercent: 50}

	model, err := FromDomainOffer(offer)
	require.NoError(t, err)
	require.NotNil(t, model.CurrentVersionID)
	assert.Equal(t, "summer-10-v3", *model.CurrentVersionID, "versions without id get a derived one")
	assert.Equal(t, "app,web", model.Channels)
	assert.Equal(t, "null", model.CurrentVersion.LineRules)

	back, err := ToDomainOffer(model)
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "web"}, back.Channels)
	assert.Equal(t, "brand", back.Funding.Source)
	require.NotNil(t, back.CurrentVersion)
	assert.Equal(t, int32(3), back.CurrentVersion.Version)
	assert.Equal(t, 10.0, back.CurrentVersion.Benefit.Percent.Percent)
	require.NotNil(t, back.CurrentVersion.Rules)
	assert.Equal(t, "cart.subtotal", back.CurrentVersion.Rules.Children[0].Rule.Field)
	assert.Nil(t, back.CurrentVersion.LineRules)
}

func TestToDomainOffer_CorruptColumn(t *testing.T) {
	_, err := ToDomainOffer(&OfferModel{
		ID:             "broken",
		CurrentVersion: &OfferVersionModel{ID: "v1", Benefit: "{not json"},
	})
	assert.Error(t, err)
}

func TestExperimentMapping(t *testing.T) {
	exp := &domain.Experiment{
		ID:             "exp",
		Status:         domain.ExperimentRunning,
		TrafficPercent: 25,
		Variants:       []domain.Variant{{ID: "a", Weight: 1}, {ID: "b", Weight: 3, OfferIDs: []string{"o1"}}},
	}
	model, err := FromDomainExperiment(exp)
	require.NoError(t, err)
	back, err := ToDomainExperiment(model)
	require.NoError(t, err)
	assert.Equal(t, exp, back)
}
