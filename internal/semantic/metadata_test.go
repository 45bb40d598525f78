package semantic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookupMissingTopicFails(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TopicNotFound")
}

func TestDatasourceForTopicPrefersBaseView(t *testing.T) {
	topic := Topic{
		BaseView: "orders",
		Views: map[string]View{
			"orders":    {Name: "orders", Datasource: "primary"},
			"customers": {Name: "customers", Datasource: "secondary"},
		},
	}
	assert.Equal(t, "primary", datasourceForTopic(topic))
}

func TestDatasourceForTopicFallsBackToSortedFirstView(t *testing.T) {
	topic := Topic{
		Views: map[string]View{
			"zebra": {Name: "zebra"},
			"alpha": {Name: "alpha", Datasource: "alpha-db"},
		},
	}
	assert.Equal(t, "alpha-db", datasourceForTopic(topic))
}
