package security

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetricsLabels(t *testing.T) {
	t.Setenv("CLINICAL_HISTORY_TEST_ZONE", "eu-west")

	labels, err := ParseMetricsLabels("service=clinical-history,zone=${CLINICAL_HISTORY_TEST_ZONE}")
	require.NoError(t, err)
	assert.Equal(t, prometheus.Labels{"service": "clinical-history", "zone": "eu-west"}, labels)

	labels, err = ParseMetricsLabels("")
	require.NoError(t, err)
	assert.Nil(t, labels)

	_, err = ParseMetricsLabels("novalue")
	require.Error(t, err)

	_, err = ParseMetricsLabels("9bad=x")
	require.Error(t, err)
}
