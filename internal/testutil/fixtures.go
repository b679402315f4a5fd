package testutil

import (
	"io"
	"testing"

	"github.com/ethpandaops/viewgraph/pkg/schema"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// FraudTables returns the tables of the fraud analytics schema. Every table has
// the same row count, so every join costs 1.
func FraudTables() []schema.Table {
	return []schema.Table{
		{Name: "customers", RowCount: 1000, Columns: []string{"customer_id", "name", "segment"}},
		{Name: "transactions", RowCount: 1000, Columns: []string{"transaction_id", "customer_id", "merchant_id", "channel_id", "amount"}},
		{Name: "merchants", RowCount: 1000, Columns: []string{"merchant_id", "mcc_code", "name", "risk_tier"}},
		{Name: "channels", RowCount: 1000, Columns: []string{"channel_id", "name"}},
		{Name: "mcc_codes", RowCount: 1000, Columns: []string{"mcc_code", "description"}},
	}
}

// FraudForeignKeys returns the foreign keys of the fraud analytics schema
func FraudForeignKeys() []schema.ForeignKey {
	return []schema.ForeignKey{
		{FromTable: "transactions", FromColumn: "customer_id", ToTable: "customers", ToColumn: "customer_id"},
		{FromTable: "transactions", FromColumn: "merchant_id", ToTable: "merchants", ToColumn: "merchant_id"},
		{FromTable: "transactions", FromColumn: "channel_id", ToTable: "channels", ToColumn: "channel_id"},
		{FromTable: "merchants", FromColumn: "mcc_code", ToTable: "mcc_codes", ToColumn: "mcc_code"},
	}
}

// FraudGraph builds the fraud analytics schema graph
func FraudGraph(t *testing.T) *schema.Graph {
	t.Helper()

	g, err := schema.Build(FraudTables(), FraudForeignKeys())
	require.NoError(t, err)

	return g
}

// NewLogger returns a logger that discards output
func NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}
