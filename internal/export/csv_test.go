package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVQuotesAndOrdersColumns(t *testing.T) {
	out, err := CSV(Dataset{
		Headers: []string{"studentName", "status"},
		Rows: []map[string]string{
			{"status": "Present", "studentName": "Doe, Jane"},
			{"studentName": "Bob"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "studentName,status\n\"Doe, Jane\",Present\nBob,\n", string(out))
}

func TestCSVRequiresHeaders(t *testing.T) {
	_, err := CSV(Dataset{})
	assert.Error(t, err)
}
