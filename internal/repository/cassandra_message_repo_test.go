package repository

import (
	"testing"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
)

func TestParseConsistency(t *testing.T) {
	tests := map[string]gocql.Consistency{
		"one":          gocql.One,
		"QUORUM":       gocql.Quorum,
		"local_one":    gocql.LocalOne,
		"LOCAL_QUORUM": gocql.LocalQuorum,
		"EACH_QUORUM":  gocql.EachQuorum,
		"bogus":        gocql.LocalQuorum,
		"":             gocql.LocalQuorum,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseConsistency(in), in)
	}
}

func TestCassandraSchemaOrdersByID(t *testing.T) {
	assert.Len(t, cassandraSchema, 3)
	for _, stmt := range cassandraSchema[1:] {
		assert.Contains(t, stmt, "CLUSTERING ORDER BY (id ASC)")
	}
}
