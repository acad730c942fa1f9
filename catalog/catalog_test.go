package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"enginecore/catalog"
	"enginecore/execution"
)

func TestCreateAndGetTable(t *testing.T) {
	c, err := catalog.New()
	require.NoError(t, err)

	schema := execution.NewSchema(execution.Column{Name: "id", Type: execution.TypeInteger})
	info, err := c.CreateTable("people", schema, nil)
	require.NoError(t, err)
	require.Equal(t, "people", info.Name)

	got, err := c.GetTable("people")
	require.NoError(t, err)
	require.Same(t, info, got)
}

func TestCreateTableDuplicateNameRejected(t *testing.T) {
	c, err := catalog.New()
	require.NoError(t, err)
	schema := execution.NewSchema(execution.Column{Name: "id", Type: execution.TypeInteger})

	_, err = c.CreateTable("people", schema, nil)
	require.NoError(t, err)
	_, err = c.CreateTable("people", schema, nil)
	require.Error(t, err)
}

func TestCreateTableAssignsDistinctOIDs(t *testing.T) {
	c, err := catalog.New()
	require.NoError(t, err)
	schema := execution.NewSchema(execution.Column{Name: "id", Type: execution.TypeInteger})

	a, err := c.CreateTable("a", schema, nil)
	require.NoError(t, err)
	b, err := c.CreateTable("b", schema, nil)
	require.NoError(t, err)
	require.NotEqual(t, a.OID, b.OID)
}

func TestGetTableMissingReturnsError(t *testing.T) {
	c, err := catalog.New()
	require.NoError(t, err)
	_, err = c.GetTable("nope")
	require.Error(t, err)
}

func TestDropTableRemovesTableAndIndexes(t *testing.T) {
	c, err := catalog.New()
	require.NoError(t, err)
	schema := execution.NewSchema(execution.Column{Name: "id", Type: execution.TypeInteger})
	_, err = c.CreateTable("people", schema, nil)
	require.NoError(t, err)
	_, err = c.CreateIndex("people_id_idx", "people", nil, &execution.ColumnRef{ColIndex: 0})
	require.NoError(t, err)

	require.NoError(t, c.DropTable("people"))
	_, err = c.GetTable("people")
	require.Error(t, err)
	require.Empty(t, c.GetIndexes("people"))
}

func TestDropTableMissingReturnsError(t *testing.T) {
	c, err := catalog.New()
	require.NoError(t, err)
	require.Error(t, c.DropTable("nope"))
}

func TestCreateIndexRequiresExistingTable(t *testing.T) {
	c, err := catalog.New()
	require.NoError(t, err)
	_, err = c.CreateIndex("idx", "nope", nil, &execution.ColumnRef{ColIndex: 0})
	require.Error(t, err)
}

func TestCreateIndexAndGetIndexes(t *testing.T) {
	c, err := catalog.New()
	require.NoError(t, err)
	schema := execution.NewSchema(execution.Column{Name: "id", Type: execution.TypeInteger})
	_, err = c.CreateTable("people", schema, nil)
	require.NoError(t, err)

	_, err = c.CreateIndex("idx1", "people", nil, &execution.ColumnRef{ColIndex: 0})
	require.NoError(t, err)
	_, err = c.CreateIndex("idx2", "people", nil, &execution.ColumnRef{ColIndex: 0})
	require.NoError(t, err)

	indexes := c.GetIndexes("people")
	require.Len(t, indexes, 2)
	names := []string{indexes[0].Name, indexes[1].Name}
	require.ElementsMatch(t, []string{"idx1", "idx2"}, names)
}

func TestTableNames(t *testing.T) {
	c, err := catalog.New()
	require.NoError(t, err)
	schema := execution.NewSchema(execution.Column{Name: "id", Type: execution.TypeInteger})
	_, err = c.CreateTable("a", schema, nil)
	require.NoError(t, err)
	_, err = c.CreateTable("b", schema, nil)
	require.NoError(t, err)

	require.ElementsMatch(t, []string{"a", "b"}, c.TableNames())
}
