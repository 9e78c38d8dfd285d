package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/config"
)

func openTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(context.Background(), config.SQLiteConfig{
		Path: filepath.Join(t.TempDir(), "nested", "index.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, client.Close()) })

	_, err = client.DB.Exec(`CREATE TABLE items (name TEXT NOT NULL)`)
	require.NoError(t, err)
	return client
}

func countItems(t *testing.T, c *Client) int {
	t.Helper()
	var n int
	require.NoError(t, c.DB.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n))
	return n
}

func TestInTxCommits(t *testing.T) {
	c := openTestClient(t)
	err := c.InTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO items (name) VALUES ('a'), ('b')`)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, countItems(t, c))
}

func TestInTxRollsBackOnError(t *testing.T) {
	c := openTestClient(t)
	boom := errors.New("boom")
	err := c.InTx(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO items (name) VALUES ('a')`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, countItems(t, c))
}
