package commands_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cashflow-engine/commands"
	"github.com/warp/cashflow-engine/config"
	"github.com/warp/cashflow-engine/engine"
	"github.com/warp/cashflow-engine/store/sqlstore"
)

// run executes the CLI with args and returns what it printed to stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := commands.NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// =============================================================================
// ANTICIPATE
// =============================================================================

func TestAnticipate(t *testing.T) {
	out, err := run(t, "anticipate", "--face=1000", "--due=2024-01-31", "--paid=2024-01-21", "--rate=0.0006")
	require.NoError(t, err)

	assert.Contains(t, out, "10 days early")
	assert.Contains(t, out, "Present value:  994.04")
	assert.Contains(t, out, "Savings:        5.96")
	assert.NotContains(t, out, "Savings (raw)")
}

func TestAnticipate_SettledOverride(t *testing.T) {
	out, err := run(t, "anticipate", "--face=1000", "--due=2024-01-31", "--paid=2024-01-21",
		"--rate=0.0006", "--settled=1010")
	require.NoError(t, err)

	assert.Contains(t, out, "Savings:        0.00")
	assert.Contains(t, out, "Savings (raw):  -10.00")
}

func TestAnticipate_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing face", []string{"anticipate", "--due=2024-01-31", "--paid=2024-01-21"}},
		{"bad date", []string{"anticipate", "--face=1", "--due=31/01/2024", "--paid=2024-01-21"}},
		{"bad rate", []string{"anticipate", "--face=1", "--due=2024-01-31", "--paid=2024-01-21", "--rate=x"}},
		{"rate too high", []string{"anticipate", "--face=1", "--due=2024-01-31", "--paid=2024-01-21", "--rate=1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

// =============================================================================
// INIT-CONFIG
// =============================================================================

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cashflow.yaml")

	out, err := run(t, "init-config", path)
	require.NoError(t, err)
	assert.Equal(t, "Wrote "+path+"\n", out)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Server, cfg.Server)

	_, err = run(t, "init-config", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, "init-config", "--force", path)
	assert.NoError(t, err)
}

// =============================================================================
// IMPORT & PROJECT
// =============================================================================

// seedLedger creates a SQLite ledger with one checking account for alice and
// points the CLI at it.
func seedLedger(t *testing.T) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "ledger.db")
	st, err := sqlstore.Open(sqlstore.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	require.NoError(t, st.SaveAccount(context.Background(), engine.Account{
		ID: "checking", OwnerID: "alice", Name: "Checking", Kind: engine.AccountChecking,
	}))
	require.NoError(t, st.Close())

	t.Setenv("CASHFLOW_DB_DRIVER", sqlstore.DriverSQLite)
	t.Setenv("CASHFLOW_DB_DSN", dsn)
	t.Setenv("LOG_LEVEL", "error")
}

func TestImportThenProject(t *testing.T) {
	// GIVEN: An empty checking account and a two-line CSV statement
	// WHEN: Importing it and projecting
	// THEN: The current balance reflects both lines

	seedLedger(t)
	statement := filepath.Join(t.TempDir(), "june.csv")
	require.NoError(t, os.WriteFile(statement, []byte("date,description,amount\n2024-06-01,Coffee,-4.50\n2024-06-02,Refund,20\n"), 0o644))

	out, err := run(t, "import", "--owner=alice", "--account=checking", statement)
	require.NoError(t, err)
	assert.Contains(t, out, "Parsed 2 lines, imported 2, skipped 0")
	assert.Contains(t, out, "Coffee")

	out, err = run(t, "import", "--owner=alice", "--account=checking", statement)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 0, skipped 2")

	out, err = run(t, "project", "--owner=alice", "--as-of=2024-06-12", "--months=1", "--json")
	require.NoError(t, err)
	var p engine.Projection
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, "15.50", p.CurrentBalance.StringFixed(2))
	assert.Len(t, p.Months, 2)
	assert.False(t, p.AtRisk)

	out, err = run(t, "project", "--owner=alice", "--as-of=2024-06-12", "--months=1")
	require.NoError(t, err)
	assert.Contains(t, out, "Owner: alice  As of: 2024-06-12  Current balance: 15.50")
	assert.Contains(t, out, "2024-07")
	assert.NotContains(t, out, "AT RISK")
}

func TestImport_Errors(t *testing.T) {
	seedLedger(t)

	_, err := run(t, "import", "--account=checking", filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorContains(t, err, "opening statement")

	statement := filepath.Join(t.TempDir(), "june.csv")
	require.NoError(t, os.WriteFile(statement, []byte("date,description,amount\n2024-06-01,Coffee,-4.50\n"), 0o644))
	_, err = run(t, "import", "--owner=bob", "--account=checking", statement)
	assert.ErrorIs(t, err, engine.ErrAccountNotFound)
}

func TestProject_InvalidConfig(t *testing.T) {
	t.Setenv("CASHFLOW_DB_DRIVER", "mongodb")
	_, err := run(t, "project")
	assert.ErrorContains(t, err, "invalid config")
}
