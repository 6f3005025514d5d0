// storedb is a small inspector CLI over a storage directory: create
// tables, insert rows, scan/filter them, and print per-table statistics.
//
// Usage:
//
//	storedb --dir ./data create-table users "id:int,name:varchar:50"
//	storedb --dir ./data insert users 1 alice
//	storedb --dir ./data scan users
//	storedb --dir ./data stats
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"

	"storedb/pkg/eval"
	"storedb/pkg/schema"
	"storedb/pkg/storagemgr"
	"storedb/pkg/types"
)

var cli struct {
	Dir string `help:"Storage directory." default:"./storedb-data"`

	CreateTable createTableCmd `cmd:"" name:"create-table" help:"Create a table from a column spec."`
	Insert      insertCmd      `cmd:"" help:"Insert one row of values into a table."`
	Scan        scanCmd        `cmd:"" help:"Scan a table, optionally filtered by a condition."`
	Delete      deleteCmd      `cmd:"" help:"Delete rows matching a condition."`
	Stats       statsCmd       `cmd:"" help:"Print per-table statistics."`
	SetIndex    setIndexCmd    `cmd:"" name:"set-index" help:"Build a hash index on a column."`
}

type createTableCmd struct {
	Table string `arg:""`
	Spec  string `arg:"" help:"Comma-separated column specs: name:dtype[:size]."`
}

func (c *createTableCmd) Run(m *storagemgr.Manager) error {
	s, err := parseSchema(c.Spec)
	if err != nil {
		return err
	}
	return m.CreateTable(c.Table, s)
}

type insertCmd struct {
	Table  string   `arg:""`
	Values []string `arg:""`
}

func (c *insertCmd) Run(m *storagemgr.Manager) error {
	_, err := m.InsertIntoTable(c.Table, [][]types.Value{stringsToValues(c.Values)})
	return err
}

// stringsToValues is a best-effort literal parser for CLI arguments: it
// guesses int, then float, then falls back to varchar. A real frontend
// would resolve each value against the table's schema instead.
func stringsToValues(args []string) []types.Value {
	values := make([]types.Value, len(args))
	for i, a := range args {
		if n, err := strconv.ParseInt(a, 10, 32); err == nil {
			values[i] = types.NewInt(int32(n))
			continue
		}
		if f, err := strconv.ParseFloat(a, 32); err == nil {
			values[i] = types.NewFloat(float32(f))
			continue
		}
		values[i] = types.NewVarchar(a)
	}
	return values
}

type scanCmd struct {
	Table     string `arg:""`
	Condition string `optional:"" help:"left,op,right, e.g. \"id,>,1\"."`
}

func (c *scanCmd) Run(m *storagemgr.Manager) error {
	cond, err := parseCondition(c.Condition)
	if err != nil {
		return err
	}
	rows, err := m.GetTableData(c.Table, cond, nil)
	if err != nil {
		return err
	}
	for _, row := range rows {
		fmt.Println(formatRow(row))
	}
	return nil
}

type deleteCmd struct {
	Table     string `arg:""`
	Condition string `arg:""`
}

func (c *deleteCmd) Run(m *storagemgr.Manager) error {
	cond, err := parseCondition(c.Condition)
	if err != nil {
		return err
	}
	affected, err := m.DeleteTableRecord(c.Table, cond)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d row(s)\n", affected)
	return nil
}

type statsCmd struct{}

func (c *statsCmd) Run(m *storagemgr.Manager) error {
	stats, err := m.GetStats()
	if err != nil {
		return err
	}
	for name, s := range stats {
		fmt.Printf("%s: records=%d blocks=%d max_record_size=%d blocking_factor=%d\n",
			name, s.RecordCount, s.BlockCount, s.MaxRecordSize, s.BlockingFactor)
	}
	return nil
}

type setIndexCmd struct {
	Table  string `arg:""`
	Column string `arg:""`
}

func (c *setIndexCmd) Run(m *storagemgr.Manager) error {
	return m.SetIndex(c.Table, c.Column)
}

func parseSchema(spec string) (schema.Schema, error) {
	var attrs []schema.Attribute
	for _, col := range strings.Split(spec, ",") {
		parts := strings.Split(col, ":")
		if len(parts) < 2 {
			return nil, fmt.Errorf("bad column spec %q", col)
		}
		dtype, err := parseDtype(parts[1])
		if err != nil {
			return nil, err
		}
		var size uint16
		if len(parts) == 3 {
			n, err := strconv.Atoi(parts[2])
			if err != nil {
				return nil, fmt.Errorf("bad size in column spec %q: %w", col, err)
			}
			size = uint16(n)
		}
		attr, err := schema.NewAttribute(parts[0], dtype, size)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return schema.New(attrs)
}

func parseDtype(s string) (types.Kind, error) {
	switch s {
	case "int":
		return types.KindInt, nil
	case "float":
		return types.KindFloat, nil
	case "char":
		return types.KindChar, nil
	case "varchar":
		return types.KindVarchar, nil
	default:
		return 0, fmt.Errorf("unknown dtype %q", s)
	}
}

func parseCondition(spec string) (*eval.Condition, error) {
	if spec == "" {
		return nil, nil
	}
	parts := strings.SplitN(spec, ",", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("condition must be left,op,right, got %q", spec)
	}
	cond, err := eval.NewCondition(parts[0], parts[1], parts[2])
	if err != nil {
		return nil, err
	}
	return &cond, nil
}

func formatRow(row []types.Value) string {
	parts := make([]string, len(row))
	for i, v := range row {
		switch v.Kind() {
		case types.KindInt:
			parts[i] = strconv.FormatInt(int64(v.Int()), 10)
		case types.KindFloat:
			parts[i] = strconv.FormatFloat(float64(v.Float()), 'g', -1, 32)
		default:
			parts[i] = v.Text()
		}
	}
	return strings.Join(parts, "\t")
}

func main() {
	ctx := kong.Parse(&cli, kong.Name("storedb"), kong.Description("Inspect and manipulate a storedb storage directory."))

	mgr, err := storagemgr.Open(cli.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", cli.Dir, err)
		os.Exit(1)
	}

	if err := ctx.Run(mgr); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
