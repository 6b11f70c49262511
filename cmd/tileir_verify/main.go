// tileir_verify parses and verifies a textual TileIR module and reports its
// operations.
//
// Usage:
//
//	tileir_verify module.tir
//	cat module.tir | tileir_verify
//
// The exit status is 0 iff every op in the module verifies.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/tileir/tileir/ir"
)

var (
	flagOps   = flag.Bool("ops", true, "Lists the operations of the module with their result types.")
	flagPrint = flag.Bool("print", false, "Re-prints the parsed module in canonical textual form, "+
		"with result names assigned.")
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

func newPlainTable() *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				s = headerRowStyle
				return
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			return
		})
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	args := flag.Args()
	if len(args) > 1 {
		klog.Errorf("Too many arguments. See 'tileir_verify -help'.")
		os.Exit(1)
	}
	var source []byte
	sourceName := "<stdin>"
	if len(args) == 1 {
		sourceName = args[0]
		source = must.M1(os.ReadFile(sourceName))
	} else {
		source = must.M1(io.ReadAll(os.Stdin))
	}

	module, err := ir.ParseModule(string(source))
	if err != nil {
		klog.Errorf("%s: %v", sourceName, err)
		os.Exit(1)
	}
	module.AssignResultNames()

	// ParseModule already verified each op while building it; VerifyAll
	// re-checks the assembled module as a whole.
	if failures := module.VerifyAll(nil); len(failures) > 0 {
		for _, failure := range failures {
			klog.Errorf("%s: %v", sourceName, failure)
		}
		os.Exit(1)
	}
	for _, op := range module.Ops {
		klog.V(1).Infof("verified %s = %s", op.Result(), op)
	}

	if *flagOps {
		fmt.Println(titleStyle.Render(fmt.Sprintf("Operations (%d)", len(module.Ops))))
		table := newPlainTable()
		table.Headers("Result", "Op", "Type")
		for _, op := range module.Ops {
			table.Row(op.Result().String(), op.OpName(), op.Result().Type.String())
		}
		fmt.Println(table.Render())
	}

	if *flagPrint {
		fmt.Print(module.String())
	}
}
