package query

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/walteh/semsync/cmd/semsync/decode"
)

type Handler struct {
	decode.Handler
	Line int
	Col  int
}

func NewQueryCommand() *cobra.Command {
	me := &Handler{}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "decode a token stream and look up the span at a point",
	}

	decode.RegisterFlags(cmd, &me.Handler)
	cmd.Flags().IntVar(&me.Line, "line", 0, "zero-based line of the point")
	cmd.Flags().IntVar(&me.Col, "col", 0, "zero-based byte column of the point")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return me.Run(cmd, afero.NewOsFs())
	}

	return cmd
}

func (me *Handler) Run(cmd *cobra.Command, fsys afero.Fs) error {
	spans, err := me.Spans(fsys)
	if err != nil {
		return err
	}

	found := false
	for _, s := range spans {
		if s.Contains(me.Line, me.Col) {
			fmt.Fprintln(cmd.OutOrStdout(), decode.FormatSpan(s))
			found = true
		}
	}
	if !found {
		fmt.Fprintf(cmd.OutOrStdout(), "no span at %d:%d\n", me.Line, me.Col)
	}
	return nil
}
