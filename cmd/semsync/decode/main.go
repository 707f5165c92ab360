package decode

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/walteh/semsync/pkg/position"
	"github.com/walteh/semsync/pkg/semtok"
	"gitlab.com/tozd/go/errors"
)

type Handler struct {
	Legend   string
	Tokens   string
	Source   string
	Encoding string
	Server   string
}

func NewDecodeCommand() *cobra.Command {
	me := &Handler{}

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "decode a token stream into concrete spans",
	}

	RegisterFlags(cmd, me)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return me.Run(cmd, afero.NewOsFs())
	}

	return cmd
}

// RegisterFlags wires the decode pipeline flags onto cmd. The query command
// shares the same pipeline and calls this too.
func RegisterFlags(cmd *cobra.Command, me *Handler) {
	cmd.Flags().StringVar(&me.Legend, "legend", "", "legend YAML file (tokenTypes / tokenModifiers)")
	cmd.Flags().StringVar(&me.Tokens, "tokens", "", "token stream JSON file (flat integer array)")
	cmd.Flags().StringVar(&me.Source, "source", "", "source file the stream was computed against")
	cmd.Flags().StringVar(&me.Encoding, "encoding", "utf-16", "column encoding of the stream (utf-8, utf-16, utf-32)")
	cmd.Flags().StringVar(&me.Server, "server", "server", "server name to stamp on spans")
	_ = cmd.MarkFlagRequired("legend")
	_ = cmd.MarkFlagRequired("tokens")
	_ = cmd.MarkFlagRequired("source")
}

type fileLines []string

func (f fileLines) LineText(line int) (string, bool) {
	if line < 0 || line >= len(f) {
		return "", false
	}
	return f[line], true
}

// Spans runs the decode pipeline against files on fsys.
func (me *Handler) Spans(fsys afero.Fs) ([]semtok.Span, error) {
	enc, ok := position.ParseEncoding(me.Encoding)
	if !ok {
		return nil, errors.Errorf("unknown encoding %q", me.Encoding)
	}

	legend, err := semtok.LoadLegend(fsys, me.Legend)
	if err != nil {
		return nil, err
	}
	stream, err := semtok.LoadStream(fsys, me.Tokens)
	if err != nil {
		return nil, err
	}
	src, err := afero.ReadFile(fsys, me.Source)
	if err != nil {
		return nil, errors.Errorf("reading source file: %w", err)
	}

	lines := fileLines(strings.Split(string(src), "\n"))
	return semtok.Decode(stream, legend, lines, enc, me.Server), nil
}

func (me *Handler) Run(cmd *cobra.Command, fsys afero.Fs) error {
	spans, err := me.Spans(fsys)
	if err != nil {
		return err
	}

	zerolog.Ctx(cmd.Context()).Debug().Int("spans", len(spans)).Msg("decoded token stream")

	for _, s := range spans {
		fmt.Fprintln(cmd.OutOrStdout(), FormatSpan(s))
	}
	return nil
}

// FormatSpan renders one span the way decode and query print it.
func FormatSpan(s semtok.Span) string {
	mods := ""
	if len(s.Modifiers) > 0 {
		mods = " [" + strings.Join(s.Modifiers, ",") + "]"
	}
	return fmt.Sprintf("%d:%d-%d %s%s %q", s.Line, s.StartByte, s.EndByte, s.Type, mods, s.Text)
}
