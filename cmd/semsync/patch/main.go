package patch

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/walteh/semsync/pkg/lsp"
	"github.com/walteh/semsync/pkg/lsp/protocol"
	"github.com/walteh/semsync/pkg/semtok"
	"gitlab.com/tozd/go/errors"
)

type Handler struct {
	Cached string
	Edits  string
}

func NewPatchCommand() *cobra.Command {
	me := &Handler{}

	cmd := &cobra.Command{
		Use:   "patch",
		Short: "apply delta edits to a cached token stream",
	}

	cmd.Flags().StringVar(&me.Cached, "cached", "", "cached token stream JSON file (flat integer array)")
	cmd.Flags().StringVar(&me.Edits, "edits", "", "edits JSON file, the wire shape of a delta response")
	_ = cmd.MarkFlagRequired("cached")
	_ = cmd.MarkFlagRequired("edits")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return me.Run(cmd, afero.NewOsFs())
	}

	return cmd
}

func (me *Handler) Run(cmd *cobra.Command, fsys afero.Fs) error {
	cached, err := semtok.LoadStream(fsys, me.Cached)
	if err != nil {
		return err
	}

	raw, err := afero.ReadFile(fsys, me.Edits)
	if err != nil {
		return errors.Errorf("reading edits file: %w", err)
	}
	var wire []protocol.SemanticTokensEdit
	if err := json.Unmarshal(raw, &wire); err != nil {
		return errors.Errorf("parsing edits file %s: %w", me.Edits, err)
	}

	edits, err := lsp.RecordEdits(wire)
	if err != nil {
		return err
	}
	patched, err := semtok.ApplyEdits(cached, edits)
	if err != nil {
		return err
	}

	zerolog.Ctx(cmd.Context()).Debug().
		Int("cached_records", cached.Records()).
		Int("edits", len(edits)).
		Int("patched_records", patched.Records()).
		Msg("applied token edits")

	out, err := json.Marshal(patched)
	if err != nil {
		return errors.Errorf("encoding patched stream: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
