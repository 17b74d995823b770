package cmd

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drpaneas/vitisexpert/internal/imageedit"
	"github.com/drpaneas/vitisexpert/internal/llm"
)

func (a *app) editImageCommand() *cobra.Command {
	var in, prompt, out string

	cmd := &cobra.Command{
		Use:   "edit-image",
		Short: "Edit a vineyard photo with a text instruction",
		Long: `edit-image sends a photo and an instruction to the Gemini image model and
writes the edited photo. Suggestions:
  ` + strings.Join(imageedit.Suggestions, "\n  "),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("reading %s: %w", in, err)
			}
			backend, err := a.deps.imageEditor(a.cfg)
			if err != nil {
				return err
			}

			img, err := imageedit.New(backend).EditBytes(cmd.Context(),
				llm.Image{MIMEType: http.DetectContentType(data), Data: data}, prompt)
			if err != nil {
				return err
			}

			if out == "" {
				out = editedName(in, img.MIMEType)
			}
			if err := os.WriteFile(out, img.Data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "input photo")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "editing instruction")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: <input>-edited.<ext>)")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

// editedName derives the output path from the input path and the MIME type
// the model answered with.
func editedName(in, mimeType string) string {
	ext := filepath.Ext(in)
	base := strings.TrimSuffix(in, ext)
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		ext = exts[0]
		for _, e := range exts {
			if e == ".png" || e == ".jpg" || e == ".webp" {
				ext = e
				break
			}
		}
	}
	if ext == "" {
		ext = ".png"
	}
	return base + "-edited" + ext
}
