// Command gcn-patcher injects a mod object into a GameCube DOL or disc
// image: it reads the mod's loadable segments, symbol table, and
// .patcher_config section, then rewrites the target's arena pointer,
// entry hook, and any extra branch patches the config names.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/metroidprimemodding/gcn-patcher/dolpatch"
	"github.com/metroidprimemodding/gcn-patcher/isopatch"
	"github.com/metroidprimemodding/gcn-patcher/modconfig"
	"github.com/metroidprimemodding/gcn-patcher/objmodule"
	"github.com/metroidprimemodding/gcn-patcher/progress"
)

var (
	modFile    string
	inputFile  string
	outputFile string
	ignoreHash bool
)

func main() {
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(logrus.InfoLevel)

	if err := newRootCmd().Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gcn-patcher",
		Short: "Inject a mod object into a GameCube DOL or disc image",
		RunE:  runPatch,
	}
	cmd.Flags().StringVar(&modFile, "mod-file", "", "path to the compiled mod object (required)")
	cmd.Flags().StringVar(&inputFile, "input-file", "", "path to the source DOL or disc image (required)")
	cmd.Flags().StringVar(&outputFile, "output-file", "", "path to write the patched output to (required)")
	cmd.Flags().BoolVar(&ignoreHash, "ignore-hash", false, "skip the expected-hash check in the mod's config")
	for _, name := range []string{"mod-file", "input-file", "output-file"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
	return cmd
}

func runPatch(cmd *cobra.Command, args []string) error {
	modData, err := os.ReadFile(modFile)
	if err != nil {
		return fmt.Errorf("gcn-patcher: read mod file: %w", err)
	}
	mod, err := objmodule.Open(newReaderAt(modData))
	if err != nil {
		return fmt.Errorf("gcn-patcher: open mod object: %w", err)
	}

	cfgData, err := mod.SectionBytes(".patcher_config")
	if err != nil {
		return fmt.Errorf("gcn-patcher: read mod config: %w", err)
	}
	cfg, err := modconfig.Parse(cfgData)
	if err != nil {
		return fmt.Errorf("gcn-patcher: parse mod config: %w", err)
	}

	logrus.Infof("patching %s with %s (%s)", inputFile, cfg.ModName, cfg.Version)

	progressCh := make(chan progress.Progress)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progressCh {
			if p.Total == 0 {
				continue
			}
			fmt.Printf("\r%s: %3.0f%%", p.Description, p.Ratio()*100)
		}
		fmt.Println()
	}()

	if isDiscImage(inputFile) {
		err = isopatch.Patch(inputFile, outputFile, mod, cfg, isopatch.Options{
			IgnoreHash: ignoreHash,
			Progress:   func(p progress.Progress) { progressCh <- p },
		})
	} else {
		err = patchDOLFile(mod, cfg)
	}
	close(progressCh)
	<-done

	if err != nil {
		return fmt.Errorf("gcn-patcher: patch: %w", err)
	}
	logrus.Infof("wrote %s", outputFile)
	return nil
}

func patchDOLFile(mod *objmodule.Module, cfg *modconfig.Config) error {
	dolData, err := os.ReadFile(inputFile)
	if err != nil {
		return fmt.Errorf("read input dol: %w", err)
	}
	out, err := dolpatch.Patch(dolData, mod, cfg, dolpatch.Options{IgnoreHash: ignoreHash})
	if err != nil {
		return err
	}
	return os.WriteFile(outputFile, out, 0o644)
}

// isDiscImage distinguishes a raw DOL from a disc image by extension;
// both inputs are plain binary files with no shared magic to sniff
// cheaply without a full parse.
func isDiscImage(path string) bool {
	for _, ext := range []string{".iso", ".gcm"} {
		if len(path) >= len(ext) && path[len(path)-len(ext):] == ext {
			return true
		}
	}
	return false
}

type byteReaderAt struct{ data []byte }

func newReaderAt(data []byte) *byteReaderAt { return &byteReaderAt{data: data} }

func (b *byteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b.data)) {
		return 0, fmt.Errorf("gcn-patcher: read at %d out of range", off)
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, fmt.Errorf("gcn-patcher: short read at %d", off)
	}
	return n, nil
}
