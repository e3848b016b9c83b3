// Command waveprint is the registry CLI: register clips, dry-run checks,
// and registry inspection against a local index.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/waveprint/waveprint/internal/audio"
	"github.com/waveprint/waveprint/internal/config"
	"github.com/waveprint/waveprint/internal/engine"
	"github.com/waveprint/waveprint/internal/fingerprint"
	"github.com/waveprint/waveprint/internal/index"
	"github.com/waveprint/waveprint/internal/store"
	"github.com/waveprint/waveprint/pkg/logger"
)

type rootOptions struct {
	ConfigPath string
	IndexPath  string
	JSON       bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "waveprint",
		Short:         "WavePrint - perceptual audio novelty registry",
		Long:          "Register audio clips into a perceptual fingerprint registry,\nor check a clip against it without registering.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.IndexPath, "index", "", "path to index database (overrides config)")
	cmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "JSON output")

	cmd.AddCommand(newRegisterCommand(opts))
	cmd.AddCommand(newCheckCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newLedgerCommand(opts))

	return cmd
}

// runtime bundles the wired core for one CLI invocation.
type runtime struct {
	cfg          *config.Config
	eng          *engine.Engine
	idx          *index.Index
	contentStore *store.DiskStore
	ledger       *store.FileLedger
}

func setup(opts *rootOptions) (*runtime, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.IndexPath != "" {
		cfg.Index.Path = opts.IndexPath
	}

	idx, err := index.Open(cfg.Index.Path)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}

	contentStore, err := store.NewDiskStore(cfg.Store.ContentDir)
	if err != nil {
		idx.Close()
		return nil, err
	}

	return &runtime{
		cfg:          cfg,
		eng:          engine.New(cfg.EngineConfig(), fingerprint.NewExtractor(cfg.ExtractorConfig()), idx),
		idx:          idx,
		contentStore: contentStore,
		ledger:       store.NewFileLedger(cfg.Store.LedgerPath),
	}, nil
}

func (rt *runtime) close() {
	rt.idx.Close()
}

func loadSignal(path string, sampleRate int) (audio.Signal, error) {
	sig, err := audio.ReadWAV(path)
	if err != nil {
		return audio.Signal{}, err
	}
	return audio.Prepare(sig, sampleRate)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRegisterCommand(opts *rootOptions) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "register <file.wav>",
		Short: "Submit a clip for registration",
		Long:  "Submit a WAV clip: rejected when a registered near-duplicate exists,\nflagged when borderline, otherwise admitted, stored, and recorded on the ledger.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(opts)
			if err != nil {
				return err
			}
			defer rt.close()
			return runRegister(rt, args[0], owner, opts.JSON)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "anonymous", "owner recorded on the ledger")
	return cmd
}

func runRegister(rt *runtime, path, owner string, asJSON bool) error {
	log := logger.GetLogger()

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	sig, err := loadSignal(path, rt.cfg.Audio.SampleRate)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	decision, err := rt.eng.Submit(ctx, sig)
	if err != nil {
		return err
	}

	out := map[string]any{
		"state":       string(decision.State),
		"token_count": decision.TokenCount,
		"candidates":  decision.Candidates,
	}

	switch decision.State {
	case engine.StateAdmitted:
		contentHash, err := rt.contentStore.Put(raw)
		if err != nil {
			return fmt.Errorf("entry %d admitted but content storage failed: %w", decision.EntryID, err)
		}
		if err := rt.eng.BindContent(decision.EntryID, contentHash); err != nil {
			log.Warnf("Binding content hash: %v", err)
		}
		rec, err := rt.ledger.Record(ctx, decision.EntryID, contentHash, owner)
		if err != nil {
			return fmt.Errorf("entry %d admitted but ledger record failed: %w", decision.EntryID, err)
		}
		out["entry_id"] = decision.EntryID
		out["content_hash"] = contentHash
		out["ledger_ref"] = rec.Ref
		if !asJSON {
			fmt.Printf("Admitted as entry %d\n  content %s\n  ledger  %s\n", decision.EntryID, contentHash, rec.Ref)
			return nil
		}

	case engine.StateRejected:
		out["entry_id"] = decision.EntryID
		if !asJSON {
			fmt.Printf("Rejected: duplicate of entry %d (score %.3f)\n",
				decision.EntryID, decision.Candidates[0].Score)
			return nil
		}

	case engine.StateFlagged:
		if !asJSON {
			fmt.Println("Flagged for review; candidate entries:")
			for _, c := range decision.Candidates {
				fmt.Printf("  entry %d  score %.3f  offset %dms\n", c.EntryID, c.Score, c.OffsetMs)
			}
			return nil
		}
	}

	return printJSON(out)
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <file.wav>",
		Short: "Dry-run match a clip against the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(opts)
			if err != nil {
				return err
			}
			defer rt.close()

			sig, err := loadSignal(args[0], rt.cfg.Audio.SampleRate)
			if err != nil {
				return err
			}

			candidates, err := rt.eng.Query(context.Background(), sig)
			if err != nil {
				return err
			}

			if opts.JSON {
				return printJSON(candidates)
			}
			if len(candidates) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			for _, c := range candidates {
				fmt.Printf("entry %d  score %.3f  votes %d  offset %dms\n",
					c.EntryID, c.Score, c.Votes, c.OffsetMs)
			}
			return nil
		},
	}
	return cmd
}

func newListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registry entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(opts)
			if err != nil {
				return err
			}
			defer rt.close()

			entries := rt.eng.Entries()
			if opts.JSON {
				return printJSON(entries)
			}
			if len(entries) == 0 {
				fmt.Println("Registry is empty.")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("entry %d  tokens %d  content %s  created %s\n",
					e.ID, e.TokenCount, e.ContentHash, e.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newLedgerCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ledger",
		Short: "Show ownership ledger records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(opts)
			if err != nil {
				return err
			}
			defer rt.close()

			records, err := rt.ledger.Records()
			if err != nil {
				return err
			}
			if opts.JSON {
				return printJSON(records)
			}
			if len(records) == 0 {
				fmt.Println("Ledger is empty.")
				return nil
			}
			for _, rec := range records {
				fmt.Printf("%s  entry %d  content %s  owner %s  %s\n",
					rec.Ref, rec.EntryID, rec.ContentHash, rec.Owner, rec.RecordedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}
