package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/tpload/internal/envconfig"
	"github.com/born-ml/tpload/internal/logutil"
	"github.com/born-ml/tpload/internal/model"
	"github.com/born-ml/tpload/internal/shard"
)

// version is set with -ldflags "-X main.version=...".
var version = "v0.1.0-dev"

// NewCLI builds the tpload command tree.
func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tpload",
		Short: "Tensor-parallel checkpoint shard loader",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SilenceUsage = true
			slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
		},
	}

	cobra.EnableCommandSorting = false

	loadCmd := &cobra.Command{
		Use:   "load [MODEL_DIR]",
		Short: "Load one rank's shard of a checkpoint",
		Args:  cobra.MaximumNArgs(1),
		RunE:  LoadHandler,
	}
	addShardFlags(loadCmd)
	loadCmd.Flags().Int("rank", int(envconfig.Rank()), "Tensor-parallel rank (TPLOAD_RANK)")
	loadCmd.Flags().StringP("out", "o", "", "Write the loaded shard to this SafeTensors file")

	verifyCmd := &cobra.Command{
		Use:   "verify [MODEL_DIR]",
		Short: "Load every rank and check the shards reassemble to the checkpoint",
		Args:  cobra.MaximumNArgs(1),
		RunE:  VerifyHandler,
	}
	addShardFlags(verifyCmd)

	synthCmd := &cobra.Command{
		Use:   "synth DIR",
		Short: "Write a small random Baichuan checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  SynthHandler,
	}
	synthCmd.Flags().String("arch", "BaiChuan2ForCausalLM", "Architecture name")
	synthCmd.Flags().Int("hidden", 64, "Hidden size")
	synthCmd.Flags().Int("heads", 8, "Attention heads")
	synthCmd.Flags().Int("intermediate", 128, "MLP intermediate size")
	synthCmd.Flags().Int("layers", 2, "Decoder layers")
	synthCmd.Flags().Int("vocab", 1000, "Vocabulary size")
	synthCmd.Flags().String("dtype", "float32", "Weight data type: float32, float16 or bfloat16")
	synthCmd.Flags().Uint64("seed", 1, "Random seed")

	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Show environment configuration",
		Args:  cobra.NoArgs,
		RunE:  EnvHandler,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tpload version %s (%s)\n", version, goVersion())
		},
	}

	rootCmd.AddCommand(
		loadCmd,
		verifyCmd,
		synthCmd,
		envCmd,
		versionCmd,
	)

	return rootCmd
}

func addShardFlags(cmd *cobra.Command) {
	cmd.Flags().Int("world-size", int(envconfig.WorldSize()), "Tensor-parallel world size (TPLOAD_WORLD_SIZE)")
	cmd.Flags().Int("vocab-pad", int(envconfig.VocabPadding()), "Pad the vocabulary to a multiple of this (TPLOAD_VOCAB_PAD)")
	cmd.Flags().String("unknown-names", envconfig.UnknownNames(), "Entries without a parameter: warn, error or ignore (TPLOAD_UNKNOWN_NAMES)")
}

// shardSetup is what every sharding command needs from its flags.
type shardSetup struct {
	dir   string
	cfg   *model.Config
	world int
	opts  []shard.Option
}

func newShardSetup(cmd *cobra.Command, args []string) (*shardSetup, error) {
	dir := envconfig.Checkpoint()
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		return nil, fmt.Errorf("no model directory given and TPLOAD_CHECKPOINT is unset")
	}

	world, err := cmd.Flags().GetInt("world-size")
	if err != nil {
		return nil, err
	}
	pad, err := cmd.Flags().GetInt("vocab-pad")
	if err != nil {
		return nil, err
	}
	unknown, err := cmd.Flags().GetString("unknown-names")
	if err != nil {
		return nil, err
	}
	policy, err := shard.ParseUnknownNamePolicy(unknown)
	if err != nil {
		return nil, err
	}

	cfg, err := model.LoadConfig(dir)
	if err != nil {
		return nil, err
	}
	cfg.VocabPadding = pad

	opts := append(cfg.LoadOptions(),
		shard.WithUnknownNames(policy),
		shard.WithLogger(slog.Default()),
	)
	return &shardSetup{dir: dir, cfg: cfg, world: world, opts: opts}, nil
}

func newTable(cmd *cobra.Command, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

// EnvHandler prints every environment variable with its current value.
func EnvHandler(cmd *cobra.Command, args []string) error {
	vars := envconfig.AsMap()
	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	sort.Strings(names)

	table := newTable(cmd, "NAME", "VALUE", "DESCRIPTION")
	for _, k := range names {
		v := vars[k]
		table.Append([]string{v.Name, fmt.Sprintf("%v", v.Value), v.Description})
	}
	table.Render()
	return nil
}

func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}
