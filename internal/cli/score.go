package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/scrapenet/internal/model"
	"github.com/ppiankov/scrapenet/internal/oracle"
	"github.com/ppiankov/scrapenet/internal/pipeline"
	"github.com/ppiankov/scrapenet/internal/sink"
)

var (
	scorePlatform string
	scoreTag      string
	scoreOffline  bool
	scoreOut      string
	scoreTimeout  time.Duration
)

// scoreCmd re-scores saved responses without touching the chain
var scoreCmd = &cobra.Command{
	Use:   "score <file>...",
	Short: "Score saved peer responses offline",
	Long: `Score runs one scoring round over responses saved on disk and prints
the per-peer breakdown. Nothing is sent to the chain and trust is untouched.

A single file may be a round record written by the json_dir sink; its
platform, search key and uids are reused. Otherwise every file is one peer's
raw response (a JSON array of items) and --platform and --tag are required.

Example:
  scrapenet score scoring/reddit/000123456_5b1c.json
  scrapenet score peer0.json peer1.json --platform twitter --tag bittensor
  scrapenet score peer0.json --platform reddit --tag tao --offline --json report.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringVar(&scorePlatform, "platform", "", "platform of the responses (twitter, reddit)")
	scoreCmd.Flags().StringVar(&scoreTag, "tag", "", "search tag the peers were asked for")
	scoreCmd.Flags().BoolVar(&scoreOffline, "offline", false, "skip spot checks (no-oracle weight profile)")
	scoreCmd.Flags().StringVar(&scoreOut, "json", "", "write the round report to this path")
	scoreCmd.Flags().DurationVar(&scoreTimeout, "timeout", 5*time.Minute, "overall timeout including oracle lookups")
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)

	round, err := loadRound(args, model.Platform(scorePlatform), scoreTag)
	if err != nil {
		return err
	}

	var oracles map[model.Platform]oracle.Oracle
	if scoreOffline {
		cfg.Scoring.Profiles = map[string]string{string(round.Platform): "no-oracle"}
	} else {
		oracles, err = oracle.NewAll(cfg, oracle.NewDeps(cfg))
		if err != nil {
			return err
		}
	}

	p, err := pipeline.NewPipeline(cfg, oracles)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), scoreTimeout)
	defer cancel()

	report, err := p.ScoreRound(ctx, round)
	if err != nil {
		return fmt.Errorf("score failed: %w", err)
	}

	printReport(report)

	if scoreOut != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		if err := os.WriteFile(scoreOut, data, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Report written to %s\n", scoreOut)
	}
	return nil
}

// loadRound reads either one saved round record or one raw response per file.
// Explicit platform and tag override what a record carries.
func loadRound(paths []string, platform model.Platform, tag string) (pipeline.Round, error) {
	var round pipeline.Round
	fromRecord := false

	if len(paths) == 1 {
		data, err := os.ReadFile(paths[0])
		if err != nil {
			return round, fmt.Errorf("read %s: %w", paths[0], err)
		}
		if rec, ok := decodeRecord(data); ok {
			if rec.Responses == nil {
				return round, fmt.Errorf("%s: record was saved without responses", paths[0])
			}
			fromRecord = true
			round = pipeline.Round{
				Platform:  rec.Report.Platform,
				SearchKey: rec.Report.SearchKey,
				UIDs:      rec.Report.UIDs,
				Responses: rec.Responses,
				Block:     rec.Report.Block,
			}
			if len(round.UIDs) != len(round.Responses) {
				return round, fmt.Errorf("%s: record has %d uids but %d responses", paths[0], len(round.UIDs), len(round.Responses))
			}
		}
	}

	if !fromRecord {
		for i, path := range paths {
			data, err := os.ReadFile(path)
			if err != nil {
				return round, fmt.Errorf("read %s: %w", path, err)
			}
			round.UIDs = append(round.UIDs, i)
			round.Responses = append(round.Responses, json.RawMessage(bytes.TrimSpace(data)))
		}
	}

	if platform != "" {
		round.Platform = platform
	}
	if tag != "" {
		round.SearchKey = tag
	}
	if !round.Platform.Valid() {
		return round, fmt.Errorf("unknown or missing platform %q (use --platform twitter|reddit)", round.Platform)
	}
	if round.SearchKey == "" {
		return round, fmt.Errorf("missing search tag (use --tag)")
	}
	return round, nil
}

// decodeRecord recognizes a json_dir round record
func decodeRecord(data []byte) (sink.Record, bool) {
	var rec sink.Record
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return rec, false
	}
	if err := json.Unmarshal(trimmed, &rec); err != nil || rec.Report == nil {
		return rec, false
	}
	return rec, true
}

func printReport(r *model.RoundReport) {
	m := r.Metrics
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Round %s\n", r.RoundID)
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Platform:  %s\n", r.Platform)
	fmt.Fprintf(os.Stderr, "  Tag:       %s\n", r.SearchKey)
	fmt.Fprintf(os.Stderr, "  Profile:   %s\n", r.Profile)
	fmt.Fprintf(os.Stderr, "  Formula:   %s\n", r.Formula)
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  %5s %6s %10s %6s %6s %7s %5s %5s %8s\n",
		"uid", "items", "age(s)", "dupes", "relev", "correct", "fmt", "fake", "score")
	for i := 0; i < m.Len(); i++ {
		fmt.Fprintf(os.Stderr, "  %5d %6.0f %10.0f %6.0f %6.2f %7.0f %5.0f %5.0f %8.4f\n",
			r.UIDs[i], m.Length[i], m.AverageAge[i], m.SimilarityRaw[i], m.RelevancyRatio[i],
			m.Correct[i], m.Format[i], m.Fake[i], m.NormalizedScores[i])
	}
	for _, sc := range r.SpotChecks {
		if sc.Reason != "" && sc.Peer < len(r.UIDs) {
			fmt.Fprintf(os.Stderr, "  uid %d spot check: %s\n", r.UIDs[sc.Peer], sc.Reason)
		}
	}
	fmt.Fprintf(os.Stderr, "\n")
}
