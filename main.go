package main

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

var (
	verbose    bool
	htmlExport bool
)

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintln(out, "Usage: paperjudge [flags] <paper_file> <config_file>")
	fmt.Fprintln(out, "       paperjudge --watch [flags] <config_file>")
	fmt.Fprintln(out, "       paperjudge --history N <config_file>")
	fmt.Fprintln(out, "\nPaper files may be .tex or .pdf; --improve needs .tex.\n\nFlags:")
	flag.PrintDefaults()
}

func main() {
	_ = godotenv.Load(".env")

	var outputDir string
	flag.StringVar(&outputDir, "output", "reviews", "review output directory")
	flag.StringVar(&outputDir, "o", "reviews", "review output directory (shorthand)")
	singleJudge := flag.String("single-judge", "", "run only the named judge")
	logPrompts := flag.Bool("log-prompts", false, "save outgoing prompts under logs/")
	improve := flag.Bool("improve", false, "run the improvement loop instead of a one-shot evaluation")
	rounds := flag.Int("rounds", 0, "improvement rounds (0 = config default)")
	interactive := flag.Bool("interactive", false, "pause each improvement round for plan approval")
	watch := flag.Bool("watch", false, "scan the configured watch directory on a cron schedule")
	history := flag.Int("history", 0, "print the N most recent runs and exit")
	flag.BoolVar(&htmlExport, "html", false, "also render the summary file to HTML")
	flag.BoolVar(&verbose, "verbose", false, "verbose progress logging")
	flag.BoolVar(&verbose, "v", false, "verbose progress logging (shorthand)")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	var paperFile, configFile string
	switch {
	case *watch || *history > 0:
		if len(args) != 1 {
			flag.Usage()
			os.Exit(2)
		}
		configFile = args[0]
	default:
		if len(args) != 2 {
			flag.Usage()
			os.Exit(2)
		}
		paperFile, configFile = args[0], args[1]
	}

	cfg := LoadConfig(configFile)
	if *logPrompts {
		cfg.Settings.LogPrompts = true
	}
	if *rounds > 0 {
		cfg.Settings.Rounds = *rounds
	}
	if *singleJudge != "" {
		judge, ok := cfg.JudgeByName(*singleJudge)
		if !ok {
			log.Fatalf("No judge named %q in config (have: %s)", *singleJudge, strings.Join(cfg.JudgeNames(), ", "))
		}
		cfg.Judges = []JudgeConfig{judge}
	}
	if *improve && cfg.OpenRouterKey == "" {
		log.Fatalf("Improvement mode needs openrouter_key: plan and revision calls use settings.default_model via OpenRouter")
	}

	db, err := InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()

	if *history > 0 {
		runs, err := RecentRuns(db, *history)
		if err != nil {
			log.Fatalf("Failed to read run history: %v", err)
		}
		printRunHistory(runs)
		return
	}

	os.MkdirAll(outputDir, 0755)

	client := NewModelClient(cfg)
	runner, err := NewJudgeRunner(cfg, client)
	if err != nil {
		log.Fatalf("Failed to set up judges: %v", err)
	}
	notifier := NewNotifier(cfg)
	ctx := context.Background()

	switch {
	case *watch:
		if err := RunWatcher(ctx, cfg, db, runner, notifier, outputDir); err != nil {
			log.Fatalf("Watch mode: %v", err)
		}
	case *improve:
		runImprove(ctx, cfg, db, runner, client, paperFile, *interactive)
		logUsage(client)
	default:
		paper, result, err := evaluateOnce(ctx, cfg, db, runner, paperFile, outputDir, ModeEvaluate)
		if err != nil {
			log.Fatalf("Evaluation failed: %v", err)
		}
		notifier.PostRunComplete(paper, result.Reviews, outputDir)
		if failed := FailedJudges(result.Reviews); len(failed) > 0 {
			log.Printf("evaluation finished with failures failed_judges=%s", strings.Join(failed, ", "))
		}
		logUsage(client)
	}
}

// evaluateOnce extracts one paper, runs the configured panel over it,
// and records the run in history. Shared by the evaluate and watch
// paths; history failures are logged but never sink the run itself.
func evaluateOnce(ctx context.Context, cfg Config, db *sql.DB, runner *JudgeRunner, paperFile, outputDir, mode string) (Paper, EvalResult, error) {
	paper, err := ExtractPaper(paperFile)
	if err != nil {
		return Paper{}, EvalResult{}, err
	}
	log.Printf("paper loaded path=%s format=%s title=%q chars=%d", paper.Path, paper.Format, paper.Title, len(paper.Text))

	runID := uuid.NewString()
	if err := StartRun(db, RunRecord{
		ID:         runID,
		PaperPath:  paper.Path,
		PaperTitle: paper.Title,
		Mode:       mode,
		StartedAt:  time.Now(),
	}); err != nil {
		log.Printf("history start failed (non-fatal): %v", err)
	}

	result, err := runner.Evaluate(ctx, paper, cfg.Judges, outputDir)
	if err != nil {
		return paper, result, err
	}

	if _, err := InsertReviews(db, runID, result.Reviews, result.ReviewPaths); err != nil {
		log.Printf("history reviews insert failed (non-fatal): %v", err)
	}
	if err := FinishRun(db, runID, len(result.Reviews), len(FailedJudges(result.Reviews)), outputDir, time.Now()); err != nil {
		log.Printf("history finish failed (non-fatal): %v", err)
	}

	if htmlExport && result.SummaryPath != "" {
		htmlPath, err := WriteSummaryHTML(result.SummaryPath)
		if err != nil {
			log.Printf("html export failed (non-fatal): %v", err)
		} else {
			log.Printf("summary html saved path=%s", htmlPath)
		}
	}
	return paper, result, nil
}

// runImprove drives the improvement loop, prompting on stdin for plan
// approval when interactive.
func runImprove(ctx context.Context, cfg Config, db *sql.DB, runner *JudgeRunner, client *ModelClient, paperFile string, interactive bool) {
	runID := uuid.NewString()
	if err := StartRun(db, RunRecord{
		ID:        runID,
		PaperPath: paperFile,
		Mode:      ModeImprove,
		StartedAt: time.Now(),
	}); err != nil {
		log.Printf("history start failed (non-fatal): %v", err)
	}

	loop := NewImproveLoop(cfg, runner, client, paperFile, ImproveOptions{
		Rounds:      cfg.Settings.Rounds,
		Interactive: interactive,
		DB:          db,
		RunID:       runID,
	})

	stdin := bufio.NewScanner(os.Stdin)
	state, err := loop.Run(ctx)
	for state == StateAwaitApproval {
		plan, _ := loop.PendingPlan()
		fmt.Printf("\n=== Improvement plan, round %d ===\n\n%s\n\n", plan.Round, plan.Text)
		if approveOnStdin(stdin) {
			if aerr := loop.Approve(); aerr != nil {
				log.Fatalf("Approve: %v", aerr)
			}
		} else {
			if aerr := loop.Abort(); aerr != nil {
				log.Fatalf("Abort: %v", aerr)
			}
		}
		state, err = loop.Run(ctx)
	}

	if ferr := FinishRun(db, runID, len(cfg.Judges), 0, loop.SessionDir(), time.Now()); ferr != nil {
		log.Printf("history finish failed (non-fatal): %v", ferr)
	}

	switch {
	case err != nil:
		log.Fatalf("Improvement failed after %d completed round(s): %v", loop.RoundsPersisted(), err)
	case state == StateAborted:
		fmt.Printf("Improvement aborted. Rounds persisted: %d\n", loop.RoundsPersisted())
	default:
		fmt.Printf("Improvement complete after %d round(s). Final paper: %s\n", loop.RoundsPersisted(), loop.FinalPath())
	}
}

// approveOnStdin asks for plan approval. Anything but y/yes, including
// EOF, counts as a rejection.
func approveOnStdin(in *bufio.Scanner) bool {
	fmt.Print("Apply this plan? [y/N]: ")
	if !in.Scan() {
		fmt.Println()
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(in.Text()))
	return answer == "y" || answer == "yes"
}

func printRunHistory(runs []RunRecord) {
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return
	}
	for _, r := range runs {
		line := fmt.Sprintf("%s  %-8s  %s", r.StartedAt.Format("2006-01-02 15:04"), r.Mode, r.PaperTitle)
		if r.PaperTitle == "" {
			line = fmt.Sprintf("%s  %-8s  %s", r.StartedAt.Format("2006-01-02 15:04"), r.Mode, r.PaperPath)
		}
		if r.FailedCount > 0 {
			line += fmt.Sprintf("  (%d/%d judges failed)", r.FailedCount, r.JudgeCount)
		}
		fmt.Println(line)
	}
}

func logUsage(client *ModelClient) {
	u := client.Usage()
	log.Printf("llm usage input_tokens=%d output_tokens=%d total=%d", u.InputTokens, u.OutputTokens, u.TotalTokens())
}
