package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"pdfquiz"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "pdfquiz",
		Usage: "Generate multiple choice quizzes from PDF study material",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"PDFQUIZ_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose debugging output",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "generate",
				Usage:     "Generate a quiz from a PDF",
				ArgsUsage: " ",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "PDF to read, a local path or gs://bucket/object",
						Required: true,
					},
					&cli.IntFlag{
						Name:    "questions",
						Aliases: []string{"n"},
						Value:   pdfquiz.DefaultQuestions,
						Usage:   "Number of questions to generate",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file for quiz JSON (default: stdout)",
					},
					&cli.BoolFlag{
						Name:  "play",
						Usage: "Play the quiz interactively",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Value: 5 * time.Minute,
						Usage: "Overall time limit for the generation",
					},
				},
				Action: generateCommand,
			},
			{
				Name:  "history",
				Usage: "List archived quizzes",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
						Usage: "Maximum number of quizzes to list (0 for all)",
					},
				},
				Action: historyCommand,
			},
			{
				Name:      "show",
				Usage:     "Print an archived quiz",
				ArgsUsage: "<quiz-id>",
				Action:    showCommand,
			},
		},
	}
}

// setup loads configuration and the logger shared by all commands.
func setup(c *cli.Context) (*pdfquiz.Config, *logrus.Logger, error) {
	cfg, err := pdfquiz.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	logger, err := pdfquiz.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	pdfquiz.SetVerbose(logger, c.Bool("verbose"))
	return cfg, logger, nil
}

func openArchive(cfg *pdfquiz.Config) (*pdfquiz.DB, error) {
	if cfg.Store.Path == "" {
		return nil, errors.New("no quiz archive configured, set store.path or PDFQUIZ_DB_PATH")
	}
	return pdfquiz.OpenDB(cfg.Store.Path)
}

func generateCommand(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	data, filename, err := readSource(ctx, c.String("file"))
	if err != nil {
		return err
	}

	completer, err := pdfquiz.NewCompleter(ctx, cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("failed to create completion client: %w", err)
	}
	if closer, ok := completer.(io.Closer); ok {
		defer closer.Close()
	}
	pipeline := pdfquiz.NewPipelineFromConfig(cfg, completer, nil, logger)

	logger.WithFields(logrus.Fields{
		"file":      filename,
		"questions": c.Int("questions"),
		"provider":  cfg.LLM.Provider,
	}).Debug("Starting quiz generation")

	result, err := pipeline.Generate(ctx, pdfquiz.Document{Data: data, Filename: filename}, c.Int("questions"))
	if err != nil {
		return err
	}
	if short := result.Shortfall(); short > 0 {
		logger.WithField("missing", short).Warn("Fewer questions than requested passed validation")
	}

	if cfg.Store.Path != "" {
		if err := archive(ctx, cfg, filename, result); err != nil {
			logger.WithError(err).Warn("Failed to archive quiz")
		}
	}

	if c.Bool("play") {
		playQuiz(os.Stdin, os.Stdout, result.MCQs)
		return nil
	}
	return writeJSON(c.String("output"), result, logger)
}

func archive(ctx context.Context, cfg *pdfquiz.Config, filename string, result *pdfquiz.Result) error {
	db, err := pdfquiz.OpenDB(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.CloseDB()
	_, err = db.SaveQuiz(ctx, filename, result)
	return err
}

func writeJSON(outputFile string, v any, logger *logrus.Logger) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal quiz: %w", err)
	}
	if outputFile == "" {
		fmt.Println(string(output))
		return nil
	}
	if err := os.WriteFile(outputFile, output, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	logger.Infof("Quiz saved to: %s", outputFile)
	return nil
}

func historyCommand(c *cli.Context) error {
	cfg, _, err := setup(c)
	if err != nil {
		return err
	}
	db, err := openArchive(cfg)
	if err != nil {
		return err
	}
	defer db.CloseDB()

	quizzes, err := db.GetQuizzes(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	printHistory(os.Stdout, quizzes)
	return nil
}

func printHistory(out io.Writer, quizzes []pdfquiz.DBQuiz) {
	if len(quizzes) == 0 {
		fmt.Fprintln(out, "No quizzes archived yet.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFILE\tQUESTIONS\tCREATED")
	for _, q := range quizzes {
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\n", q.ID, q.Filename, q.TotalQuestions, q.Requested, q.CreatedAt.Local().Format(time.DateTime))
	}
	w.Flush()
}

func showCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: pdfquiz show <quiz-id>", 2)
	}
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	db, err := openArchive(cfg)
	if err != nil {
		return err
	}
	defer db.CloseDB()

	quiz, err := db.GetQuiz(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	return writeJSON("", quiz, logger)
}
