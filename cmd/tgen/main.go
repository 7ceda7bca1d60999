package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"transcriptgen/internal/app"
	"transcriptgen/internal/config"
	"transcriptgen/internal/db"
	"transcriptgen/internal/domain"
	"transcriptgen/internal/export"
	"transcriptgen/internal/pipeline"
	"transcriptgen/internal/server"
	"transcriptgen/internal/store"
)

const (
	watchInterval   = 2 * time.Second
	pollInterval    = 500 * time.Millisecond
	shutdownTimeout = 30 * time.Second
)

var rootCmd = &cobra.Command{
	Use:   "tgen",
	Short: "Contact center transcript generator",
	Long: `tgen generates synthetic contact-center call transcripts with an LLM.
- Workspace: a directory holding .transcriptgen/transcriptgen.db plus optional transcriptgen.yml and .env files.
- Industries: healthcare, finance, telecom, retail, travel and insurance templates ship built in.
- Preview: up to five transcripts generated synchronously and never stored.
- Batch jobs: pending -> running -> completed|failed; results are stored per job and exported as json, jsonl or csv.
- Serve: the HTTP API (OpenAPI at <base-path>/openapi.json, Swagger UI at /docs) also runs jobs queued from the CLI.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	config.SetDefaults(viper.GetViper())
	config.BindEnv(viper.GetViper())
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "also write JSON logs to this file")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(industryCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s := a.Settings
				if _, err := a.Orchestrator.Resume(ctx); err != nil {
					return err
				}
				go a.Orchestrator.Watch(ctx, watchInterval)
				go server.NewWebhookDispatcher(a.Store, s.Webhooks, a.Logger.With("component", "webhooks"), a.Metrics).Run(ctx)

				handler, err := server.New(server.Config{
					Orchestrator: a.Orchestrator,
					Store:        a.Store,
					Templates:    a.Templates,
					LLM:          a.Model,
					Gatherer:     a.Registry,
					Logger:       a.Logger.With("component", "server"),
					BasePath:     s.BasePath,
					Auth:         server.AuthConfig{JWTSecret: s.JWTSecret},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: s.Addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving transcript generator API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", s.Addr, s.BasePath, s.BasePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8000", "listen address")
	cmd.Flags().String("base-path", server.DefaultBasePath, "API base path")
	cmd.Flags().Int("max-jobs", 2, "concurrent batch jobs")
	_ = viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("base-path", cmd.Flags().Lookup("base-path"))
	_ = viper.BindPFlag("max-jobs", cmd.Flags().Lookup("max-jobs"))
	return cmd
}

type configFlags struct {
	industry   string
	scenarios  []string
	callTypes  []string
	sentiments []string
	records    int
	minTurns   int
	maxTurns   int
	noMetadata bool
}

func (f *configFlags) register(cmd *cobra.Command, defaultRecords int) {
	cmd.Flags().StringVar(&f.industry, "industry", "", "industry template id")
	cmd.Flags().StringSliceVar(&f.scenarios, "scenario", nil, "scenario id (repeatable; default: industry scenarios)")
	cmd.Flags().StringSliceVar(&f.callTypes, "call-type", nil, "inbound or outbound (repeatable)")
	cmd.Flags().StringSliceVar(&f.sentiments, "sentiment", nil, "customer sentiment (repeatable)")
	cmd.Flags().IntVar(&f.records, "records", defaultRecords, "number of transcripts")
	cmd.Flags().IntVar(&f.minTurns, "min-turns", 4, "minimum conversation turns")
	cmd.Flags().IntVar(&f.maxTurns, "max-turns", 12, "maximum conversation turns")
	cmd.Flags().BoolVar(&f.noMetadata, "no-metadata", false, "ask for transcripts without call metadata")
	_ = cmd.MarkFlagRequired("industry")
}

func (f *configFlags) config() domain.GenerationConfig {
	cfg := domain.GenerationConfig{
		Industry:   f.industry,
		Scenarios:  f.scenarios,
		NumRecords: f.records,
		MinTurns:   f.minTurns,
		MaxTurns:   f.maxTurns,
	}
	for _, ct := range f.callTypes {
		cfg.CallTypes = append(cfg.CallTypes, domain.CallType(strings.TrimSpace(ct)))
	}
	for _, s := range f.sentiments {
		cfg.Sentiments = append(cfg.Sentiments, domain.Sentiment(strings.TrimSpace(s)))
	}
	if f.noMetadata {
		include := false
		cfg.IncludeMetadata = &include
	}
	return cfg
}

func generateCmd() *cobra.Command {
	gen := &cobra.Command{Use: "generate", Short: "Generate transcripts"}
	gen.AddCommand(generatePreviewCmd())
	gen.AddCommand(generateBatchCmd())
	return gen
}

func generatePreviewCmd() *cobra.Command {
	var f configFlags
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Generate up to five transcripts without storing them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				transcripts, err := a.Orchestrator.Preview(ctx, f.config())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(transcripts)
				}
				printTranscripts(transcripts)
				return nil
			})
		},
	}
	f.register(cmd, 3)
	return cmd
}

func generateBatchCmd() *cobra.Command {
	var f configFlags
	var wait bool
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Create a batch job",
		Long: `Create a batch job. Without --wait the job is queued for a running 'tgen serve'
on the same workspace; with --wait it runs in this process until it finishes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if !wait {
					job, err := a.Orchestrator.Enqueue(ctx, f.config())
					if err != nil {
						return err
					}
					return printJob(job)
				}
				job, task, err := a.Orchestrator.StartBatch(ctx, f.config())
				if err != nil {
					return err
				}
				if err := task.Wait(ctx); err != nil {
					return err
				}
				job, err = waitTerminal(ctx, a.Store, job.ID)
				if err != nil {
					return err
				}
				if err := printJob(job); err != nil {
					return err
				}
				if job.Status == domain.JobStatusFailed && job.Error != nil {
					return fmt.Errorf("job %s failed: %s", job.ID, *job.Error)
				}
				return nil
			})
		},
	}
	f.register(cmd, 10)
	cmd.Flags().BoolVar(&wait, "wait", false, "run the job here and wait for it")
	return cmd
}

// waitTerminal polls until the job leaves pending/running. A server sharing
// the workspace may have claimed the job before this process did.
func waitTerminal(ctx context.Context, st *store.Store, id string) (domain.GenerationJob, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		job, err := st.Get(ctx, id)
		if err != nil {
			return domain.GenerationJob{}, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func jobCmd() *cobra.Command {
	job := &cobra.Command{Use: "job", Short: "Inspect batch jobs"}
	job.AddCommand(jobListCmd())
	job.AddCommand(jobShowCmd())
	job.AddCommand(jobDeleteCmd())
	job.AddCommand(jobResultsCmd())
	job.AddCommand(jobExportCmd())
	job.AddCommand(jobLogCmd())
	return job
}

func jobListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				jobs, err := st.List(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(jobs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Industry", "Status", "Progress", "Records", "Created"})
				for _, j := range jobs {
					tw.AppendRow(table.Row{j.ID, j.Config.Industry, j.Status, fmt.Sprintf("%.0f%%", j.Progress), fmt.Sprintf("%d/%d", j.CompletedRecords, j.TotalRecords), j.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum jobs to list")
	return cmd
}

func jobShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				job, err := st.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJob(job)
			})
		},
	}
}

func jobDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a job and its results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				ok, err := st.Delete(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("job %s: %w", args[0], store.ErrNotFound)
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"message": "Job deleted"})
				}
				fmt.Printf("Deleted job %s\n", args[0])
				return nil
			})
		},
	}
}

func jobResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results <job-id>",
		Short: "Show the transcripts a job produced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				results, err := jobResults(ctx, st, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(results)
				}
				printTranscripts(results)
				return nil
			})
		},
	}
}

func jobExportCmd() *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export <job-id>",
		Short: "Export job results as json, jsonl or csv",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				results, err := jobResults(ctx, st, args[0])
				if err != nil {
					return err
				}
				var w io.Writer = os.Stdout
				if out != "" {
					file, err := os.Create(out)
					if err != nil {
						return err
					}
					defer file.Close()
					w = file
				}
				if err := export.Write(w, f, results); err != nil {
					return err
				}
				if out != "" {
					fmt.Fprintf(os.Stderr, "Wrote %d transcripts to %s\n", len(results), out)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", string(export.FormatJSON), "json, jsonl or csv")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func jobLogCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "log <job-id>",
		Short: "Show a job's event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				events, err := st.Events(ctx, args[0], n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Payload"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 50, "number of events")
	return cmd
}

func jobResults(ctx context.Context, st *store.Store, id string) ([]domain.Transcript, error) {
	if _, err := st.Get(ctx, id); err != nil {
		return nil, err
	}
	results, err := st.GetResults(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("job %s has no results yet", id)
	}
	return results, nil
}

func industryCmd() *cobra.Command {
	ind := &cobra.Command{Use: "industry", Short: "Browse industry templates"}
	ind.AddCommand(industryListCmd())
	ind.AddCommand(industryShowCmd())
	return ind
}

func industryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List industries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				all := a.Templates.All()
				if viper.GetBool("json") {
					return printJSON(all)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Scenarios", "Description"})
				for _, t := range all {
					tw.AppendRow(table.Row{t.ID, t.Name, len(pipeline.DefaultScenarios(t.ID)), t.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func industryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <industry-id>",
		Short: "Show an industry template and its scenarios",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, ok := a.Templates.Get(args[0])
				if !ok {
					return fmt.Errorf("industry %q not found", args[0])
				}
				scenarios := pipeline.IndustryScenarios(t.ID)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"template": t, "scenarios": scenarios})
				}
				fmt.Printf("%s (%s)\n%s\n\n", t.Name, t.ID, t.Description)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Scenario", "Name"})
				for _, s := range scenarios {
					tw.AppendRow(table.Row{s.ID, s.Name})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show resolved settings (secrets hidden)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return printJSON(map[string]any{
					"file":     config.Path(a.Settings.Workspace),
					"database": db.Path(a.Settings.Workspace),
					"settings": a.Settings,
					"llm":      a.Model.Status(),
				})
			})
		},
	})
	return cfg
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	s, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	level, err := config.ParseLevel(s.LogLevel)
	if err != nil {
		return err
	}
	logger, closeLog := config.SetupLogger(s.LogFile, level)
	defer closeLog()
	a, err := app.Open(ctx, s, logger, app.Options{})
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func withStore(ctx context.Context, fn func(context.Context, *store.Store) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		return fn(ctx, a.Store)
	})
}

func printJob(job domain.GenerationJob) error {
	if viper.GetBool("json") {
		return printJSON(job)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendRow(table.Row{"ID", job.ID})
	tw.AppendRow(table.Row{"Industry", job.Config.Industry})
	tw.AppendRow(table.Row{"Status", job.Status})
	tw.AppendRow(table.Row{"Records", fmt.Sprintf("%d/%d", job.CompletedRecords, job.TotalRecords)})
	tw.AppendRow(table.Row{"Created", job.CreatedAt})
	if job.CompletedAt != nil {
		tw.AppendRow(table.Row{"Completed", *job.CompletedAt})
	}
	if job.Error != nil {
		tw.AppendRow(table.Row{"Error", *job.Error})
	}
	tw.Render()
	return nil
}

func printTranscripts(transcripts []domain.Transcript) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Scenario", "Call", "Sentiment", "Turns", "Resolution", "CSAT"})
	for _, t := range transcripts {
		csat := "-"
		if t.Metadata.CSATScore != nil {
			csat = fmt.Sprint(*t.Metadata.CSATScore)
		}
		tw.AppendRow(table.Row{t.ID, t.Scenario, t.CallType, t.Customer.Sentiment, len(t.Conversation), t.Metadata.ResolutionStatus, csat})
	}
	tw.Render()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
