// Package main is the wdlrun CLI: parse/typecheck a WDL document (`check`),
// run its workflow or a standalone task locally (`run`), or serve a
// read-only status endpoint over a run directory (`serve`). A cobra
// rootCmd with subcommands, flag-over-env-over-default precedence via
// internal/config.EnvOrDefault, and graceful shutdown via signal.Notify —
// a thin cobra shell over pkg/engine.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/wdlcore/internal/config"
	"github.com/lemonberrylabs/wdlcore/internal/statusapi"
	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/engine"
	"github.com/lemonberrylabs/wdlcore/pkg/loader"
	"github.com/lemonberrylabs/wdlcore/pkg/taskrun"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "wdlrun",
	Short: "WDL static analysis and local execution engine",
}

func init() {
	rootCmd.Version = version + " (commit=" + commit + ", built=" + date + ")"
	rootCmd.SetVersionTemplate("wdlrun version {{.Version}}\n")
	rootCmd.AddCommand(checkCmd, runCmd, serveCmd)

	runCmd.Flags().String("input", "", "path to an inputs JSON file (default: {}), env WDLRUN_INPUT")
	runCmd.Flags().String("run-dir", "", "run directory root (env WDLRUN_DIR, default .wdlrun/runs)")
	runCmd.Flags().String("cache-dir", "", "call/download cache root (env WDLRUN_CACHE_DIR, default .wdlrun/cache)")
	runCmd.Flags().Bool("no-cache", false, "bypass the call cache")
	runCmd.Flags().Int("cpu", 0, "host CPUs available to the scheduler (env WDLRUN_CPU, default NumCPU)")
	runCmd.Flags().Int64("memory", 0, "host memory in bytes available to the scheduler (0 = auto-detect)")
	runCmd.Flags().String("task", "", "run a specific task by name when the document has no workflow and defines more than one task")

	serveCmd.Flags().String("run-dir", "", "run directory root to serve (env WDLRUN_DIR)")
	serveCmd.Flags().String("cache-dir", "", "cache directory root to serve (env WDLRUN_CACHE_DIR)")
	serveCmd.Flags().String("addr", "", "listen address (env WDLRUN_ADDR, default 127.0.0.1:8089)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var checkCmd = &cobra.Command{
	Use:   "check <file.wdl>",
	Short: "Parse and typecheck a WDL document and its imports",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loader.New().Load(args[0])
		if err != nil {
			printDiag(err)
			return err
		}
		fmt.Printf("%s: ok (version %s, %d task(s), workflow=%v)\n", doc.Filename, doc.Version, len(doc.Tasks), doc.Workflow != nil)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run <file.wdl>",
	Short: "Typecheck and locally execute a WDL workflow or task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loader.New().Load(args[0])
		if err != nil {
			printDiag(err)
			return err
		}

		inputPath := flagOrEnv(cmd, "input", "WDLRUN_INPUT", "")
		inputsRaw := map[string]interface{}{}
		if inputPath != "" {
			b, err := os.ReadFile(inputPath)
			if err != nil {
				return fmt.Errorf("reading input JSON: %w", err)
			}
			if err := json.Unmarshal(b, &inputsRaw); err != nil {
				return fmt.Errorf("parsing input JSON: %w", err)
			}
		}

		cfg := config.Default()
		if v := flagOrEnv(cmd, "run-dir", "WDLRUN_DIR", ""); v != "" {
			cfg.RunDir = v
		}
		if v := flagOrEnv(cmd, "cache-dir", "WDLRUN_CACHE_DIR", ""); v != "" {
			cfg.CacheDir = v
		}
		if v, _ := cmd.Flags().GetInt("cpu"); v != 0 {
			cfg.HostCPU = v
		}
		if v, _ := cmd.Flags().GetInt64("memory"); v != 0 {
			cfg.HostMemory = v
		}
		if v, _ := cmd.Flags().GetBool("no-cache"); v {
			cfg.NoCache = true
		}

		logger := stdLogger{}
		e, err := engine.New(cfg, &taskrun.LocalRuntime{}, logger)
		if err != nil {
			return fmt.Errorf("initializing engine: %w", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
		go func() {
			<-sigCh
			log.Println("wdlrun: terminating...")
			e.Terminating.Signal()
			cancel()
		}()

		runID := fmt.Sprintf("%s_%s_%s", time.Now().UTC().Format("20060102_150405"), runName(doc), uuid.NewString()[:8])
		runDir := filepath.Join(cfg.RunDir, runID)

		var outputs map[string]interface{}
		if doc.Workflow != nil {
			outputs, err = e.RunWorkflow(ctx, runDir, doc, inputsRaw)
		} else {
			taskName, _ := cmd.Flags().GetString("task")
			task, terr := selectTask(doc, taskName)
			if terr != nil {
				return terr
			}
			outputs, err = e.RunTask(ctx, runDir, task, inputsRaw)
		}
		if err != nil {
			printDiag(err)
			return err
		}

		out, _ := json.MarshalIndent(outputs, "", "  ")
		fmt.Println(string(out))
		_ = os.WriteFile(filepath.Join(runDir, "outputs.json"), out, 0o644)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a read-only status endpoint over a run/cache directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		if v := flagOrEnv(cmd, "run-dir", "WDLRUN_DIR", ""); v != "" {
			cfg.RunDir = v
		}
		if v := flagOrEnv(cmd, "cache-dir", "WDLRUN_CACHE_DIR", ""); v != "" {
			cfg.CacheDir = v
		}
		addr := flagOrEnv(cmd, "addr", "WDLRUN_ADDR", "127.0.0.1:8089")

		s := statusapi.New(cfg.RunDir, cfg.CacheDir)
		if err := s.WatchRunDir(); err != nil {
			return fmt.Errorf("watching run directory: %w", err)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			log.Println("wdlrun: shutting down status server...")
			_ = s.Shutdown()
		}()

		log.Printf("wdlrun: serving status over %s (run-dir=%s)", addr, cfg.RunDir)
		return s.Listen(addr)
	},
}

// selectTask picks which task to run for a workflow-less document: the
// named --task flag if given, else the document's sole task, else an error
// demanding disambiguation.
func selectTask(doc *ast.Document, name string) (*ast.Task, error) {
	if name != "" {
		if t, ok := doc.FindTask(name); ok {
			return t, nil
		}
		return nil, fmt.Errorf("no such task %q in %s", name, doc.Filename)
	}
	if len(doc.Tasks) == 1 {
		return doc.Tasks[0], nil
	}
	if len(doc.Tasks) == 0 {
		return nil, fmt.Errorf("%s defines no workflow and no task to run", doc.Filename)
	}
	return nil, fmt.Errorf("%s defines %d tasks and no workflow; pick one with --task", doc.Filename, len(doc.Tasks))
}

func flagOrEnv(cmd *cobra.Command, flag, env, fallback string) string {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v
	}
	return config.EnvOrDefault(env, fallback)
}

func printDiag(err error) {
	if merr, ok := err.(*diag.MultiError); ok {
		for _, e := range merr.Errors {
			fmt.Fprintln(os.Stderr, e.Error())
		}
		return
	}
	fmt.Fprintln(os.Stderr, err.Error())
}

type stdLogger struct{}

func (stdLogger) Printf(format string, args ...interface{}) { log.Printf(format, args...) }

// runName derives the run-directory suffix: the workflow's name, or the
// sole task's, or "run" when neither is known yet.
func runName(doc *ast.Document) string {
	if doc.Workflow != nil {
		return doc.Workflow.Name
	}
	if len(doc.Tasks) == 1 {
		return doc.Tasks[0].Name
	}
	return "run"
}
