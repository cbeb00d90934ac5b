package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"permitline/internal/app"
	"permitline/internal/config"
	"permitline/internal/db"
	"permitline/internal/domain"
	"permitline/internal/logging"
	"permitline/internal/migrate"
	"permitline/internal/preview"
	"permitline/internal/server"
)

var log logrus.FieldLogger = logging.Discard()

var rootCmd = &cobra.Command{
	Use:   "ptw",
	Short: "Permit-to-work CLI",
	Long: `ptw manages permit-to-work records for Work, HighTension and GasLine permits.
- Workspace: a directory holding ptw.yml and .ptw/permits.db.
- Roles: requester, approver, safety and admin. A role picks the form view and the comment channels; it is not an access check.
- Lifecycle: draft -> submitted -> under_review -> approved|rejected, rejected -> submitted on resubmit, approved -> closed through closure review.
- Comments: six directed channels between roles, each with flags and checkable comments.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log = logging.Init(viper.GetString("log-level"), os.Stderr)
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
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PTW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("role", "", "act as this role instead of the session role")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("role", rootCmd.PersistentFlags().Lookup("role"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(permitCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(closureCmd())
	rootCmd.AddCommand(commentCmd())
	rootCmd.AddCommand(roleCmd())
	rootCmd.AddCommand(previewCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(legacyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create ptw.yml",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
}

func configInitCmd() *cobra.Command {
	var site string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default ptw.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(site)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&site, "site", "Main site", "site name")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate ptw.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func roleCmd() *cobra.Command {
	role := &cobra.Command{Use: "role", Short: "Show or change the session role"}
	role.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the session role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				r, err := rt.Engine.Repo.SessionRole(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"role": r})
			})
		},
	})
	role.AddCommand(&cobra.Command{
		Use:   "use <role>",
		Short: "Store the session role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, ok := domain.ParseRole(args[0])
			if !ok {
				return fmt.Errorf("unknown role %q", args[0])
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Engine.Repo.SetSessionRole(ctx, r); err != nil {
					return err
				}
				fmt.Println("session role:", r)
				return nil
			})
		},
	})
	return role
}

func legacyCmd() *cobra.Command {
	leg := &cobra.Command{Use: "legacy", Short: "Legacy key maintenance"}
	var docType string
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy unscoped comment channels into docType-scoped keys",
		Long:  "Runs on every open for the configured legacy doc type. Use --doc-type to migrate into another type as well. Existing scoped keys are never overwritten.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				res := rt.Legacy
				if docType != "" {
					dt, ok := domain.ParseDocType(docType)
					if !ok {
						return fmt.Errorf("unknown doc type %q", docType)
					}
					var err error
					res, err = migrate.LegacyChannels(ctx, rt.Engine.Repo.KV, dt, rt.Config.Legacy.Keys, log)
					if err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Key", "Result"})
				for _, k := range res.Migrated {
					tw.AppendRow(table.Row{k, "migrated"})
				}
				for _, k := range res.Skipped {
					tw.AppendRow(table.Row{k, "kept"})
				}
				tw.SetCaption("doc type %s", res.DocType)
				tw.Render()
				return nil
			})
		},
	}
	migrateCmd.Flags().StringVar(&docType, "doc-type", "", "target doc type (default: config legacy.doc_type)")
	leg.AddCommand(migrateCmd)
	return leg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if !cmd.Flags().Changed("addr") && rt.Config.Server.Addr != "" {
					addr = rt.Config.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") && rt.Config.Server.BasePath != "" {
					basePath = rt.Config.Server.BasePath
				}
				secret := rt.Config.Server.JWTSecret
				if env := os.Getenv("PTW_JWT_SECRET"); env != "" {
					secret = env
				}
				sheets, err := preview.LoadStylesheets(workspacePaths(rt.Workspace, rt.Config.Print.Stylesheets))
				if err != nil {
					return err
				}
				handler, err := server.New(server.Config{
					Engine:      rt.Engine,
					BasePath:    basePath,
					Auth:        server.AuthConfig{JWTSecret: secret, Logger: log},
					Stylesheets: sheets,
					Log:         log,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving permit API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", addr, basePath, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "token <role>",
		Short: "Issue a bearer token carrying a role claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, ok := domain.ParseRole(args[0])
			if !ok {
				return fmt.Errorf("unknown role %q", args[0])
			}
			cfg, err := app.LoadConfig(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			secret := cfg.Server.JWTSecret
			if env := os.Getenv("PTW_JWT_SECRET"); env != "" {
				secret = env
			}
			token, err := server.SignRoleToken(secret, r, subject)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject")
	return cmd
}

// --- helpers ---

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	rt, err := app.Open(ctx, viper.GetString("workspace"), nil, log)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

// activeRole is --role when given, otherwise the stored session role.
func activeRole(ctx context.Context, rt *app.Runtime) (domain.Role, error) {
	if raw := viper.GetString("role"); raw != "" {
		r, ok := domain.ParseRole(raw)
		if !ok {
			return "", fmt.Errorf("unknown role %q", raw)
		}
		return r, nil
	}
	return rt.Engine.Repo.SessionRole(ctx)
}

func workspacePaths(workspace string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(workspace, p)
		}
		out = append(out, p)
	}
	return out
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(cmd *cobra.Command, name, value string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}
